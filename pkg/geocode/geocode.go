// Package geocode searches addresses and coordinates with the Maplink
// Geocode API.
//
//	g, _ := sdk.Geocode()
//	res, err := g.Search(ctx, "Av. Paulista, 1000, São Paulo")
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/module"
	"github.com/wesleyorama2/maplink/pkg/validation"
)

// Endpoint is the base path of the Geocode API.
const Endpoint = "/geocode/v1"

// Metadata describes the module.
var Metadata = module.Metadata{
	Name:        "geocode",
	Version:     "0.0.1",
	Description: "Finds coordinates from addresses and addresses from coordinates.",
}

// Geocode is the geocode module.
type Geocode struct {
	api    *api.Api
	logger zerolog.Logger
}

// New builds the module on the scope's Api. Global search starts disabled.
func New(scope module.Scope) (*Geocode, error) {
	if scope.API == nil {
		return nil, errors.New("geocode: scope api is required")
	}

	g := &Geocode{api: scope.API, logger: scope.Logger}
	g.api.JoinEndpoint(Endpoint)
	g.api.SetName(Metadata.Name)
	g.SetGlobalSearch(false)
	return g, nil
}

// Metadata implements module.Module.
func (g *Geocode) Metadata() module.Metadata { return Metadata }

// Api returns the module's Api.
func (g *Geocode) Api() *api.Api { return g.api }

// SetGlobalSearch allows searches outside Brazil when enabled.
func (g *Geocode) SetGlobalSearch(enabled bool) {
	g.api.SetParam("globalSearch", enabled)
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	g.logger.Info().Msgf("global search is %s", state)
}

// Search returns suggestions for a free-text address.
func (g *Geocode) Search(ctx context.Context, q string) (*Response, error) {
	if strings.TrimSpace(q) == "" {
		return nil, errors.New("geocode: empty query")
	}
	return result(g.api.Get(ctx, "/suggestions", api.WithParam("q", q)))
}

// SearchAddress geocodes a structured address.
func (g *Geocode) SearchAddress(ctx context.Context, addr Address) (*Response, error) {
	if addr.Empty() {
		return nil, ErrEmptyAddress
	}
	if err := validation.Struct(addr); err != nil {
		return nil, err
	}
	return result(g.api.Post(ctx, "/geocode", addr))
}

// SearchMany geocodes a batch of addresses. Results carry the query ids.
func (g *Geocode) SearchMany(ctx context.Context, queries []AddressQuery) (*Response, error) {
	if len(queries) == 0 {
		return nil, errors.New("geocode: at least one address is required")
	}
	for i, q := range queries {
		if q.Address.Empty() {
			return nil, fmt.Errorf("address %d: %w", i, ErrEmptyAddress)
		}
	}
	if err := validation.Struct(struct {
		Queries []AddressQuery `json:"queries" validate:"dive"`
	}{queries}); err != nil {
		return nil, err
	}
	return result(g.api.Post(ctx, "/multi-geocode", queries))
}

// Reverse finds the address of a point.
func (g *Geocode) Reverse(ctx context.Context, c Coords) (*Response, error) {
	if err := validation.Struct(c); err != nil {
		return nil, err
	}
	return result(g.api.Post(ctx, "/reverse", []Coords{c}))
}

// ReverseMany finds the addresses of a batch of points. Results carry the
// query ids and the extended address fields.
func (g *Geocode) ReverseMany(ctx context.Context, queries []CoordsQuery) (*Response, error) {
	if err := validation.Struct(struct {
		Queries []CoordsQuery `json:"queries" validate:"min=1,dive"`
	}{queries}); err != nil {
		return nil, err
	}
	return result(g.api.Post(ctx, "/reverse", queries))
}

func result(resp *api.Response, err error) (*Response, error) {
	out, err := api.Result[Response](resp, err)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	return &out, nil
}
