// Package trip calculates routes with the Maplink Trip API, either
// synchronously or as jobs reported through the webhook callbacks.
package trip

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/module"
	"github.com/wesleyorama2/maplink/pkg/validation"
)

// Endpoint is the base path of the Trip API. Calls add the API version.
const Endpoint = "/trip"

// Metadata describes the module.
var Metadata = module.Metadata{
	Name:        "trip",
	Version:     "0.0.1",
	Description: "Handles the route calculation process.",
}

// Job is the answer to a submitted trip problem.
type Job struct {
	ID string `json:"id"`
}

// Trip is the trip module.
type Trip struct {
	api    *api.Api
	logger zerolog.Logger
	scope  module.Scope
}

// New builds the module on the scope's Api.
func New(scope module.Scope) (*Trip, error) {
	if scope.API == nil {
		return nil, errors.New("trip: scope api is required")
	}

	t := &Trip{api: scope.API, logger: scope.Logger, scope: scope}
	t.api.JoinEndpoint(Endpoint)
	t.api.SetName(Metadata.Name)
	t.api.SetHeader("Content-Type", "application/json")
	return t, nil
}

// Metadata implements module.Module.
func (t *Trip) Metadata() module.Metadata { return Metadata }

// Api returns the module's Api.
func (t *Trip) Api() *api.Api { return t.api }

// Calculate returns the route of req with leg points encoded as mode.
func (t *Trip) Calculate(ctx context.Context, req *Request, mode PointsMode) (*Response, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("trip: unknown points mode %q", mode)
	}

	out, err := api.Result[Response](t.api.Post(ctx, "v2/calculations", req,
		api.WithParam("pointsMode", string(mode)),
		api.WithAfterFetch(module.TagJobID()),
	))
	if err != nil {
		return nil, fmt.Errorf("trip: calculate: %w", err)
	}
	return &out, nil
}

// Create submits req as a job. Progress is posted to the SDK's callback
// URL when it runs a webhook server.
func (t *Trip) Create(ctx context.Context, req *Request) (*Job, error) {
	if err := check(req); err != nil {
		return nil, err
	}

	opts := append(t.scope.FetchOptions(), api.WithAfterFetch(module.TagJobID()))
	job, err := api.Result[Job](t.api.Post(ctx, "v1/problems", req, opts...))
	if err != nil {
		return nil, fmt.Errorf("trip: create: %w", err)
	}
	t.logger.Info().Str("job_id", job.ID).Msg("trip job submitted")
	return &job, nil
}

// Events lists the status events of a job.
func (t *Trip) Events(ctx context.Context, jobID string) ([]module.Event, error) {
	if jobID == "" {
		return nil, errors.New("trip: job id is required")
	}
	out, err := api.Result[[]module.Event](t.api.Get(ctx, "v1/events", api.WithParam("jobId", jobID)))
	if err != nil {
		return nil, fmt.Errorf("trip: events of job %s: %w", jobID, err)
	}
	return out, nil
}

// Status returns the latest status event of a job.
func (t *Trip) Status(ctx context.Context, jobID string) (*module.Event, error) {
	if jobID == "" {
		return nil, errors.New("trip: job id is required")
	}
	out, err := api.Result[module.Event](t.api.Get(ctx, "v1/jobs/"+jobID))
	if err != nil {
		return nil, fmt.Errorf("trip: status of job %s: %w", jobID, err)
	}
	return &out, nil
}

// Solution returns the route computed by a job.
func (t *Trip) Solution(ctx context.Context, jobID string, mode PointsMode) (*Response, error) {
	if jobID == "" {
		return nil, errors.New("trip: job id is required")
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("trip: unknown points mode %q", mode)
	}
	out, err := api.Result[Response](t.api.Get(ctx, "v1/solutions/"+jobID, api.WithParam("pointsMode", string(mode))))
	if err != nil {
		return nil, fmt.Errorf("trip: solution of job %s: %w", jobID, err)
	}
	return &out, nil
}

// OnUpdate calls handler for every job callback until destroy is called.
func (t *Trip) OnUpdate(handler func(ev module.Event, destroy func())) (destroy func(), err error) {
	return t.scope.OnUpdate(handler)
}

func check(req *Request) error {
	if req == nil {
		return errors.New("trip: request is required")
	}
	if err := validation.Struct(req); err != nil {
		return fmt.Errorf("trip: %w", err)
	}
	return nil
}
