package trip

import (
	"encoding/json"
	"fmt"

	"github.com/wesleyorama2/maplink/pkg/api"
)

// PointsMode selects how the points of each leg are encoded in a response.
type PointsMode string

const (
	PointsObject   PointsMode = "object"
	PointsArray    PointsMode = "array"
	PointsGeohash  PointsMode = "geohash"
	PointsPolyline PointsMode = "polyline"
)

// Valid reports whether m is a known mode.
func (m PointsMode) Valid() bool {
	switch m {
	case PointsObject, PointsArray, PointsGeohash, PointsPolyline:
		return true
	}
	return false
}

// ParsePointsMode parses a mode name. An empty name is PointsObject.
func ParsePointsMode(s string) (PointsMode, error) {
	if s == "" {
		return PointsObject, nil
	}
	m := PointsMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("trip: unknown points mode %q (want object, array, geohash or polyline)", s)
	}
	return m, nil
}

// Point is a stop of a trip.
type Point struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"longitude"`
	SiteID    string  `json:"siteId,omitempty" yaml:"siteId"`
}

// Request is a route between at least two points.
type Request struct {
	CalculationMode string  `json:"calculationMode" yaml:"calculationMode" validate:"oneof=THE_FASTEST THE_SHORTEST"`
	Points          []Point `json:"points" yaml:"points" validate:"min=2,dive"`

	Callback *api.Callback `json:"callback,omitempty" yaml:"-"`
}

// WithCallback implements api.CallbackCarrier with a shallow copy of r.
func (r *Request) WithCallback(cb *api.Callback) any {
	c := *r
	c.Callback = cb
	return &c
}

// Response is a calculated route.
type Response struct {
	ID                   string  `json:"id"`
	ClientID             string  `json:"clientId"`
	TotalDistance        float64 `json:"totalDistance"`
	TotalNominalDuration float64 `json:"totalNominalDuration"`
	AverageSpeed         float64 `json:"averageSpeed"`
	Legs                 []Leg   `json:"legs"`
	Source               string  `json:"source"`
	CreatedAt            string  `json:"createdAt"`
	ExpiryIn             string  `json:"expiryIn"`
}

// Leg is the route between two consecutive points. Points is encoded
// according to the PointsMode of the call.
type Leg struct {
	Distance        float64         `json:"distance"`
	NominalDuration float64         `json:"nominalDuration"`
	AverageSpeed    float64         `json:"averageSpeed"`
	Points          json.RawMessage `json:"points,omitempty"`
}

// LatLon is a point of a leg in PointsObject mode.
type LatLon struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Objects decodes points returned in PointsObject mode.
func (l Leg) Objects() ([]LatLon, error) {
	var out []LatLon
	return out, l.decode(PointsObject, &out)
}

// Pairs decodes points returned in PointsArray mode.
func (l Leg) Pairs() ([][2]float64, error) {
	var out [][2]float64
	return out, l.decode(PointsArray, &out)
}

// Geohashes decodes points returned in PointsGeohash mode.
func (l Leg) Geohashes() ([]string, error) {
	var out []string
	return out, l.decode(PointsGeohash, &out)
}

// Polyline decodes points returned in PointsPolyline mode.
func (l Leg) Polyline() (string, error) {
	var out string
	return out, l.decode(PointsPolyline, &out)
}

func (l Leg) decode(mode PointsMode, v any) error {
	if len(l.Points) == 0 {
		return nil
	}
	if err := json.Unmarshal(l.Points, v); err != nil {
		return fmt.Errorf("trip: decode %s points: %w", mode, err)
	}
	return nil
}
