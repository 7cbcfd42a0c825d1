// Package planning submits vehicle routing problems to the Maplink
// Planning API and follows their jobs through the webhook callbacks.
package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/module"
)

// Endpoint is the base path of the Planning API.
const Endpoint = "/planning/v1"

// Metadata describes the module.
var Metadata = module.Metadata{
	Name:        "planning",
	Version:     "0.0.1",
	Description: "Plans routes and schedules for a fleet of vehicles.",
}

// ErrJobFailed is returned by Create when the job ends without a solution.
var ErrJobFailed = errors.New("planning: job did not solve")

// Job is the answer to a submitted problem.
type Job struct {
	ID string `json:"id"`
}

// Solution is the optimized plan of a job. Route details are kept raw;
// their shape depends on the problem's options.
type Solution struct {
	ID                string            `json:"id"`
	ClientID          string            `json:"clientId,omitempty"`
	VehicleRoutes     []json.RawMessage `json:"vehicleRoutes"`
	RejectOperations  []json.RawMessage `json:"rejectOperations,omitempty"`
	RejectedVehicles  []json.RawMessage `json:"rejectedVehicles,omitempty"`
	Indicators        json.RawMessage   `json:"indicators,omitempty"`
	ProblemID         string            `json:"problemId,omitempty"`
	CalculationStatus string            `json:"calculationStatus,omitempty"`
}

// Planning is the planning module.
type Planning struct {
	api       *api.Api
	logger    zerolog.Logger
	scope     module.Scope
	callbacks module.Callbacks
}

// New builds the module on the scope's Api.
func New(scope module.Scope) (*Planning, error) {
	if scope.API == nil {
		return nil, errors.New("planning: scope api is required")
	}

	p := &Planning{
		api:       scope.API,
		logger:    scope.Logger,
		scope:     scope,
		callbacks: scope.Callbacks,
	}
	p.api.JoinEndpoint(Endpoint)
	p.api.SetName(Metadata.Name)
	return p, nil
}

// Metadata implements module.Module.
func (p *Planning) Metadata() module.Metadata { return Metadata }

// Api returns the module's Api.
func (p *Planning) Api() *api.Api { return p.api }

// Submit validates and submits a problem. The platform reports progress
// to the SDK's callback URL; the fetch is tagged with the job id.
func (p *Planning) Submit(ctx context.Context, problem *Problem) (*Job, error) {
	if problem == nil {
		return nil, errors.New("planning: problem is required")
	}
	if err := problem.Validate(); err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	opts := append(p.scope.FetchOptions(), api.WithAfterFetch(module.TagJobID()))

	job, err := api.Result[Job](p.api.Post(ctx, "/problems", problem, opts...))
	if err != nil {
		return nil, fmt.Errorf("planning: submit problem: %w", err)
	}
	p.logger.Info().Str("job_id", job.ID).Msg("problem submitted")
	return &job, nil
}

// Create submits a problem, waits for the job to be solved and returns
// its solution. It requires the webhook server.
func (p *Planning) Create(ctx context.Context, problem *Problem) (*Solution, error) {
	if p.callbacks == nil {
		return nil, module.ErrNoCallbacks
	}

	job, err := p.Submit(ctx, problem)
	if err != nil {
		return nil, err
	}

	ev, err := p.callbacks.Await(ctx, monitor.FinalJob(job.ID))
	if err != nil {
		return nil, fmt.Errorf("planning: wait for job %s: %w", job.ID, err)
	}
	if !ev.Solved() {
		return nil, fmt.Errorf("%w: job %s ended with %s", ErrJobFailed, job.ID, ev.Description)
	}
	return p.Solution(ctx, job.ID)
}

// Events lists the status events of a job.
func (p *Planning) Events(ctx context.Context, jobID string) ([]module.Event, error) {
	if jobID == "" {
		return nil, errors.New("planning: job id is required")
	}
	out, err := api.Result[[]module.Event](p.api.Get(ctx, "/events", api.WithParam("jobId", jobID)))
	if err != nil {
		return nil, fmt.Errorf("planning: events of job %s: %w", jobID, err)
	}
	return out, nil
}

// Status returns the latest status event of a job.
func (p *Planning) Status(ctx context.Context, jobID string) (*module.Event, error) {
	if jobID == "" {
		return nil, errors.New("planning: job id is required")
	}
	out, err := api.Result[module.Event](p.api.Get(ctx, "/jobs/"+jobID))
	if err != nil {
		return nil, fmt.Errorf("planning: status of job %s: %w", jobID, err)
	}
	return &out, nil
}

// Solution returns the solution of a solved job.
func (p *Planning) Solution(ctx context.Context, jobID string) (*Solution, error) {
	if jobID == "" {
		return nil, errors.New("planning: job id is required")
	}
	out, err := api.Result[Solution](p.api.Get(ctx, "/solutions/"+jobID))
	if err != nil {
		return nil, fmt.Errorf("planning: solution of job %s: %w", jobID, err)
	}
	return &out, nil
}

// OnUpdate calls handler for every job callback until destroy is called.
func (p *Planning) OnUpdate(handler func(ev module.Event, destroy func())) (destroy func(), err error) {
	return p.scope.OnUpdate(handler)
}
