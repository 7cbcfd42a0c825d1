// Package module holds what the SDK hands to each product module: an Api
// clone, a logger and access to the job callbacks received by the
// webhook server.
package module

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/maplink/internal/logging"
	"github.com/wesleyorama2/maplink/internal/monitor"
	"github.com/wesleyorama2/maplink/pkg/api"
	"github.com/wesleyorama2/maplink/pkg/jsonpath"
)

// ErrNoCallbacks is returned by operations that wait for job callbacks
// when the SDK runs without a webhook server.
var ErrNoCallbacks = errors.New("callbacks unavailable: the SDK has no webhook server")

// Event is a job status callback.
type Event = monitor.CallbackEvent

// Metadata describes a module.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Module is implemented by every product module.
type Module interface {
	Metadata() Metadata
}

// Callbacks gives access to the job callbacks received by the SDK.
type Callbacks interface {
	OnCallback(fn func(Event)) (off func())
	Await(ctx context.Context, match func(Event) bool) (Event, error)
}

// Scope is what a module is built from.
type Scope struct {
	// API is the module's own clone of the SDK Api.
	API *api.Api

	Logger zerolog.Logger

	// Callback is where the platform posts job callbacks. Nil when the
	// SDK has no webhook server.
	Callback *api.Callback

	// Callbacks is nil when the SDK has no webhook server.
	Callbacks Callbacks
}

// FetchOptions returns the options attaching the scope's callback to a
// job submission.
func (s Scope) FetchOptions() []api.FetchOption {
	if s.Callback == nil {
		return nil
	}
	return []api.FetchOption{api.WithCallback(*s.Callback)}
}

// OnUpdate registers handler for every callback. The handler receives a
// function that unregisters it.
func (s Scope) OnUpdate(handler func(ev Event, destroy func())) (destroy func(), err error) {
	if s.Callbacks == nil {
		return nil, ErrNoCallbacks
	}

	var off func()
	ready := make(chan struct{})
	off = s.Callbacks.OnCallback(func(ev Event) {
		<-ready
		handler(ev, off)
	})
	close(ready)
	return off, nil
}

// TagJobID returns an after-fetch hook that tags the fetch with the job id
// found in a successful JSON response. The monitor shows the tag.
func TagJobID(paths ...string) api.HookFunc {
	if len(paths) == 0 {
		paths = []string{"$.id", "$.jobId"}
	}
	return func(ctx context.Context, f *api.Fetch) error {
		if f.Response == nil || !f.Response.OK {
			return nil
		}
		if id, ok := jsonpath.First(f.Response.Bytes(), paths...); ok && id != "null" {
			f.SetTag(id)
			l := logging.Ctx(ctx, zerolog.Nop())
			l.Debug().Str("job_id", id).Msg("fetch tagged")
		}
		return nil
	}
}
