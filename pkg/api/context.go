package api

import "context"

// HookList holds the hooks resolved for one fetch, in execution order.
type HookList struct {
	Before []*Hook
	After  []*Hook
}

// FetchContext is the state threaded through one fetch: its id, the
// resolved configuration, its hooks and the emitter of the Api that
// started it. Hooks and listeners read it with FromContext.
type FetchContext struct {
	FetchID string
	Config  RequestConfig
	Hooks   HookList
	Emitter *Emitter
}

type fetchContextKey struct{}

// ContextWith returns a copy of ctx carrying fc.
func ContextWith(ctx context.Context, fc *FetchContext) context.Context {
	return context.WithValue(ctx, fetchContextKey{}, fc)
}

// FromContext returns the fetch context stored in ctx.
func FromContext(ctx context.Context) (*FetchContext, bool) {
	fc, ok := ctx.Value(fetchContextKey{}).(*FetchContext)
	return fc, ok
}

// FetchIDFromContext returns the id of the fetch running in ctx, or "".
func FetchIDFromContext(ctx context.Context) string {
	if fc, ok := FromContext(ctx); ok {
		return fc.FetchID
	}
	return ""
}
