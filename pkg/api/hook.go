package api

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Moment is the point of a fetch at which a hook runs.
type Moment int

const (
	// BeforeFetch hooks run before the request is sent and may modify it.
	BeforeFetch Moment = iota
	// AfterFetch hooks run once the response (or transport error) is known.
	AfterFetch
)

func (m Moment) String() string {
	switch m {
	case BeforeFetch:
		return "beforeFetch"
	case AfterFetch:
		return "afterFetch"
	default:
		return "unknown"
	}
}

// HookFunc is the body of a hook. Returned errors are logged; they never
// abort the fetch or the remaining hooks.
type HookFunc func(ctx context.Context, f *Fetch) error

// Hook is a before or after fetch callback. A hook with no owner is global
// and runs for every Api sharing the manager.
type Hook struct {
	id     string
	moment Moment
	fn     HookFunc
	owner  *Api

	once   atomic.Bool
	active atomic.Bool

	manager *HookManager
}

// NewHook creates an active hook. A nil owner makes it global.
func NewHook(moment Moment, fn HookFunc, owner *Api) *Hook {
	h := &Hook{
		id:     uuid.NewString(),
		moment: moment,
		fn:     fn,
		owner:  owner,
	}
	h.active.Store(true)
	return h
}

// ID returns the hook's unique id.
func (h *Hook) ID() string { return h.id }

// Moment returns when the hook runs.
func (h *Hook) Moment() Moment { return h.moment }

// Owner returns the Api the hook is bound to, or nil for global hooks.
func (h *Hook) Owner() *Api {
	if h.manager != nil {
		h.manager.mu.Lock()
		defer h.manager.mu.Unlock()
	}
	return h.owner
}

// Once marks the hook as one-shot: its first execution disables it.
func (h *Hook) Once() *Hook {
	h.once.Store(true)
	return h
}

// IsOnce reports whether the hook is one-shot.
func (h *Hook) IsOnce() bool { return h.once.Load() }

// Disable deactivates the hook. Disabled hooks are pruned by the manager.
func (h *Hook) Disable() { h.active.Store(false) }

// Active reports whether the hook will run.
func (h *Hook) Active() bool { return h.active.Load() }

// Global moves an instance hook to the manager's global list.
func (h *Hook) Global() *Hook {
	if h.manager != nil {
		h.manager.ChangeToGlobal(h)
	}
	return h
}

// Execute runs the hook if it is active. A one-shot hook is disabled
// before its function runs, so concurrent fetches run it at most once.
func (h *Hook) Execute(ctx context.Context, f *Fetch) error {
	if h.once.Load() {
		if !h.active.CompareAndSwap(true, false) {
			return nil
		}
	} else if !h.active.Load() {
		return nil
	}
	return h.fn(ctx, f)
}

// HookManager keeps the instance and global hooks shared by an Api and
// all of its clones.
type HookManager struct {
	mu      sync.Mutex
	byAPI   map[*Api][]*Hook
	global  []*Hook
	emitter *Emitter
}

// NewHookManager creates a manager that emits hookAppend and hookRemove
// on emitter. emitter may be nil.
func NewHookManager(emitter *Emitter) *HookManager {
	return &HookManager{
		byAPI:   make(map[*Api][]*Hook),
		emitter: emitter,
	}
}

// Append registers a hook.
func (m *HookManager) Append(h *Hook) {
	m.mu.Lock()
	h.manager = m
	if h.owner == nil {
		m.global = append(m.global, h)
	} else {
		m.byAPI[h.owner] = append(m.byAPI[h.owner], h)
	}
	m.mu.Unlock()

	m.emitter.Emit(EventHookAppend, h)
}

// Remove unregisters a hook. Removing an unknown hook is a no-op.
func (m *HookManager) Remove(h *Hook) {
	m.mu.Lock()
	removed := m.removeLocked(h)
	m.mu.Unlock()

	if removed {
		m.emitter.Emit(EventHookRemove, h)
	}
}

// ChangeToGlobal moves an instance hook to the global list.
func (m *HookManager) ChangeToGlobal(h *Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.owner == nil {
		return
	}
	if _, ok := m.byAPI[h.owner]; !ok {
		return
	}
	m.removeLocked(h)
	h.owner = nil
	m.global = append(m.global, h)
}

// BeforeFetch returns the active before hooks for api: its own hooks
// first, then the global ones.
func (m *HookManager) BeforeFetch(api *Api) []*Hook {
	return m.list(api, BeforeFetch)
}

// AfterFetch returns the active after hooks for api, in the same order
// as BeforeFetch.
func (m *HookManager) AfterFetch(api *Api) []*Hook {
	return m.list(api, AfterFetch)
}

// Prune drops disabled hooks.
func (m *HookManager) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
}

// Len returns the number of registered hooks, including disabled ones
// that have not been pruned yet.
func (m *HookManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.global)
	for _, hs := range m.byAPI {
		n += len(hs)
	}
	return n
}

func (m *HookManager) list(api *Api, moment Moment) []*Hook {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	var out []*Hook
	if api != nil {
		for _, h := range m.byAPI[api] {
			if h.moment == moment {
				out = append(out, h)
			}
		}
	}
	for _, h := range m.global {
		if h.moment == moment {
			out = append(out, h)
		}
	}
	return out
}

func (m *HookManager) removeLocked(h *Hook) bool {
	if h.owner == nil {
		for i, g := range m.global {
			if g.id == h.id {
				m.global = append(m.global[:i:i], m.global[i+1:]...)
				return true
			}
		}
		return false
	}

	hs := m.byAPI[h.owner]
	for i, x := range hs {
		if x.id == h.id {
			m.setLocked(h.owner, append(hs[:i:i], hs[i+1:]...))
			return true
		}
	}
	return false
}

func (m *HookManager) setLocked(api *Api, hooks []*Hook) {
	if len(hooks) == 0 {
		delete(m.byAPI, api)
		return
	}
	m.byAPI[api] = hooks
}

func (m *HookManager) pruneLocked() {
	m.global = activeOnly(m.global)
	for api, hs := range m.byAPI {
		m.setLocked(api, activeOnly(hs))
	}
}

func activeOnly(hooks []*Hook) []*Hook {
	out := hooks[:0:0]
	for _, h := range hooks {
		if h.Active() {
			out = append(out, h)
		}
	}
	return out
}
