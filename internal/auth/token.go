package auth

import (
	"sync"
	"time"

	"github.com/wesleyorama2/maplink/pkg/api"
)

// expirySkew makes a token expire slightly before its refresh tick, so a
// scheduled refresh always fetches a new one.
const expirySkew = 5 * time.Second

// Token is an access token with an expiry.
type Token struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	value     string
	expiry    time.Time
	listeners []func(string)
}

// NewToken creates an empty token that lives ttl once set.
func NewToken(ttl time.Duration) *Token {
	return &Token{ttl: ttl, now: time.Now}
}

// Set stores a new value, restarts the expiry and notifies listeners.
func (t *Token) Set(value string) error {
	if value == "" {
		return api.ErrEmptyToken
	}

	t.mu.Lock()
	t.value = value
	t.expiry = t.now().Add(t.ttl)
	listeners := append([]func(string){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
	return nil
}

// Value returns the current value, which may be expired.
func (t *Token) Value() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// Expiry returns when the current value stops being valid.
func (t *Token) Expiry() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiry
}

// Valid reports whether a value is set and not expired.
func (t *Token) Valid() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.value == "" {
		return false
	}
	deadline := t.expiry
	if t.ttl > 2*expirySkew {
		deadline = deadline.Add(-expirySkew)
	}
	return t.now().Before(deadline)
}

// OnUpdate registers fn to run with every new value.
func (t *Token) OnUpdate(fn func(value string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}
