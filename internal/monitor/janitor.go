package monitor

import (
	"context"
	"time"
)

// Janitor periodically drops spoiled events from a monitor.
// It implements suture.Service.
type Janitor struct {
	m        *Monitor
	interval time.Duration
}

// Janitor returns the pruning service of m.
func (m *Monitor) Janitor() *Janitor {
	return &Janitor{m: m, interval: m.cfg.PruneInterval}
}

// Serve prunes on every tick until ctx is done.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.m.Prune()
		}
	}
}

func (j *Janitor) String() string { return "monitor-janitor" }
