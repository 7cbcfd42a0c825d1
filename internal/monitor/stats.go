package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are recorded in microseconds, from 1µs to 10 minutes.
const (
	histMin     = 1
	histMax     = 600_000_000
	histSigFigs = 3
)

// Stats aggregates fetch latencies per fetch name.
//
// HDR histograms are not safe for concurrent use; all access goes through mu.
type Stats struct {
	mu    sync.Mutex
	hists map[string]*hdrhistogram.Histogram
	count map[string]map[string]int64 // name -> outcome -> count
	since time.Time
}

// NameStats summarizes the fetches of one name.
type NameStats struct {
	Name    string           `json:"name"`
	Count   int64            `json:"count"`
	ByType  map[string]int64 `json:"byType"`
	Mean    time.Duration    `json:"mean"`
	P50     time.Duration    `json:"p50"`
	P90     time.Duration    `json:"p90"`
	P99     time.Duration    `json:"p99"`
	Max     time.Duration    `json:"max"`
	Elapsed time.Duration    `json:"-"`
}

// NewStats creates an empty aggregate.
func NewStats() *Stats {
	return &Stats{
		hists: make(map[string]*hdrhistogram.Histogram),
		count: make(map[string]map[string]int64),
		since: time.Now(),
	}
}

// Record adds one fetch.
func (s *Stats) Record(name, outcome string, d time.Duration) {
	us := d.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hists[name]
	if !ok {
		h = hdrhistogram.New(histMin, histMax, histSigFigs)
		s.hists[name] = h
		s.count[name] = make(map[string]int64)
	}
	_ = h.RecordValue(us)
	s.count[name][outcome]++
}

// Snapshot returns the stats of every name, sorted by name.
func (s *Stats) Snapshot() []NameStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NameStats, 0, len(s.hists))
	for name, h := range s.hists {
		byType := make(map[string]int64, len(s.count[name]))
		for k, v := range s.count[name] {
			byType[k] = v
		}
		out = append(out, NameStats{
			Name:    name,
			Count:   h.TotalCount(),
			ByType:  byType,
			Mean:    time.Duration(h.Mean()) * time.Microsecond,
			P50:     time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
			P90:     time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
			P99:     time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
			Max:     time.Duration(h.Max()) * time.Microsecond,
			Elapsed: time.Since(s.since),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears all recorded values.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hists = make(map[string]*hdrhistogram.Histogram)
	s.count = make(map[string]map[string]int64)
	s.since = time.Now()
}
