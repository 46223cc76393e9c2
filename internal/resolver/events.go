package resolver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hollyoak/tally/internal/service"
)

// logSink records tier events as structured debug logs. It is the default
// sink when no other destination is configured.
type logSink struct{}

// NewLogSink returns a sink that writes tier events to the default logger.
func NewLogSink() service.TierEventSink {
	return &logSink{}
}

func (s *logSink) Record(event service.TierEvent) {
	slog.Debug("Tier event",
		"task", event.Task,
		"tier", int(event.Tier),
		"latency_ms", event.Latency.Milliseconds(),
		"hit", event.Hit,
		"failed", event.Failed)
}

// MemorySink accumulates tier events in memory. Useful for per-run cost
// summaries and in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []service.TierEvent
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(event service.TierEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events in arrival order.
func (s *MemorySink) Events() []service.TierEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.TierEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Summary aggregates recorded events per tier.
func (s *MemorySink) Summary() map[int]TierStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[int]TierStats)
	for _, e := range s.events {
		t := stats[int(e.Tier)]
		t.Attempts++
		if e.Hit {
			t.Hits++
		}
		if e.Failed {
			t.Failures++
		}
		t.TotalLatency += e.Latency
		stats[int(e.Tier)] = t
	}
	return stats
}

// TierStats summarizes activity for one tier.
type TierStats struct {
	Attempts     int
	Hits         int
	Failures     int
	TotalLatency time.Duration
}
