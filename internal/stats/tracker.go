package stats

import (
	"sync"
	"time"

	"github.com/robosim/backend/internal/sim"
)

// Stats aggregates run outcomes across sessions since process start.
// Historical persistence is deliberately out of scope; this is a live
// counter surface for the /api/stats endpoint.
type Stats struct {
	TotalSessions   int        `json:"totalSessions"`
	Completed       int        `json:"completed"`
	Stopped         int        `json:"stopped"`
	Failed          int        `json:"failed"`
	FramesDelivered int64      `json:"framesDelivered"`
	LongestSession  int        `json:"longestSessionSteps"`
	TotalRunSeconds float64    `json:"totalRunSeconds"`
	LastOutcome     string     `json:"lastOutcome,omitempty"`
	LastEndedAt     *time.Time `json:"lastEndedAt,omitempty"`
}

// Tracker records session lifecycle milestones. Safe for concurrent use;
// the API layer calls it from both handler and stream goroutines.
type Tracker struct {
	mu        sync.Mutex
	stats     Stats
	startedAt time.Time
	running   bool

	now func() time.Time // test hook
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// SessionStarted counts a new session and marks its start time.
func (t *Tracker) SessionStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TotalSessions++
	t.startedAt = t.now()
	t.running = true
}

// FrameDelivered counts one frame pushed to the consumer.
func (t *Tracker) FrameDelivered() {
	t.mu.Lock()
	t.stats.FramesDelivered++
	t.mu.Unlock()
}

// SessionEnded records the terminal outcome and the steps the session
// produced. Calls without a matching SessionStarted are ignored.
func (t *Tracker) SessionEnded(phase sim.Phase, steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false

	switch phase {
	case sim.Completed:
		t.stats.Completed++
	case sim.Stopped:
		t.stats.Stopped++
	case sim.Failed:
		t.stats.Failed++
	}
	if steps > t.stats.LongestSession {
		t.stats.LongestSession = steps
	}
	ended := t.now()
	t.stats.TotalRunSeconds += ended.Sub(t.startedAt).Seconds()
	t.stats.LastOutcome = phase.String()
	t.stats.LastEndedAt = &ended
}

// Snapshot returns a copy of the current aggregates.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	if s.LastEndedAt != nil {
		at := *s.LastEndedAt
		s.LastEndedAt = &at
	}
	return s
}
