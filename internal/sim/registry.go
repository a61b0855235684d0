package sim

import (
	"context"
	"sync"
)

// Registry is the single-slot store for the current session. At most one
// non-terminal runner exists process-wide; control requests target "the
// current session" through it.
type Registry struct {
	mu      sync.Mutex
	current *Runner
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Start registers a new session for the producer and launches its
// worker. Fails with ErrAlreadyRunning while a non-terminal session
// holds the slot; on error the producer is untouched and the caller
// keeps ownership.
func (reg *Registry) Start(ctx context.Context, p Producer, cfg Config, opts Options) (*Runner, <-chan Event, error) {
	r := NewRunner(p, cfg, opts)

	reg.mu.Lock()
	if reg.current != nil && !reg.current.Phase().Terminal() {
		reg.mu.Unlock()
		return nil, nil, ErrAlreadyRunning
	}
	reg.current = r
	reg.mu.Unlock()

	r.onExit = func() { reg.release(r) }
	events := r.Run(ctx)
	return r, events, nil
}

// Current returns the active runner, if any.
func (reg *Registry) Current() (*Runner, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.current == nil {
		return nil, false
	}
	return reg.current, true
}

// Phase returns the current session's phase, or Idle when the slot is
// empty.
func (reg *Registry) Phase() Phase {
	reg.mu.Lock()
	r := reg.current
	reg.mu.Unlock()
	if r == nil {
		return Idle
	}
	return r.Phase()
}

// Pause forwards to the current session.
func (reg *Registry) Pause() error {
	r, ok := reg.Current()
	if !ok {
		return ErrNoActiveSession
	}
	return r.Pause()
}

// Resume forwards to the current session.
func (reg *Registry) Resume() error {
	r, ok := reg.Current()
	if !ok {
		return ErrNoActiveSession
	}
	return r.Resume()
}

// Stop forwards to the current session.
func (reg *Registry) Stop() error {
	r, ok := reg.Current()
	if !ok {
		return ErrNoActiveSession
	}
	return r.Stop()
}

// release clears the slot if r still occupies it. Called from the
// runner's worker on every exit path; idempotent and safe to race with
// a concurrent Start.
func (reg *Registry) release(r *Runner) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.current == r {
		reg.current = nil
	}
}
