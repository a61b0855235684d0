package sim

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultPacing is the minimum wall-clock spacing between successive
// frame deliveries when the config does not override it.
const DefaultPacing = 50 * time.Millisecond

// Config captures the immutable parameters a session was started with.
// Built once at session creation and never mutated; a new session
// replaces it wholesale.
type Config struct {
	MapName    string `json:"mapName"`
	RobotCount int    `json:"robotCount"`
	GoalCount  int    `json:"goalCount"`
	MaxSteps   int    `json:"maxSteps"`
}

// Options tunes runner behavior.
type Options struct {
	// Pacing is the minimum interval between frame deliveries.
	// DefaultPacing when zero.
	Pacing time.Duration
}

// Runner owns one simulation session: the lifecycle state machine and
// the worker that drives the producer's tick loop. All phase mutations
// go through the runner's mutex, so concurrent pause/resume/stop
// requests apply atomically in arrival order.
type Runner struct {
	producer Producer
	config   Config
	pacing   time.Duration
	events   chan Event

	mu       sync.Mutex
	cond     *sync.Cond
	phase    Phase
	lastStep int
	lastErr  error
	started  bool
	stopCh   chan struct{} // closed when the session transitions to Stopped
	doneCh   chan struct{} // closed when the worker exits

	// onExit is invoked exactly once when the worker exits, after the
	// producer is closed and before the event stream closes. Set by the
	// registry before Run.
	onExit func()
}

// NewRunner creates a session in Running phase. The caller must call Run
// to launch the worker.
func NewRunner(p Producer, cfg Config, opts Options) *Runner {
	pacing := opts.Pacing
	if pacing <= 0 {
		pacing = DefaultPacing
	}
	r := &Runner{
		producer: p,
		config:   cfg,
		pacing:   pacing,
		events:   make(chan Event),
		phase:    Running,
		lastStep: -1,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Config returns the immutable session parameters.
func (r *Runner) Config() Config {
	return r.config
}

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Step returns the index of the last frame produced, or -1 if none.
func (r *Runner) Step() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStep
}

// Done returns a channel closed when the worker has exited and the
// session's registry slot is free.
func (r *Runner) Done() <-chan struct{} {
	return r.doneCh
}

// Err returns the engine error that moved the session to Failed, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Run launches the worker and returns the session's ordered event
// stream. The channel carries zero or more frame events followed by
// exactly one terminal event, then closes. ctx is the consumer's
// context: when it is cancelled the session stops implicitly and no
// terminal event is attempted.
func (r *Runner) Run(ctx context.Context) <-chan Event {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		panic("sim: Run called twice")
	}
	r.started = true
	r.mu.Unlock()

	// Wake the worker out of a pause wait when the consumer goes away.
	go func() {
		select {
		case <-ctx.Done():
			if err := r.Stop(); err == nil {
				log.Printf("sim: consumer disconnected, stopping session")
			}
		case <-r.doneCh:
		}
	}()

	go r.run(ctx)
	return r.events
}

// Pause moves a Running session to Paused. Idempotent while Paused.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case Running:
		r.phase = Paused
		return nil
	case Paused:
		return nil
	default:
		return ErrNoActiveSession
	}
}

// Resume moves a Paused session back to Running. Idempotent while
// Running.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case Paused:
		r.phase = Running
		r.cond.Broadcast()
		return nil
	case Running:
		return nil
	default:
		return ErrNoActiveSession
	}
}

// Stop moves a Running or Paused session to Stopped. The worker observes
// the transition no later than its next stop check and exits after
// delivering the terminal event.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case Running, Paused:
		r.phase = Stopped
		close(r.stopCh)
		r.cond.Broadcast()
		return nil
	default:
		return ErrNoActiveSession
	}
}

// run is the worker loop. One goroutine per session; the producer's
// engine state is owned exclusively by this goroutine.
func (r *Runner) run(ctx context.Context) {
	// LIFO: producer closes first, then the registry slot is released,
	// then the stream closes. A consumer that drains the stream to close
	// must already see the slot vacant.
	defer close(r.doneCh)
	defer close(r.events)
	defer func() {
		if r.onExit != nil {
			r.onExit()
		}
	}()
	defer r.producer.Close()

	for {
		// Blocks while Paused; a resume or stop wakes it.
		if phase := r.awaitRunnable(); phase != Running {
			r.deliverTerminal(ctx, Event{Type: EventStopped})
			return
		}
		if ctx.Err() != nil {
			// Consumer gone between ticks. The watcher already
			// requested the stop; no terminal event is sent since
			// there is no longer a reader.
			return
		}

		out := r.producer.Step()
		switch out.Kind {
		case OutcomeCompleted:
			r.deliverTerminal(ctx, r.terminalEvent(r.finish(Completed, nil)))
			return
		case OutcomeFailed:
			r.deliverTerminal(ctx, r.terminalEvent(r.finish(Failed, out.Err)))
			return
		}

		r.noteStep(out.Step)

		// Block until the frame is delivered or the consumer
		// disconnects. Frames are never skipped; backpressure stalls
		// pacing, not ordering.
		select {
		case r.events <- Event{Type: EventFrame, Step: out.Step, Frame: out.Frame}:
		case <-ctx.Done():
			return
		}

		// Stop check after the push.
		select {
		case <-r.stopCh:
			r.deliverTerminal(ctx, Event{Type: EventStopped})
			return
		default:
		}

		timer := time.NewTimer(r.pacing)
		select {
		case <-timer.C:
		case <-r.stopCh:
			timer.Stop()
			r.deliverTerminal(ctx, Event{Type: EventStopped})
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// awaitRunnable blocks while the session is Paused and returns the phase
// that ended the wait.
func (r *Runner) awaitRunnable() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.phase == Paused {
		r.cond.Wait()
	}
	return r.phase
}

// finish records a producer-driven terminal transition and returns the
// phase that actually won: a concurrent Stop that linearized first keeps
// Stopped.
func (r *Runner) finish(p Phase, err error) Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.Terminal() {
		return r.phase
	}
	r.phase = p
	r.lastErr = err
	r.cond.Broadcast()
	return p
}

func (r *Runner) terminalEvent(p Phase) Event {
	switch p {
	case Completed:
		return Event{Type: EventCompleted}
	case Failed:
		return Event{Type: EventFailed, Err: r.Err()}
	default:
		return Event{Type: EventStopped}
	}
}

func (r *Runner) noteStep(step int) {
	r.mu.Lock()
	r.lastStep = step
	r.mu.Unlock()
}

// deliverTerminal sends the final stream event unless the consumer is
// already gone.
func (r *Runner) deliverTerminal(ctx context.Context, ev Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}
