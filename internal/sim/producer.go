package sim

// OutcomeKind classifies the result of a producer step.
type OutcomeKind int

const (
	OutcomeFrame OutcomeKind = iota // a rendered frame for this step
	OutcomeCompleted                // simulation finished (goal reached or step ceiling)
	OutcomeFailed                   // engine error; Err carries the reason
)

// Outcome is what a Producer returns for one tick.
type Outcome struct {
	Kind  OutcomeKind
	Step  int    // step index, monotonic from 0; valid for OutcomeFrame
	Frame []byte // encoded image payload; valid for OutcomeFrame
	Err   error  // valid for OutcomeFailed
}

// Producer advances a simulation by one discrete step per call and renders
// the result. Implementations are not safe for concurrent use; the runner
// is the only caller. After returning OutcomeCompleted or OutcomeFailed a
// producer is inert: further Step calls repeat the terminal outcome.
type Producer interface {
	Step() Outcome
	// Close releases engine resources. Called exactly once, after the
	// last Step.
	Close()
}

// FrameOutcome builds a frame outcome for the given step.
func FrameOutcome(step int, frame []byte) Outcome {
	return Outcome{Kind: OutcomeFrame, Step: step, Frame: frame}
}

// CompletedOutcome marks the simulation as finished.
func CompletedOutcome() Outcome {
	return Outcome{Kind: OutcomeCompleted}
}

// FailedOutcome wraps an engine error.
func FailedOutcome(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}
