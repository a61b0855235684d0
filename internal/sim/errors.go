package sim

import "errors"

var (
	// ErrAlreadyRunning is returned when a start request arrives while a
	// non-terminal session occupies the registry slot.
	ErrAlreadyRunning = errors.New("simulation already running")

	// ErrNoActiveSession is returned by pause/resume/stop when there is
	// no session, or the current session has already ended.
	ErrNoActiveSession = errors.New("no active simulation")
)
