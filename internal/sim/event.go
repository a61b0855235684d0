package sim

// EventType classifies entries in a session's output stream.
type EventType int

const (
	EventFrame     EventType = iota // rendered frame for one step
	EventCompleted                  // terminal: simulation finished
	EventStopped                    // terminal: stopped by operator or disconnect
	EventFailed                     // terminal: engine failure
)

// Event is one entry in the ordered stream a session produces. Frame
// events carry strictly increasing step indices; a terminal event is
// always last and is followed by the channel closing.
type Event struct {
	Type  EventType
	Step  int
	Frame []byte
	Err   error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type != EventFrame
}
