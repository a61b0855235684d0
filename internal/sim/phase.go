package sim

import "encoding/json"

// Phase is the lifecycle state of a simulation session.
type Phase int

const (
	Idle Phase = iota
	Running
	Paused
	Completed
	Stopped
	Failed
)

var phaseNames = map[Phase]string{
	Idle:      "idle",
	Running:   "running",
	Paused:    "paused",
	Completed: "completed",
	Stopped:   "stopped",
	Failed:    "failed",
}

var phaseFromName = map[string]Phase{
	"idle":      Idle,
	"running":   Running,
	"paused":    Paused,
	"completed": Completed,
	"stopped":   Stopped,
	"failed":    Failed,
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// Terminal reports whether the phase ends a session. A terminal session
// never transitions again; a new start replaces it.
func (p Phase) Terminal() bool {
	return p == Completed || p == Stopped || p == Failed
}
