package ws

import (
	"github.com/robosim/backend/internal/sim"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot" // session overview, sent on connect
	MsgFrame    MessageType = "frame"    // one rendered simulation frame
	MsgStatus   MessageType = "status"   // phase change, including terminal
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload describes the current session to a freshly connected
// spectator. Config is nil while idle.
type SnapshotPayload struct {
	Phase  sim.Phase   `json:"phase"`
	Step   int         `json:"step"`
	Config *sim.Config `json:"config,omitempty"`
}

// FramePayload carries one frame; Frame is base64 in the JSON encoding.
type FramePayload struct {
	Step  int    `json:"step"`
	Frame []byte `json:"frame"`
}

type StatusPayload struct {
	Phase sim.Phase `json:"phase"`
	Step  int       `json:"step"`
	Error string    `json:"error,omitempty"`
}
