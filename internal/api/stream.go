package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
)

// streamEvent is the wire shape of one SSE data line. Exactly one of
// Frame, Status, or Error is set.
type streamEvent struct {
	Frame  string `json:"frame,omitempty"`
	Step   *int   `json:"step,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleStart creates a session and streams its events back on the same
// connection as Server-Sent Events. The response ends right after the
// terminal event; closing the request aborts the session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var params simconfig.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	if err := params.Validate(); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	world, err := s.worlds.Update(&params)
	if err != nil {
		writeControlError(w, err)
		return
	}

	producer, err := s.newProducer(&params, world)
	if err != nil {
		httpError(w, http.StatusInternalServerError, fmt.Sprintf("initializing simulation: %v", err))
		return
	}

	cfg := sim.Config{
		MapName:    params.MapName,
		RobotCount: params.RobotCount,
		GoalCount:  len(params.Survivors),
		MaxSteps:   s.cfg.Sim.MaxSteps,
	}
	runner, events, err := s.registry.Start(r.Context(), producer, cfg, sim.Options{
		Pacing: s.cfg.Sim.PacingInterval.Std(),
	})
	if err != nil {
		producer.Close()
		writeControlError(w, err)
		return
	}

	log.Printf("api: session started: map=%s robots=%d goals=%d",
		params.MapName, params.RobotCount, len(params.Survivors))
	s.tracker.SessionStarted()
	s.broadcaster.PublishStatus(sim.Running, -1, "")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		s.writeStreamEvent(w, flusher, ev)
		s.mirror(ev, runner)
	}

	phase := runner.Phase()
	frames := runner.Step() + 1
	s.tracker.SessionEnded(phase, frames)
	log.Printf("api: session ended: phase=%s frames=%d", phase, frames)
}

func (s *Server) writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, ev sim.Event) {
	var out streamEvent
	switch ev.Type {
	case sim.EventFrame:
		step := ev.Step
		out = streamEvent{
			Frame: base64.StdEncoding.EncodeToString(ev.Frame),
			Step:  &step,
		}
	case sim.EventCompleted:
		out = streamEvent{Status: "completed"}
	case sim.EventStopped:
		out = streamEvent{Status: "stopped"}
	case sim.EventFailed:
		out = streamEvent{Error: ev.Err.Error()}
	}

	data, err := json.Marshal(out)
	if err != nil {
		log.Printf("api: encoding stream event: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// mirror forwards the event to spectators and the stats counters.
func (s *Server) mirror(ev sim.Event, runner *sim.Runner) {
	switch ev.Type {
	case sim.EventFrame:
		s.tracker.FrameDelivered()
		s.broadcaster.PublishFrame(ev.Step, ev.Frame)
	case sim.EventFailed:
		s.broadcaster.PublishStatus(sim.Failed, runner.Step(), ev.Err.Error())
	case sim.EventCompleted:
		s.broadcaster.PublishStatus(sim.Completed, runner.Step(), "")
	case sim.EventStopped:
		s.broadcaster.PublishStatus(sim.Stopped, runner.Step(), "")
	}
}
