package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/robosim/backend/internal/config"
	"github.com/robosim/backend/internal/maps"
	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
	"github.com/robosim/backend/internal/stats"
	"github.com/robosim/backend/internal/ws"
)

// ProducerFactory builds the frame producer for a validated start
// request. Swapped out in mock mode.
type ProducerFactory func(params *simconfig.Params, world *simconfig.WorldConfig) (sim.Producer, error)

type Server struct {
	cfg         *config.Config
	registry    *sim.Registry
	worlds      *simconfig.Manager
	maps        *maps.Store
	broadcaster *ws.Broadcaster
	tracker     *stats.Tracker
	newProducer ProducerFactory
	wsHandler   *ws.Handler
	frontend    http.Handler
}

func NewServer(cfg *config.Config, registry *sim.Registry, worlds *simconfig.Manager, mapStore *maps.Store, broadcaster *ws.Broadcaster, tracker *stats.Tracker, factory ProducerFactory) *Server {
	return &Server{
		cfg:         cfg,
		registry:    registry,
		worlds:      worlds,
		maps:        mapStore,
		broadcaster: broadcaster,
		tracker:     tracker,
		newProducer: factory,
		wsHandler:   ws.NewHandler(broadcaster, cfg.Server.AllowedOrigins),
	}
}

// SetFrontend configures the handler serving the operator UI. Must be
// called before SetupRoutes.
func (s *Server) SetFrontend(h http.Handler) {
	s.frontend = h
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.Handle("/ws", s.wsHandler)
	mux.HandleFunc("/api/simulation/start", s.handleStart)
	mux.HandleFunc("/api/simulation/pause", s.handlePause)
	mux.HandleFunc("/api/simulation/stop", s.handleStop)
	mux.HandleFunc("/api/simulation", s.handleSession)
	mux.HandleFunc("/api/maps", s.handleMaps)
	mux.HandleFunc("/api/maps/", s.handleMapImage)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)

	if s.frontend != nil {
		mux.Handle("/", s.frontend)
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// The UI posts {paused: true|false}; a missing body means pause,
	// anything unparseable is a bad request.
	body := struct {
		Paused *bool `json:"paused"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("decoding request: %v", err))
		return
	}
	paused := body.Paused == nil || *body.Paused

	var err error
	status := "paused"
	if paused {
		err = s.registry.Pause()
	} else {
		err = s.registry.Resume()
		status = "resumed"
	}
	if err != nil {
		writeControlError(w, err)
		return
	}

	runner, _ := s.registry.Current()
	if runner != nil {
		s.broadcaster.PublishStatus(runner.Phase(), runner.Step(), "")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.registry.Stop(); err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleSession reports the current session so the UI can rebuild its
// state on reload.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := struct {
		Phase  sim.Phase   `json:"phase"`
		Step   int         `json:"step"`
		Config *sim.Config `json:"config,omitempty"`
	}{Phase: sim.Idle, Step: -1}

	if runner, ok := s.registry.Current(); ok {
		cfg := runner.Config()
		resp.Phase = runner.Phase()
		resp.Step = runner.Step()
		resp.Config = &cfg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names, err := s.maps.List()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"maps": names})
}

func (s *Server) handleMapImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/maps/")
	data, err := s.maps.Read(name)
	switch {
	case errors.Is(err, maps.ErrBadName):
		httpError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, maps.ErrNotFound):
		httpError(w, http.StatusNotFound, fmt.Sprintf("map not found: %s", name))
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

// writeControlError maps sim sentinels onto the conflict/invalid/internal
// split the API promises.
func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrNoActiveSession), errors.Is(err, sim.ErrAlreadyRunning):
		httpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, simconfig.ErrInvalid):
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		httpError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// securityHeaders adds the standard hardening headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server on host:port.
func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("api: listening on %s", addr)
	return http.ListenAndServe(addr, securityHeaders(mux))
}
