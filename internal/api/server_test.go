package api

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robosim/backend/internal/config"
	"github.com/robosim/backend/internal/maps"
	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
	"github.com/robosim/backend/internal/stats"
	"github.com/robosim/backend/internal/ws"
)

// scriptedProducer emits frames then completes or fails, like the sim
// package's test double but local to the API tests.
type scriptedProducer struct {
	mu        sync.Mutex
	maxFrames int
	failAt    int
	failErr   error
	steps     int
	done      bool
}

func (p *scriptedProducer) Step() sim.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return sim.CompletedOutcome()
	}
	if p.failErr != nil && p.steps == p.failAt {
		p.done = true
		return sim.FailedOutcome(p.failErr)
	}
	if p.steps >= p.maxFrames {
		p.done = true
		return sim.CompletedOutcome()
	}
	step := p.steps
	p.steps++
	return sim.FrameOutcome(step, []byte("frame-bytes"))
}

func (p *scriptedProducer) Close() {}

func scriptedFactory(maxFrames int) ProducerFactory {
	return func(*simconfig.Params, *simconfig.WorldConfig) (sim.Producer, error) {
		return &scriptedProducer{maxFrames: maxFrames}, nil
	}
}

type testEnv struct {
	srv     *httptest.Server
	tracker *stats.Tracker
	mapsDir string
}

func newTestEnv(t *testing.T, factory ProducerFactory) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Sim: config.SimConfig{
			PacingInterval: config.Duration(time.Millisecond),
			MaxSteps:       1000,
			MapsDir:        filepath.Join(dir, "maps"),
			WorldConfig:    filepath.Join(dir, "world.yaml"),
		},
	}
	if err := os.MkdirAll(cfg.Sim.MapsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	registry := sim.NewRegistry()
	tracker := stats.NewTracker()
	server := NewServer(cfg, registry,
		simconfig.NewManager(cfg.Sim.WorldConfig),
		maps.NewStore(cfg.Sim.MapsDir),
		ws.NewBroadcaster(registry),
		tracker, factory)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, tracker: tracker, mapsDir: cfg.Sim.MapsDir}
}

func startBody() *bytes.Buffer {
	return bytes.NewBufferString(`{
		"map_name": "site.png",
		"robot_count": 1,
		"robot_position": {"x": 100, "y": 500},
		"survivors": [{"x": 700, "y": 100}]
	}`)
}

// readStream collects every SSE data payload until the stream closes.
func readStream(t *testing.T, resp *http.Response) []streamEvent {
	t.Helper()
	defer resp.Body.Close()

	var out []streamEvent
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad stream payload %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(3))

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{{{"},
		{"zero robots", `{"map_name":"a.png","robot_count":0,"robot_position":{"x":1,"y":1}}`},
		{"missing position", `{"map_name":"a.png","robot_count":1}`},
		{"missing map", `{"robot_count":1,"robot_position":{"x":1,"y":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, env.srv.URL+"/api/simulation/start", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestStartStreamsToCompletion(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(3))

	resp, err := http.Post(env.srv.URL+"/api/simulation/start", "application/json", startBody())
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readStream(t, resp)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4 (3 frames + completed)", len(events))
	}
	for i, ev := range events[:3] {
		if ev.Step == nil || *ev.Step != i {
			t.Errorf("frame %d: step = %v", i, ev.Step)
		}
		decoded, err := base64.StdEncoding.DecodeString(ev.Frame)
		if err != nil {
			t.Fatalf("frame %d: not base64: %v", i, err)
		}
		if string(decoded) != "frame-bytes" {
			t.Errorf("frame %d: payload = %q", i, decoded)
		}
	}
	if events[3].Status != "completed" {
		t.Errorf("terminal event = %+v, want completed", events[3])
	}

	s := env.tracker.Snapshot()
	if s.TotalSessions != 1 || s.Completed != 1 || s.FramesDelivered != 3 {
		t.Errorf("stats after run = %+v", s)
	}
}

func TestStartReportsEngineFailure(t *testing.T) {
	env := newTestEnv(t, func(*simconfig.Params, *simconfig.WorldConfig) (sim.Producer, error) {
		return &scriptedProducer{maxFrames: 100, failAt: 2, failErr: fmt.Errorf("wheel fell off")}, nil
	})

	resp := postJSON(t, env.srv.URL+"/api/simulation/start", startBody().String())
	events := readStream(t, resp)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (2 frames + error)", len(events))
	}
	last := events[2]
	if last.Error == "" || !strings.Contains(last.Error, "wheel fell off") {
		t.Errorf("terminal event = %+v, want error with reason", last)
	}
}

func TestStartConflict(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1<<20))

	first, err := http.Post(env.srv.URL+"/api/simulation/start", "application/json", startBody())
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer first.Body.Close()

	// Wait until the first session is live.
	reader := bufio.NewReader(first.Body)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("reading first stream: %v", err)
	}

	second := postJSON(t, env.srv.URL+"/api/simulation/start", startBody().String())
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", second.StatusCode)
	}

	stop := postJSON(t, env.srv.URL+"/api/simulation/stop", "")
	defer stop.Body.Close()
	if stop.StatusCode != http.StatusOK {
		t.Errorf("stop status = %d, want 200", stop.StatusCode)
	}
}

func TestControlWithoutSession(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1))

	tests := []struct {
		path string
		body string
	}{
		{"/api/simulation/pause", `{"paused": true}`},
		{"/api/simulation/pause", `{"paused": false}`},
		{"/api/simulation/stop", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path+tt.body, func(t *testing.T) {
			resp := postJSON(t, env.srv.URL+tt.path, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusConflict {
				t.Errorf("status = %d, want 409", resp.StatusCode)
			}
		})
	}
}

func TestPauseResumeCycle(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1<<20))

	resp, err := http.Post(env.srv.URL+"/api/simulation/start", "application/json", startBody())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	pause := postJSON(t, env.srv.URL+"/api/simulation/pause", `{"paused": true}`)
	var body map[string]string
	json.NewDecoder(pause.Body).Decode(&body)
	pause.Body.Close()
	if pause.StatusCode != http.StatusOK || body["status"] != "paused" {
		t.Errorf("pause = %d %v, want 200 paused", pause.StatusCode, body)
	}

	// While paused, the session snapshot reflects it.
	snap, err := http.Get(env.srv.URL + "/api/simulation")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	var sess struct {
		Phase sim.Phase `json:"phase"`
	}
	json.NewDecoder(snap.Body).Decode(&sess)
	snap.Body.Close()
	if sess.Phase != sim.Paused {
		t.Errorf("session phase = %v, want paused", sess.Phase)
	}

	resume := postJSON(t, env.srv.URL+"/api/simulation/pause", `{"paused": false}`)
	json.NewDecoder(resume.Body).Decode(&body)
	resume.Body.Close()
	if resume.StatusCode != http.StatusOK || body["status"] != "resumed" {
		t.Errorf("resume = %d %v, want 200 resumed", resume.StatusCode, body)
	}

	stop := postJSON(t, env.srv.URL+"/api/simulation/stop", "")
	stop.Body.Close()
}

func TestPauseRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1<<20))

	resp, err := http.Post(env.srv.URL+"/api/simulation/start", "application/json", startBody())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer resp.Body.Close()
	if _, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil {
		t.Fatalf("reading stream: %v", err)
	}

	bad := postJSON(t, env.srv.URL+"/api/simulation/pause", `{"paused": "yes"}`)
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed pause body status = %d, want 400", bad.StatusCode)
	}

	// The session must be untouched by the rejected request.
	snap, err := http.Get(env.srv.URL + "/api/simulation")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	var sess struct {
		Phase sim.Phase `json:"phase"`
	}
	json.NewDecoder(snap.Body).Decode(&sess)
	snap.Body.Close()
	if sess.Phase != sim.Running {
		t.Errorf("session phase after bad pause = %v, want running", sess.Phase)
	}

	stop := postJSON(t, env.srv.URL+"/api/simulation/stop", "")
	stop.Body.Close()
}

func TestSessionSnapshotIdle(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1))

	resp, err := http.Get(env.srv.URL + "/api/simulation")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp.Body.Close()

	var sess struct {
		Phase  sim.Phase   `json:"phase"`
		Step   int         `json:"step"`
		Config *sim.Config `json:"config"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if sess.Phase != sim.Idle || sess.Step != -1 || sess.Config != nil {
		t.Errorf("idle snapshot = %+v", sess)
	}
}

func TestMapEndpoints(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1))

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.mapsDir, "site.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := http.Get(env.srv.URL + "/api/maps")
	if err != nil {
		t.Fatalf("GET maps: %v", err)
	}
	var names map[string][]string
	json.NewDecoder(list.Body).Decode(&names)
	list.Body.Close()
	if len(names["maps"]) != 1 || names["maps"][0] != "site.png" {
		t.Errorf("maps list = %v, want [site.png]", names)
	}

	imgResp, err := http.Get(env.srv.URL + "/api/maps/site.png")
	if err != nil {
		t.Fatalf("GET map image: %v", err)
	}
	defer imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusOK {
		t.Errorf("map image status = %d, want 200", imgResp.StatusCode)
	}
	if ct := imgResp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("map Content-Type = %q, want image/png", ct)
	}

	missing, err := http.Get(env.srv.URL + "/api/maps/ghost.png")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing map status = %d, want 404", missing.StatusCode)
	}

	bad, err := http.Get(env.srv.URL + "/api/maps/sub/evil.png")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("nested map name status = %d, want 400", bad.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, scriptedFactory(1))

	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if h.Status != "healthy" || h.Service != "robosim-backend" {
		t.Errorf("health = %+v", h)
	}
}

// TestStartWithEngine runs the real engine/renderer end to end with a
// goal-less world, so the step ceiling ends the session.
func TestStartWithEngine(t *testing.T) {
	env := newEngineEnv(t, 5)

	resp := postJSON(t, env.srv.URL+"/api/simulation/start", `{
		"map_name": "site.png",
		"robot_count": 1,
		"robot_position": {"x": 400, "y": 300},
		"survivors": []
	}`)
	events := readStream(t, resp)
	if len(events) != 6 {
		t.Fatalf("got %d events, want 6 (5 frames + completed)", len(events))
	}
	if events[5].Status != "completed" {
		t.Errorf("terminal = %+v, want completed", events[5])
	}

	frame, err := base64.StdEncoding.DecodeString(events[0].Frame)
	if err != nil {
		t.Fatalf("frame not base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(frame)); err != nil {
		t.Errorf("frame not valid PNG: %v", err)
	}
}

func newEngineEnv(t *testing.T, maxSteps int) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1"},
		Sim: config.SimConfig{
			PacingInterval: config.Duration(time.Millisecond),
			MaxSteps:       maxSteps,
			MapsDir:        filepath.Join(dir, "maps"),
			WorldConfig:    filepath.Join(dir, "world.yaml"),
		},
	}
	if err := os.MkdirAll(cfg.Sim.MapsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	registry := sim.NewRegistry()
	tracker := stats.NewTracker()
	mapStore := maps.NewStore(cfg.Sim.MapsDir)
	server := NewServer(cfg, registry,
		simconfig.NewManager(cfg.Sim.WorldConfig),
		mapStore,
		ws.NewBroadcaster(registry),
		tracker,
		EngineFactory(mapStore, maxSteps))

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, tracker: tracker, mapsDir: cfg.Sim.MapsDir}
}
