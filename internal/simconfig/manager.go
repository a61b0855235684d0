package simconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults for the derived per-robot parameters. Pulled into the config
// so an operator can tune them per robot after the fact.
const (
	defaultMaxSpeed    = 1.0  // m/s
	defaultMaxTurn     = 2.0  // rad/s
	defaultSensorRange = 0.2  // m, goal arrival radius
	robotRadius        = 0.15 // m
	survivorRadius     = 0.1  // m
)

var robotPalette = []string{
	"#00d9ff", "#00ff88", "#ff6b00", "#ff00ff", "#ffff00",
	"#00ffff", "#ff0088", "#88ff00", "#0088ff", "#ff8800",
}

// WorldConfig is the persisted world description the engine is built
// from.
type WorldConfig struct {
	World     World      `yaml:"world"`
	Robots    []Robot    `yaml:"robot"`
	Obstacles []Obstacle `yaml:"obstacle"`
}

type World struct {
	Height        float64   `yaml:"height"`
	Width         float64   `yaml:"width"`
	StepTime      float64   `yaml:"step_time"`
	SampleTime    float64   `yaml:"sample_time"`
	Offset        []float64 `yaml:"offset,flow"`
	CollisionMode string    `yaml:"collision_mode"`
	ObstacleMap   string    `yaml:"obstacle_map,omitempty"`
}

type Kinematics struct {
	Name string `yaml:"name"`
}

type Shape struct {
	Name   string  `yaml:"name"`
	Radius float64 `yaml:"radius,omitempty"`
}

type Behavior struct {
	Name string `yaml:"name"`
}

type Robot struct {
	Kinematics  Kinematics  `yaml:"kinematics"`
	Shape       Shape       `yaml:"shape"`
	State       []float64   `yaml:"state,flow"` // [x y theta] in meters
	Goals       [][]float64 `yaml:"goal,flow"`  // ordered [x y theta] goals
	Behavior    Behavior    `yaml:"behavior"`
	Color       string      `yaml:"color"`
	MaxSpeed    float64     `yaml:"max_speed"`
	MaxTurn     float64     `yaml:"max_turn"`
	SensorRange float64     `yaml:"sensor_range"`
}

type Obstacle struct {
	Shape Shape     `yaml:"shape"`
	State []float64 `yaml:"state,flow"`
}

// Manager loads, builds, and persists the world config YAML.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Path() string {
	return m.path
}

// EnsureExists writes a default config when none is present yet.
func (m *Manager) EnsureExists() error {
	if _, err := os.Stat(m.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return m.Save(DefaultConfig())
}

// DefaultConfig is an empty 8x6m world with no robots or obstacles.
func DefaultConfig() *WorldConfig {
	return &WorldConfig{
		World: World{
			Height:        float64(CanvasHeight) / PxPerMeter,
			Width:         float64(CanvasWidth) / PxPerMeter,
			StepTime:      0.1,
			SampleTime:    0.1,
			Offset:        []float64{0, 0},
			CollisionMode: "stop",
		},
	}
}

func (m *Manager) Load() (*WorldConfig, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("reading world config: %w", err)
	}
	cfg := &WorldConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing world config: %w", err)
	}
	return cfg, nil
}

func (m *Manager) Save(cfg *WorldConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding world config: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing world config: %w", err)
	}
	return nil
}

// Update rebuilds the world description from a validated start request
// and persists it. Every robot starts at the requested position and
// visits the survivor points in order; survivors also appear as static
// circle obstacles so the renderer can draw them.
func (m *Manager) Update(p *Params) (*WorldConfig, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.World.ObstacleMap = p.MapName

	goals := make([][]float64, 0, len(p.Survivors))
	for _, s := range p.Survivors {
		gx, gy := s.Meters()
		goals = append(goals, []float64{gx, gy, 0})
	}

	sx, sy := p.RobotPosition.Meters()
	cfg.Robots = make([]Robot, 0, p.RobotCount)
	for i := 0; i < p.RobotCount; i++ {
		cfg.Robots = append(cfg.Robots, Robot{
			Kinematics:  Kinematics{Name: "diff"},
			Shape:       Shape{Name: "circle", Radius: robotRadius},
			State:       []float64{sx, sy, 0},
			Goals:       goals,
			Behavior:    Behavior{Name: "dash"},
			Color:       RobotColor(i),
			MaxSpeed:    defaultMaxSpeed,
			MaxTurn:     defaultMaxTurn,
			SensorRange: defaultSensorRange,
		})
	}

	cfg.Obstacles = make([]Obstacle, 0, len(p.Survivors))
	for _, s := range p.Survivors {
		ox, oy := s.Meters()
		cfg.Obstacles = append(cfg.Obstacles, Obstacle{
			Shape: Shape{Name: "circle", Radius: survivorRadius},
			State: []float64{ox, oy, 0},
		})
	}

	if err := m.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RobotColor returns the palette color for the i-th robot.
func RobotColor(i int) string {
	return robotPalette[i%len(robotPalette)]
}
