package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "50ms" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Sim    SimConfig    `yaml:"sim"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SimConfig struct {
	// PacingInterval is the minimum spacing between frame deliveries.
	PacingInterval Duration `yaml:"pacing_interval"`
	// MaxSteps is the hard step ceiling; a session always completes by
	// then even if the engine never reports done.
	MaxSteps int `yaml:"max_steps"`
	// MapsDir holds the PNG map images operators pick from.
	MapsDir string `yaml:"maps_dir"`
	// WorldConfig is where the per-session world YAML is persisted.
	WorldConfig string `yaml:"world_config"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Sim: SimConfig{
			PacingInterval: Duration(50 * time.Millisecond),
			MaxSteps:       1000,
			MapsDir:        "maps",
			WorldConfig:    "config/simulation_config.yaml",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Sim.MaxSteps <= 0 {
		return nil, fmt.Errorf("sim.max_steps must be positive, got %d", cfg.Sim.MaxSteps)
	}
	if cfg.Sim.PacingInterval <= 0 {
		return nil, fmt.Errorf("sim.pacing_interval must be positive, got %v", cfg.Sim.PacingInterval.Std())
	}
	return cfg, nil
}
