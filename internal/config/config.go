// Package config loads the simulator configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/firesat/internal/logging"
	"github.com/signalsfoundry/firesat/internal/messaging"
	"github.com/signalsfoundry/firesat/internal/observability"
	"github.com/signalsfoundry/firesat/internal/tle"
	"github.com/signalsfoundry/firesat/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Bus kinds.
const (
	BusNATS   = "nats"
	BusMemory = "memory"
)

// Config is the complete simulator configuration.
type Config struct {
	Prefix string               `yaml:"prefix"`
	Bus    string               `yaml:"bus"`
	NATS   messaging.NATSConfig `yaml:"nats"`

	Simulation SimulationConfig  `yaml:"simulation"`
	Satellites []SatelliteConfig `yaml:"satellites"`

	// TLEFile is consulted for satellites without inline element sets.
	TLEFile     string `yaml:"tle_file"`
	FiresFile   string `yaml:"fires_file"`
	GroundsFile string `yaml:"grounds_file"`
	// GeoJSONFile, when set, receives every footprint reported during the run.
	GeoJSONFile string `yaml:"geojson_file"`

	Listen  ListenConfig                `yaml:"listen"`
	Logging logging.Config              `yaml:"logging"`
	Tracing observability.TracingConfig `yaml:"tracing"`
}

// SimulationConfig controls the driver.
type SimulationConfig struct {
	Start    time.Time     `yaml:"start"`
	Duration time.Duration `yaml:"duration"`
	TimeStep time.Duration `yaml:"time_step"`
	// TimeScale is simulated seconds per wall-clock second; 0 runs as fast
	// as possible.
	TimeScale      float64       `yaml:"time_scale"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// SatelliteConfig describes one constellation member.
type SatelliteConfig struct {
	Name          string  `yaml:"name"`
	NoradID       int     `yaml:"norad_id"`
	FieldOfRegard float64 `yaml:"field_of_regard"`
	TLE1          string  `yaml:"tle1"`
	TLE2          string  `yaml:"tle2"`

	// Position pins the satellite in place instead of propagating it.
	Position *model.GeographicPosition `yaml:"position"`
}

// ListenConfig holds server addresses. Empty disables the server.
type ListenConfig struct {
	Metrics string `yaml:"metrics"`
	GRPC    string `yaml:"grpc"`
	HTTP    string `yaml:"http"`
}

// Default returns the configuration used when a field is not set.
func Default() Config {
	return Config{
		Prefix: messaging.DefaultPrefix,
		Bus:    BusNATS,
		NATS: messaging.NATSConfig{
			Name:          "firesat-constellation",
			ConnectWait:   5 * time.Second,
			ReconnectWait: 2 * time.Second,
		},
		Simulation: SimulationConfig{
			Duration:       24 * time.Hour,
			TimeStep:       10 * time.Second,
			TimeScale:      60,
			StatusInterval: time.Minute,
		},
		Listen: ListenConfig{
			Metrics: ":9090",
			GRPC:    ":50051",
			HTTP:    ":8080",
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays FIRESAT_* variables, LOG_LEVEL/LOG_FORMAT and the
// tracing variables onto the configuration.
func (c *Config) ApplyEnv() error {
	setString(&c.Prefix, "FIRESAT_PREFIX")
	setString(&c.Bus, "FIRESAT_BUS")
	setString(&c.NATS.URL, "FIRESAT_NATS_URL")
	setString(&c.TLEFile, "FIRESAT_TLE_FILE")
	setString(&c.FiresFile, "FIRESAT_FIRES_FILE")
	setString(&c.GroundsFile, "FIRESAT_GROUNDS_FILE")
	setString(&c.GeoJSONFile, "FIRESAT_GEOJSON_FILE")
	setString(&c.Listen.Metrics, "FIRESAT_METRICS_ADDR")
	setString(&c.Listen.GRPC, "FIRESAT_GRPC_ADDR")
	setString(&c.Listen.HTTP, "FIRESAT_HTTP_ADDR")

	if raw := os.Getenv("FIRESAT_SIM_START"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("FIRESAT_SIM_START: %w", err)
		}
		c.Simulation.Start = start
	}
	if raw := os.Getenv("FIRESAT_SIM_DURATION"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("FIRESAT_SIM_DURATION: %w", err)
		}
		c.Simulation.Duration = d
	}
	if raw := os.Getenv("FIRESAT_TIME_STEP"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("FIRESAT_TIME_STEP: %w", err)
		}
		c.Simulation.TimeStep = d
	}
	if raw := os.Getenv("FIRESAT_TIME_SCALE"); raw != "" {
		scale, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("FIRESAT_TIME_SCALE: %w", err)
		}
		c.Simulation.TimeScale = scale
	}

	c.Logging = logging.ConfigFromEnv(c.Logging)
	c.Tracing = observability.ApplyTracingEnv(c.Tracing)
	return nil
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" {
		return fmt.Errorf("%w: prefix is empty", ErrInvalid)
	}
	switch c.Bus {
	case BusNATS, BusMemory:
	default:
		return fmt.Errorf("%w: unknown bus %q", ErrInvalid, c.Bus)
	}
	if c.Simulation.TimeStep <= 0 {
		return fmt.Errorf("%w: simulation.time_step must be positive", ErrInvalid)
	}
	if c.Simulation.TimeScale < 0 {
		return fmt.Errorf("%w: simulation.time_scale must not be negative", ErrInvalid)
	}
	if c.Simulation.Duration < 0 {
		return fmt.Errorf("%w: simulation.duration must not be negative", ErrInvalid)
	}
	if len(c.Satellites) == 0 {
		return fmt.Errorf("%w: no satellites configured", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Satellites))
	for i, s := range c.Satellites {
		if s.Name == "" {
			return fmt.Errorf("%w: satellite %d has no name", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate satellite name %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if s.FieldOfRegard <= 0 || s.FieldOfRegard > 180 {
			return fmt.Errorf("%w: satellite %q field_of_regard %v outside (0, 180]", ErrInvalid, s.Name, s.FieldOfRegard)
		}
		hasTLE := s.TLE1 != "" || s.TLE2 != ""
		if hasTLE && (s.TLE1 == "" || s.TLE2 == "") {
			return fmt.Errorf("%w: satellite %q needs both TLE lines", ErrInvalid, s.Name)
		}
		if !hasTLE && s.Position == nil && (s.NoradID == 0 || c.TLEFile == "") {
			return fmt.Errorf("%w: satellite %q has no TLE, position or catalogue entry", ErrInvalid, s.Name)
		}
	}
	return nil
}

// StartTime returns the configured start, or now truncated to the second
// when unset.
func (c Config) StartTime(now time.Time) time.Time {
	if c.Simulation.Start.IsZero() {
		return now.UTC().Truncate(time.Second)
	}
	return c.Simulation.Start.UTC()
}

// SatelliteDefinitions resolves the satellites in configuration order.
// Inline TLE lines win over a fixed position, which wins over the
// catalogue lookup.
func (c Config) SatelliteDefinitions(catalog *tle.Catalog) ([]model.SatelliteDefinition, error) {
	defs := make([]model.SatelliteDefinition, 0, len(c.Satellites))
	for i, s := range c.Satellites {
		def := model.SatelliteDefinition{
			ID:            i,
			NoradID:       s.NoradID,
			Name:          s.Name,
			FieldOfRegard: s.FieldOfRegard,
		}
		switch {
		case s.TLE1 != "" && s.TLE2 != "":
			def.Source = model.PropagationSourceTLE
			def.TLE1, def.TLE2 = s.TLE1, s.TLE2
		case s.Position != nil:
			def.Source = model.PropagationSourceStatic
			def.Position = *s.Position
		default:
			entry, err := catalog.Lookup(s.NoradID)
			if err != nil {
				return nil, fmt.Errorf("satellite %q: %w", s.Name, err)
			}
			def.Source = model.PropagationSourceTLE
			def.TLE1, def.TLE2 = entry.Line1, entry.Line2
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
