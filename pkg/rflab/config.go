package rflab

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Buffer capacity limits
const (
	// MaxPulses is the pulse buffer ceiling
	MaxPulses = 4096

	// MinPulses is the pulse buffer floor
	MinPulses = 1024

	// MaxFrames is the frame buffer capacity
	MaxFrames = 256

	// DefaultStreamingK is the streaming clustering default
	DefaultStreamingK = 3
)

// Config defines runtime core parameters.
type Config struct {
	// Session
	SessionName string

	// Capacities
	PulseCapacity uint16 // 1024-4096 pulses retained per session

	// Streaming clustering
	StreamingK uint8 // target cluster count, 1-5

	// Quick per-frame paths
	QuickAssessEnabled bool

	// Logger receives engine diagnostics (optional, not serialized)
	Logger *slog.Logger `json:"-"`

	// Registerer receives core metrics (optional, not serialized)
	Registerer prometheus.Registerer `json:"-"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		SessionName:        "capture",
		PulseCapacity:      MaxPulses,
		StreamingK:         DefaultStreamingK,
		QuickAssessEnabled: true,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PulseCapacity < MinPulses || c.PulseCapacity > MaxPulses {
		return fmt.Errorf("%w: pulse capacity %d outside [%d, %d]",
			ErrInvalidConfig, c.PulseCapacity, MinPulses, MaxPulses)
	}
	if c.StreamingK == 0 || c.StreamingK > 5 {
		return fmt.Errorf("%w: streaming k %d outside [1, 5]",
			ErrInvalidConfig, c.StreamingK)
	}
	return nil
}

// --- JSON Configuration File Types ---

// ConfigFile represents the JSON configuration file structure
type ConfigFile struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Created     time.Time `json:"created"`

	Session    SessionConfigJSON    `json:"session"`
	Buffers    BufferConfigJSON     `json:"buffers"`
	Clustering ClusteringConfigJSON `json:"clustering"`
	Analysis   AnalysisConfigJSON   `json:"analysis"`
}

// SessionConfigJSON names the capture session
type SessionConfigJSON struct {
	Name string `json:"name"`
}

// BufferConfigJSON sizes the capture buffers
type BufferConfigJSON struct {
	PulseCapacity uint16 `json:"pulse_capacity"`
}

// ClusteringConfigJSON holds streaming clustering settings
type ClusteringConfigJSON struct {
	StreamingK uint8 `json:"streaming_k"`
}

// AnalysisConfigJSON toggles per-frame quick paths
type AnalysisConfigJSON struct {
	QuickAssessEnabled bool `json:"quick_assess_enabled"`
}

// LoadConfigFile loads core configuration from a JSON file
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ConfigFile
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks the configuration file for errors
func (c *ConfigFile) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("%w: %s", ErrConfigVersion, c.Version)
	}
	if c.Buffers.PulseCapacity != 0 &&
		(c.Buffers.PulseCapacity < MinPulses || c.Buffers.PulseCapacity > MaxPulses) {
		return fmt.Errorf("%w: pulse capacity %d", ErrInvalidConfig, c.Buffers.PulseCapacity)
	}
	if c.Clustering.StreamingK > 5 {
		return fmt.Errorf("%w: streaming k %d", ErrInvalidConfig, c.Clustering.StreamingK)
	}
	return nil
}

// ToConfig converts the JSON config to a runtime Config
func (c *ConfigFile) ToConfig() *Config {
	cfg := DefaultConfig()

	if c.Session.Name != "" {
		cfg.SessionName = c.Session.Name
	}
	if c.Buffers.PulseCapacity != 0 {
		cfg.PulseCapacity = c.Buffers.PulseCapacity
	}
	if c.Clustering.StreamingK != 0 {
		cfg.StreamingK = c.Clustering.StreamingK
	}
	cfg.QuickAssessEnabled = c.Analysis.QuickAssessEnabled

	return cfg
}

// SaveConfigFile saves core configuration to a JSON file
func SaveConfigFile(config *ConfigFile, path string) error {
	config.Created = time.Now()

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
