// Package config provides configuration management for facenet-api.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the HTTP port used when none is configured.
	DefaultPort = 80

	// DefaultModelPath is resolved relative to the working directory.
	DefaultModelPath = "facenet.onnx"

	// DefaultImageSize is the FaceNet input width and height.
	DefaultImageSize = 160

	// DefaultMaxBodyBytes caps request bodies (base64 inflates images by ~4/3).
	DefaultMaxBodyBytes = 20 << 20
)

// Environment variables that override file settings.
const (
	EnvPort        = "PORT"
	EnvModelPath   = "FACENET_MODEL_PATH"
	EnvLibraryPath = "FACENET_ORT_LIBRARY"
	EnvLogLevel    = "FACENET_LOG_LEVEL"
)

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig describes the ONNX model and runtime.
type ModelConfig struct {
	Path string `yaml:"path"`
	// LibraryPath points at libonnxruntime; empty uses the runtime's default lookup.
	LibraryPath string `yaml:"library_path"`
	// InputName and OutputName select model slots; empty picks the first declared.
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
	// Sessions is the number of independent execution contexts.
	Sessions       int `yaml:"sessions"`
	IntraOpThreads int `yaml:"intra_op_threads"`
}

// PreprocessConfig controls image normalisation.
type PreprocessConfig struct {
	Size   int    `yaml:"size"`
	Layout string `yaml:"layout"` // "nhwc" or "nchw"
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              DefaultPort,
			MaxBodyBytes:      DefaultMaxBodyBytes,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Model: ModelConfig{
			Path:     DefaultModelPath,
			Sessions: 1,
		},
		Preprocess: PreprocessConfig{
			Size:   DefaultImageSize,
			Layout: "nhwc",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvLibraryPath); v != "" {
		c.Model.LibraryPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if c.Model.Sessions < 1 {
		return fmt.Errorf("model.sessions must be at least 1, got %d", c.Model.Sessions)
	}
	if c.Model.IntraOpThreads < 0 {
		return fmt.Errorf("model.intra_op_threads must not be negative")
	}
	if c.Preprocess.Size < 1 {
		return fmt.Errorf("preprocess.size must be at least 1, got %d", c.Preprocess.Size)
	}
	switch strings.ToLower(c.Preprocess.Layout) {
	case "nhwc", "nchw":
	default:
		return fmt.Errorf("unknown preprocess.layout %q", c.Preprocess.Layout)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
