package chain

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the executor's configuration surface.
type Config struct {
	Mode                        Mode          `yaml:"exception_handling_mode"`
	EnablePerformanceMonitoring bool          `yaml:"enable_performance_monitoring"`
	EnableVerboseLogging        bool          `yaml:"enable_verbose_logging"`
	PropagateErrors             bool          `yaml:"propagate_errors"`
	HandlerTimeout              time.Duration `yaml:"handler_timeout"`
	Retry                       *RetryPolicy  `yaml:"retry"`
	Order                       []string      `yaml:"order"`
}

// DefaultConfig returns break mode with performance monitoring on.
func DefaultConfig() Config {
	return Config{
		Mode:                        BreakPipeline,
		EnablePerformanceMonitoring: true,
	}
}

// Validate reports configuration values the executor cannot honour.
func (c Config) Validate() error {
	var errs []error
	if c.Mode != BreakPipeline && c.Mode != ContinuePipeline {
		errs = append(errs, fmt.Errorf("unsupported exception handling mode %s", c.Mode))
	}
	if c.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("handler_timeout must not be negative, got %s", c.HandlerTimeout))
	}
	if r := c.Retry; r != nil {
		if r.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", r.MaxAttempts))
		}
		if r.Delay < 0 || r.MaxDelay < 0 {
			errs = append(errs, errors.New("retry delays must not be negative"))
		}
	}
	return errors.Join(errs...)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}
