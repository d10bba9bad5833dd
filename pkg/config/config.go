// Package config loads and validates imageflow configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (IMAGEFLOW_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pellucid/imageflow/internal/bytesize"
	"github.com/pellucid/imageflow/internal/logger"
)

// Config captures the static configuration of the imageflow CLI and the
// default collaborator wiring.
type Config struct {
	// Logging controls log output behavior
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// HTTP configures the network fetch collaborator
	HTTP HTTPConfig `mapstructure:"http" yaml:"http"`

	// MemoryCache configures the in-memory tier
	MemoryCache MemoryCacheConfig `mapstructure:"memory_cache" yaml:"memory_cache"`

	// DiskCache configures the persistent tier
	DiskCache DiskCacheConfig `mapstructure:"disk_cache" yaml:"disk_cache"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// HTTPConfig holds fetch settings.
type HTTPConfig struct {
	// Timeout bounds a single download
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"required,gt=0"`

	// MaxConcurrent caps simultaneous downloads (0 = unlimited)
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent" validate:"gte=0"`

	// UserAgent is sent with every request when non-empty
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// MemoryCacheConfig holds memory tier settings.
type MemoryCacheConfig struct {
	// Enabled turns the memory tier on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxSize bounds the estimated pixel bytes held (0 = unlimited)
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
}

// DiskCacheConfig holds disk tier settings.
type DiskCacheConfig struct {
	// Enabled turns the disk tier on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the BadgerDB directory
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`

	// TTL expires entries after this duration (0 = never)
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled initializes the metrics registry
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr serves /metrics when non-empty, e.g. ":9090"
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// GetDefaultConfig returns the configuration used when no file exists.
func GetDefaultConfig() *Config {
	return &Config{
		Logging: logger.Config{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			MaxConcurrent: 6,
			UserAgent:     "imageflow/1.0",
		},
		MemoryCache: MemoryCacheConfig{
			Enabled: true,
			MaxSize: 256 * bytesize.MiB,
		},
		DiskCache: DiskCacheConfig{
			Enabled: true,
			Path:    defaultCachePath(),
			TTL:     7 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// ApplyDefaults fills zero values with defaults after unmarshaling.
func ApplyDefaults(cfg *Config) {
	def := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = def.HTTP.Timeout
	}
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = def.HTTP.UserAgent
	}
	if cfg.DiskCache.Enabled && cfg.DiskCache.Path == "" {
		cfg.DiskCache.Path = def.DiskCache.Path
	}
}

// Validate checks the configuration using struct validation tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid value for %s: failed %q constraint", first.Namespace(), first.Tag())
		}
		return err
	}
	return nil
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to path in YAML.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// IMAGEFLOW_LOGGING_LEVEL=DEBUG overrides logging.level, and so on.
	v.SetEnvPrefix("IMAGEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines decode hooks for ByteSize and time.Duration so
// config files can use "256Mi" and "30s".
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML numbers frequently arrive as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// configDir returns $XDG_CONFIG_HOME/imageflow, falling back to
// ~/.config/imageflow, then the current directory.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imageflow")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "imageflow")
	}
	return "."
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func defaultCachePath() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "imageflow")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "imageflow")
	}
	return filepath.Join(os.TempDir(), "imageflow-cache")
}
