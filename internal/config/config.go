// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/rocev2/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `rocev2:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Transmit TransmitConfig `mapstructure:"transmit"`
	Capture  CaptureConfig  `mapstructure:"capture"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // debug / info / warn / error
	Format     string           `mapstructure:"format"`      // text / json / pattern
	Pattern    string           `mapstructure:"pattern"`     // used when format=pattern
	TimeFormat string           `mapstructure:"time_format"` // Go reference layout
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Transmit ───

// TransmitConfig controls how crafted frames are sent.
type TransmitConfig struct {
	Interface string `mapstructure:"interface"`
	Count     int    `mapstructure:"count"` // passes over the frames, 0 = until cancelled
	PPS       int    `mapstructure:"pps"`   // frames per second, 0 = unpaced
}

// ─── Capture ───

// CaptureConfig controls live capture for verification.
type CaptureConfig struct {
	Interface    string `mapstructure:"interface"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	UDPPort      int    `mapstructure:"udp_port"`
}

// ─── Loading ───

// rootKey is the YAML root wrapper. Env vars map through the key replacer,
// e.g. "rocev2.log.level" → ROCEV2_LOG_LEVEL.
const rootKey = "rocev2"

type configRoot struct {
	RoCEv2 GlobalConfig `mapstructure:"rocev2"`
}

// Key returns the viper key of a setting below the root, e.g. Key("log.level").
func Key(path string) string {
	return rootKey + "." + path
}

// New returns a viper instance with defaults and env overrides applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load loads configuration from file. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*GlobalConfig, error) {
	return LoadWithFlags(path, nil, nil)
}

// LoadWithFlags is Load with command line flags layered on top. bindings maps
// a key below the root to the flag name that overrides it.
func LoadWithFlags(path string, flags *pflag.FlagSet, bindings map[string]string) (*GlobalConfig, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("%w: no flag %q to bind to %s", core.ErrConfigInvalid, name, key)
		}
		if err := v.BindPFlag(Key(key), f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.RoCEv2

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "rocev2." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault(Key("log.level"), "info")
	v.SetDefault(Key("log.format"), "text")
	v.SetDefault(Key("log.pattern"), "%time [%level] %caller: %msg%n")
	v.SetDefault(Key("log.time_format"), "2006-01-02 15:04:05.000")
	v.SetDefault(Key("log.outputs.file.enabled"), false)
	v.SetDefault(Key("log.outputs.file.path"), "/var/log/rocev2/rocev2.log")
	v.SetDefault(Key("log.outputs.file.rotation.max_size_mb"), 100)
	v.SetDefault(Key("log.outputs.file.rotation.max_age_days"), 30)
	v.SetDefault(Key("log.outputs.file.rotation.max_backups"), 5)
	v.SetDefault(Key("log.outputs.file.rotation.compress"), true)

	// Metrics defaults
	v.SetDefault(Key("metrics.enabled"), false)
	v.SetDefault(Key("metrics.listen"), ":9092")
	v.SetDefault(Key("metrics.path"), "/metrics")

	// Transmit defaults
	v.SetDefault(Key("transmit.interface"), "")
	v.SetDefault(Key("transmit.count"), 1)
	v.SetDefault(Key("transmit.pps"), 0)

	// Capture defaults
	v.SetDefault(Key("capture.interface"), "")
	v.SetDefault(Key("capture.snap_len"), 9216)
	v.SetDefault(Key("capture.buffer_size_mb"), 8)
	v.SetDefault(Key("capture.timeout_ms"), 100)
	v.SetDefault(Key("capture.udp_port"), 4791)
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults
// that viper cannot express.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	case "pattern":
		if cfg.Log.Pattern == "" {
			return fmt.Errorf("%w: log.pattern is required when log.format=pattern", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid log format: %s (must be text/json/pattern)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			cfg.Metrics.Path = "/" + cfg.Metrics.Path
		}
	}

	// ── Transmit validation ──
	if cfg.Transmit.Count < 0 {
		return fmt.Errorf("%w: transmit.count must not be negative, got %d", core.ErrConfigInvalid, cfg.Transmit.Count)
	}
	if cfg.Transmit.PPS < 0 {
		return fmt.Errorf("%w: transmit.pps must not be negative, got %d", core.ErrConfigInvalid, cfg.Transmit.PPS)
	}

	// ── Capture validation ──
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("%w: capture.snap_len must be positive, got %d", core.ErrConfigInvalid, cfg.Capture.SnapLen)
	}
	if cfg.Capture.BufferSizeMB <= 0 {
		return fmt.Errorf("%w: capture.buffer_size_mb must be positive, got %d", core.ErrConfigInvalid, cfg.Capture.BufferSizeMB)
	}
	if cfg.Capture.UDPPort <= 0 || cfg.Capture.UDPPort > 0xffff {
		return fmt.Errorf("%w: capture.udp_port out of range: %d", core.ErrConfigInvalid, cfg.Capture.UDPPort)
	}
	return nil
}
