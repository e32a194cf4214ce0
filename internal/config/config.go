// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `nfd:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig     `mapstructure:"log"`
	Capture CaptureConfig `mapstructure:"capture"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Symbols are decoded separately and strictly; see decodeSymbols.
	Symbols []SymbolConfig `mapstructure:"-"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`       // trace / debug / info / warn / error
	Format     string           `mapstructure:"format"`      // text / json
	Pattern    string           `mapstructure:"pattern"`     // text format only
	TimeFormat string           `mapstructure:"time_format"` // Go reference layout
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stdout is always on.
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

// ─── Capture ───

// CaptureConfig selects the frame source. At most one of Interface and
// PcapFile may be set.
type CaptureConfig struct {
	Interface    string `mapstructure:"interface"`
	PcapFile     string `mapstructure:"pcap_file"`
	Engine       string `mapstructure:"engine"` // afpacket / ethernet, live capture only
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"` // afpacket ring size
	TimeoutMs    int    `mapstructure:"timeout_ms"`     // afpacket poll timeout
	Promiscuous  bool   `mapstructure:"promiscuous"`    // ethernet engine only
	IPv4Only     bool   `mapstructure:"ipv4_only"`      // kernel filter, live capture only
	MaxFrames    int    `mapstructure:"max_frames"`     // 0 = unlimited
}

// Live capture engines.
const (
	EngineAFPacket = "afpacket"
	EngineEthernet = "ethernet"
)

// ─── Runtime ───

// RuntimeConfig controls the receive-process loop.
type RuntimeConfig struct {
	FrameIdentifier      string `mapstructure:"frame_identifier"`
	StopOnNotImplemented bool   `mapstructure:"stop_on_not_implemented"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `nfd: ...`.
type configRoot struct {
	NFD GlobalConfig `mapstructure:"nfd"`
}

// Load loads configuration from file. An empty path yields defaults plus
// environment overrides (NFD_LOG_LEVEL, NFD_CAPTURE_INTERFACE, ...).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `nfd.` key prefix maps to `NFD_` in env vars via the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.NFD

	symbols, err := decodeSymbols(v.Get("nfd.symbols"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode symbols: %w", err)
	}
	cfg.Symbols = symbols

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("nfd.log.level", "info")
	v.SetDefault("nfd.log.format", "text")
	v.SetDefault("nfd.log.pattern", "%time [%level] %field %msg%n")
	v.SetDefault("nfd.log.time_format", "2006-01-02 15:04:05")
	v.SetDefault("nfd.log.outputs.file.enabled", false)
	v.SetDefault("nfd.log.outputs.file.path", "/var/log/nfd/nfd.log")
	v.SetDefault("nfd.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("nfd.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("nfd.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("nfd.log.outputs.file.rotation.compress", true)

	// Capture defaults
	v.SetDefault("nfd.capture.interface", "")
	v.SetDefault("nfd.capture.pcap_file", "")
	v.SetDefault("nfd.capture.engine", EngineAFPacket)
	v.SetDefault("nfd.capture.snap_len", 65535)
	v.SetDefault("nfd.capture.buffer_size_mb", 8)
	v.SetDefault("nfd.capture.timeout_ms", 100)
	v.SetDefault("nfd.capture.promiscuous", false)
	v.SetDefault("nfd.capture.ipv4_only", false)
	v.SetDefault("nfd.capture.max_frames", 0)

	// Runtime defaults
	v.SetDefault("nfd.runtime.frame_identifier", "f")
	v.SetDefault("nfd.runtime.stop_on_not_implemented", false)

	// Metrics defaults
	v.SetDefault("nfd.metrics.enabled", false)
	v.SetDefault("nfd.metrics.listen", ":9092")
	v.SetDefault("nfd.metrics.path", "/metrics")
}

// decodeSymbols decodes the `symbols` list. Unlike the rest of the file,
// unknown keys here are errors: a misspelt literal field would otherwise
// silently declare an uninitialized variable.
func decodeSymbols(raw interface{}) ([]SymbolConfig, error) {
	if raw == nil {
		return nil, nil
	}
	var out []SymbolConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Capture validation ──
	if cfg.Capture.Interface != "" && cfg.Capture.PcapFile != "" {
		return fmt.Errorf("capture.interface and capture.pcap_file are mutually exclusive")
	}
	cfg.Capture.Engine = strings.ToLower(cfg.Capture.Engine)
	switch cfg.Capture.Engine {
	case "":
		cfg.Capture.Engine = EngineAFPacket
	case EngineAFPacket, EngineEthernet:
	default:
		return fmt.Errorf("invalid capture.engine: %s (must be afpacket/ethernet)", cfg.Capture.Engine)
	}
	if cfg.Capture.Promiscuous && cfg.Capture.Engine != EngineEthernet {
		return fmt.Errorf("capture.promiscuous requires capture.engine=ethernet")
	}
	if cfg.Capture.SnapLen <= 0 {
		cfg.Capture.SnapLen = 65535
	}
	if cfg.Capture.BufferSizeMB <= 0 {
		cfg.Capture.BufferSizeMB = 8
	}
	if cfg.Capture.TimeoutMs <= 0 {
		cfg.Capture.TimeoutMs = 100
	}
	if cfg.Capture.MaxFrames < 0 {
		return fmt.Errorf("invalid capture.max_frames: %d", cfg.Capture.MaxFrames)
	}

	// ── Runtime ──
	if cfg.Runtime.FrameIdentifier == "" {
		cfg.Runtime.FrameIdentifier = "f"
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	// ── Symbols ──
	seen := make(map[string]bool, len(cfg.Symbols))
	for i := range cfg.Symbols {
		s := &cfg.Symbols[i]
		if s.ID == "" {
			return fmt.Errorf("symbols[%d]: id is required", i)
		}
		if s.ID == cfg.Runtime.FrameIdentifier {
			return fmt.Errorf("symbols[%d]: %q is reserved for the current frame", i, s.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("symbols[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if err := s.Literal.validate(); err != nil {
			return fmt.Errorf("symbols[%d] %q: %w", i, s.ID, err)
		}
	}

	return nil
}
