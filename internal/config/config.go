package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	BackendPeriph = "periph"
	BackendSim    = "sim"
)

type Config struct {
	APIBase string

	ReloadInterval    time.Duration
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	StartupRetryDelay time.Duration
	SettleDelay       time.Duration

	// Used when a door configuration omits its pulse bounds.
	DefaultMinPulse float64
	DefaultMaxPulse float64

	// Optional agent surfaces; empty disables.
	StatusAddr string
	HealthAddr string

	LogLevel  string
	LogFormat string // "console" | "json"

	Hardware HardwareConfig
	Sim      SimConfig
}

type HardwareConfig struct {
	Backend    string // "periph" | "sim"
	SPIPort    string
	SPISpeedHz int64
	ResetPin   string
}

type SimConfig struct {
	// DirectoryFile seeds an in-process directory instead of APIBase.
	DirectoryFile string
	TagsFromStdin bool
}

func Default() Config {
	return Config{
		APIBase:           "http://localhost:8080",
		ReloadInterval:    10 * time.Second,
		PollInterval:      200 * time.Millisecond,
		RequestTimeout:    5 * time.Second,
		StartupRetryDelay: 3 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		DefaultMinPulse:   types.DefaultMinPulse,
		DefaultMaxPulse:   types.DefaultMaxPulse,
		LogLevel:          "info",
		LogFormat:         "console",
		Hardware: HardwareConfig{
			Backend:    BackendPeriph,
			SPISpeedHz: 50000,
		},
		Sim: SimConfig{TagsFromStdin: true},
	}
}

type fileConfig struct {
	APIBase           string  `toml:"api_base"`
	ReloadInterval    string  `toml:"reload_interval"`
	PollInterval      string  `toml:"poll_interval"`
	RequestTimeout    string  `toml:"request_timeout"`
	StartupRetryDelay string  `toml:"startup_retry_delay"`
	SettleDelay       string  `toml:"settle_delay"`
	DefaultMinPulse   float64 `toml:"default_min_pulse"`
	DefaultMaxPulse   float64 `toml:"default_max_pulse"`
	StatusAddr        string  `toml:"status_addr"`
	HealthAddr        string  `toml:"health_addr"`
	LogLevel          string  `toml:"log_level"`
	LogFormat         string  `toml:"log_format"`

	Hardware struct {
		Backend    string `toml:"backend"`
		SPIPort    string `toml:"spi_port"`
		SPISpeedHz int64  `toml:"spi_speed_hz"`
		ResetPin   string `toml:"reset_pin"`
	} `toml:"hardware"`

	Sim struct {
		DirectoryFile string `toml:"directory_file"`
		TagsFromStdin bool   `toml:"tags_from_stdin"`
	} `toml:"sim"`
}

// Load builds the config from defaults, the optional TOML file at path,
// PORTUNUS_* environment variables and finally overrides, in that order.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("api_base") {
		cfg.APIBase = strings.TrimSpace(raw.APIBase)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"reload_interval", raw.ReloadInterval, &cfg.ReloadInterval},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"startup_retry_delay", raw.StartupRetryDelay, &cfg.StartupRetryDelay},
		{"settle_delay", raw.SettleDelay, &cfg.SettleDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("default_min_pulse") {
		cfg.DefaultMinPulse = raw.DefaultMinPulse
	}
	if meta.IsDefined("default_max_pulse") {
		cfg.DefaultMaxPulse = raw.DefaultMaxPulse
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("health_addr") {
		cfg.HealthAddr = strings.TrimSpace(raw.HealthAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	if meta.IsDefined("hardware", "backend") {
		cfg.Hardware.Backend = strings.ToLower(strings.TrimSpace(raw.Hardware.Backend))
	}
	if meta.IsDefined("hardware", "spi_port") {
		cfg.Hardware.SPIPort = strings.TrimSpace(raw.Hardware.SPIPort)
	}
	if meta.IsDefined("hardware", "spi_speed_hz") {
		cfg.Hardware.SPISpeedHz = raw.Hardware.SPISpeedHz
	}
	if meta.IsDefined("hardware", "reset_pin") {
		cfg.Hardware.ResetPin = strings.TrimSpace(raw.Hardware.ResetPin)
	}

	if meta.IsDefined("sim", "directory_file") {
		cfg.Sim.DirectoryFile = strings.TrimSpace(raw.Sim.DirectoryFile)
	}
	if meta.IsDefined("sim", "tags_from_stdin") {
		cfg.Sim.TagsFromStdin = raw.Sim.TagsFromStdin
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.APIBase = getenvDefault("PORTUNUS_API_BASE", cfg.APIBase)
	cfg.StatusAddr = getenvDefault("PORTUNUS_STATUS_ADDR", cfg.StatusAddr)
	cfg.HealthAddr = getenvDefault("PORTUNUS_HEALTH_ADDR", cfg.HealthAddr)
	cfg.LogLevel = getenvDefault("PORTUNUS_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("PORTUNUS_LOG_FORMAT", cfg.LogFormat)
	cfg.Hardware.Backend = strings.ToLower(getenvDefault("PORTUNUS_HARDWARE_BACKEND", cfg.Hardware.Backend))
	cfg.Hardware.SPIPort = getenvDefault("PORTUNUS_SPI_PORT", cfg.Hardware.SPIPort)
	cfg.Sim.DirectoryFile = getenvDefault("PORTUNUS_SIM_DIRECTORY_FILE", cfg.Sim.DirectoryFile)

	var err error
	if cfg.ReloadInterval, err = getenvDuration("PORTUNUS_RELOAD_INTERVAL", cfg.ReloadInterval); err != nil {
		return err
	}
	if cfg.PollInterval, err = getenvDuration("PORTUNUS_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return err
	}
	if cfg.RequestTimeout, err = getenvDuration("PORTUNUS_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return err
	}
	if cfg.DefaultMinPulse, err = getenvFloat("PORTUNUS_DEFAULT_MIN_PULSE", cfg.DefaultMinPulse); err != nil {
		return err
	}
	if cfg.DefaultMaxPulse, err = getenvFloat("PORTUNUS_DEFAULT_MAX_PULSE", cfg.DefaultMaxPulse); err != nil {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	if c.Hardware.Backend != BackendSim || c.Sim.DirectoryFile == "" {
		u, err := url.Parse(c.APIBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: api_base %q is not an absolute URL", ErrInvalidConfig, c.APIBase)
		}
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"reload_interval", c.ReloadInterval},
		{"poll_interval", c.PollInterval},
		{"request_timeout", c.RequestTimeout},
		{"startup_retry_delay", c.StartupRetryDelay},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle_delay must not be negative", ErrInvalidConfig)
	}
	if c.DefaultMinPulse <= 0 || c.DefaultMaxPulse <= c.DefaultMinPulse {
		return fmt.Errorf("%w: pulse bounds %.4f..%.4f", ErrInvalidConfig, c.DefaultMinPulse, c.DefaultMaxPulse)
	}
	switch c.Hardware.Backend {
	case BackendPeriph, BackendSim:
	default:
		return fmt.Errorf("%w: hardware backend %q", ErrInvalidConfig, c.Hardware.Backend)
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return f, nil
}
