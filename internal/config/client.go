package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the waiter client's runtime settings.
type ClientConfig struct {
	Address        string        // initial server, ip[:port] or URL; empty means scan
	Port           int           // default POS port
	RequestTimeout time.Duration // per REST call
	HealthTimeout  time.Duration // per discovery probe
	ScanTimeout    time.Duration // whole LAN scan
	ScanBatch      int           // concurrent probes per batch
	ScanPause      time.Duration // pause between batches
	StateBackend   string        // file | redis
	StateDir       string
	LogLevel       string
	LogFormat      string // text | json
	WSAttempts     int
	WSDialTimeout  time.Duration
	Redis          RedisConfig
}

// LoadClient builds the client configuration from the environment.  When
// WAITER_CONFIG names a YAML file its values override the environment.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		Address:        envStr("POS_ADDRESS", ""),
		Port:           envInt("POS_PORT", 4000),
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),
		HealthTimeout:  envDur("HEALTH_TIMEOUT", 2*time.Second),
		ScanTimeout:    envDur("SCAN_TIMEOUT", 90*time.Second),
		ScanBatch:      envInt("SCAN_BATCH", 5),
		ScanPause:      envDur("SCAN_PAUSE", 50*time.Millisecond),
		StateBackend:   envStr("STATE_BACKEND", "file"),
		StateDir:       envStr("STATE_DIR", defaultStateDir()),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "text"),
		WSAttempts:     envInt("WS_ATTEMPTS", 3),
		WSDialTimeout:  envDur("WS_DIAL_TIMEOUT", 5*time.Second),
		Redis:          LoadRedisConfig(),
	}
	if path := os.Getenv("WAITER_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return ClientConfig{}, err
		}
	}
	return cfg, cfg.validate()
}

// overlay decodes a YAML file over cfg.  Durations are written as Go
// duration strings ("5s").
func (c *ClientConfig) overlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var f struct {
		Address        *string `yaml:"address"`
		Port           *int    `yaml:"port"`
		RequestTimeout *string `yaml:"request_timeout"`
		HealthTimeout  *string `yaml:"health_timeout"`
		ScanTimeout    *string `yaml:"scan_timeout"`
		ScanBatch      *int    `yaml:"scan_batch"`
		ScanPause      *string `yaml:"scan_pause"`
		StateBackend   *string `yaml:"state_backend"`
		StateDir       *string `yaml:"state_dir"`
		LogLevel       *string `yaml:"log_level"`
		LogFormat      *string `yaml:"log_format"`
		WSAttempts     *int    `yaml:"ws_attempts"`
		WSDialTimeout  *string `yaml:"ws_dial_timeout"`
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	setStr(&c.Address, f.Address)
	setInt(&c.Port, f.Port)
	setInt(&c.ScanBatch, f.ScanBatch)
	setInt(&c.WSAttempts, f.WSAttempts)
	setStr(&c.StateBackend, f.StateBackend)
	setStr(&c.StateDir, f.StateDir)
	setStr(&c.LogLevel, f.LogLevel)
	setStr(&c.LogFormat, f.LogFormat)
	for _, d := range []struct {
		dst *time.Duration
		src *string
		key string
	}{
		{&c.RequestTimeout, f.RequestTimeout, "request_timeout"},
		{&c.HealthTimeout, f.HealthTimeout, "health_timeout"},
		{&c.ScanTimeout, f.ScanTimeout, "scan_timeout"},
		{&c.ScanPause, f.ScanPause, "scan_pause"},
		{&c.WSDialTimeout, f.WSDialTimeout, "ws_dial_timeout"},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func (c ClientConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ScanBatch < 1 {
		return fmt.Errorf("config: scan_batch must be positive")
	}
	switch c.StateBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: unknown state_backend %q", c.StateBackend)
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "pos-waiter"
	}
	return ".pos-waiter"
}

func setStr(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst, src *int) {
	if src != nil {
		*dst = *src
	}
}
