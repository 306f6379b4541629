package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/me/galaxyprobe/internal/engine"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/watcher"
)

// EnvPrefix prefixes every environment variable the prober reads.
const EnvPrefix = "GALAXYPROBE"

// ProbeConfig holds configuration for a probe or watch run.
type ProbeConfig struct {
	URL     string        `mapstructure:"url"`     // Service base URL
	APIKey  string        `mapstructure:"api_key"` // Sent as x-api-key
	History string        `mapstructure:"history"` // History name, created when missing
	Timeout time.Duration `mapstructure:"timeout"` // Per-request HTTP timeout

	JournalDir  string `mapstructure:"journal_dir"` // Where *_incorrect_combination.json files go
	DBPath      string `mapstructure:"db"`          // SQLite ledger path, "" disables the ledger
	CatalogPath string `mapstructure:"catalog"`     // Data table catalog (YAML or JSON)

	PollInterval  time.Duration `mapstructure:"poll_interval"`  // Between job state checks
	RetryInterval time.Duration `mapstructure:"retry_interval"` // After a transport failure while polling
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`   // 0 waits forever
	WatchInterval time.Duration `mapstructure:"watch_interval"` // Between watcher rounds
	WatchBackoff  time.Duration `mapstructure:"watch_backoff"`  // Before rebuilding the worklist

	MaxBuildAttempts   int     `mapstructure:"max_build_attempts"`   // 0 exhausts the candidates
	MaxConcurrentTools int     `mapstructure:"max_concurrent_tools"` // 0 is unbounded
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`  // Client throttle, 0 disables
	Burst              int     `mapstructure:"burst"`

	Filter                string `mapstructure:"filter"`                 // JavaScript expression over a combination
	IDPlaceholder         string `mapstructure:"id_placeholder"`         // Journaled in place of dataset ids
	InvocationPlaceholder string `mapstructure:"invocation_placeholder"` // Journaled in place of invocation uuids

	Addr      string `mapstructure:"addr"`       // Status server listen address
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // text, json
}

// DefaultProbeConfig returns sensible defaults.
func DefaultProbeConfig() ProbeConfig {
	gc := galaxy.DefaultConfig()
	ec := engine.DefaultConfig()
	wc := watcher.DefaultConfig()
	return ProbeConfig{
		URL:                   gc.URL,
		History:               "galaxyprobe",
		Timeout:               gc.Timeout,
		JournalDir:            ".",
		DBPath:                defaultDBPath(),
		PollInterval:          ec.PollInterval,
		RetryInterval:         ec.RetryInterval,
		WatchInterval:         wc.Interval,
		WatchBackoff:          wc.Backoff,
		RequestsPerSecond:     gc.RequestsPerSecond,
		Burst:                 gc.Burst,
		IDPlaceholder:         ec.Placeholders["id"].(string),
		InvocationPlaceholder: ec.Placeholders["__workflow_invocation_uuid__"].(string),
		Addr:                  ":8090",
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "galaxyprobe.db"
	}
	return filepath.Join(home, ".galaxyprobe", "galaxyprobe.db")
}

// SetDefaults registers the defaults with v so that environment variables
// are picked up for every key.
func SetDefaults(v *viper.Viper) {
	d := DefaultProbeConfig()
	v.SetDefault("url", d.URL)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("history", d.History)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("journal_dir", d.JournalDir)
	v.SetDefault("db", d.DBPath)
	v.SetDefault("catalog", d.CatalogPath)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("retry_interval", d.RetryInterval)
	v.SetDefault("poll_timeout", d.PollTimeout)
	v.SetDefault("watch_interval", d.WatchInterval)
	v.SetDefault("watch_backoff", d.WatchBackoff)
	v.SetDefault("max_build_attempts", d.MaxBuildAttempts)
	v.SetDefault("max_concurrent_tools", d.MaxConcurrentTools)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("burst", d.Burst)
	v.SetDefault("filter", d.Filter)
	v.SetDefault("id_placeholder", d.IDPlaceholder)
	v.SetDefault("invocation_placeholder", d.InvocationPlaceholder)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Load reads configuration from path (optional), GALAXYPROBE_* environment
// variables and whatever flags were bound to v, in increasing precedence.
func Load(v *viper.Viper, path string) (ProbeConfig, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ProbeConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg ProbeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ProbeConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ProbeConfig{}, err
	}
	return cfg, nil
}

// Validate checks the fields every command depends on.
func (c ProbeConfig) Validate() error {
	var errs []error
	u, err := url.Parse(c.URL)
	if c.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("url: %q is not an absolute URL", c.URL))
	}
	for name, d := range map[string]time.Duration{
		"poll_interval":  c.PollInterval,
		"retry_interval": c.RetryInterval,
		"watch_interval": c.WatchInterval,
		"watch_backoff":  c.WatchBackoff,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %s", name, d))
		}
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("poll_timeout: must not be negative, got %s", c.PollTimeout))
	}
	if c.MaxBuildAttempts < 0 || c.MaxConcurrentTools < 0 || c.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Galaxy returns the service client settings.
func (c ProbeConfig) Galaxy() galaxy.Config {
	gc := galaxy.DefaultConfig().WithURL(c.URL).WithAPIKey(c.APIKey)
	if c.Timeout > 0 {
		gc.Timeout = c.Timeout
	}
	gc.RequestsPerSecond = c.RequestsPerSecond
	if c.Burst > 0 {
		gc.Burst = c.Burst
	}
	return gc
}

// Engine returns the execution engine settings.
func (c ProbeConfig) Engine() engine.Config {
	return engine.Config{
		PollInterval:  c.PollInterval,
		RetryInterval: c.RetryInterval,
		PollTimeout:   c.PollTimeout,
		Placeholders: map[string]any{
			"id":                           c.IDPlaceholder,
			"__workflow_invocation_uuid__": c.InvocationPlaceholder,
		},
	}
}

// Watcher returns the history watcher settings.
func (c ProbeConfig) Watcher() watcher.Config {
	return watcher.Config{Interval: c.WatchInterval, Backoff: c.WatchBackoff}
}
