// Package config implements the three-layer configuration load spec.md
// §4.2/§6 describes: built-in defaults, an optional line-oriented
// "FALLPAPER_SECTION_FIELD=value" file, then environment variables of the
// same shape overriding the file when set to a non-empty value. It keeps
// the teacher's viper-based load exactly (SetDefault/SetEnvPrefix/
// AutomaticEnv/ReadInConfig), generalized from a flat struct to the
// database/scheduler/runner groups spec.md names, and the file format
// widened from YAML to viper's "env" config type — which is backed by
// subosito/gotenv, itself already pulled in transitively by viper and a
// byte-for-byte match for spec.md's "KEY=value, values optionally
// double-quoted, # comments" file grammar.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	fperrors "github.com/fallpaper/fallpaper/pkg/errors"
)

const envPrefix = "FALLPAPER"

// Database groups store-layer options (spec.md §4.2).
type Database struct {
	Path         string `mapstructure:"path" validate:"required"`
	QueryLogging bool   `mapstructure:"query-logging"`
	Tracing      bool   `mapstructure:"tracing"`
}

// Scheduler groups cron-scheduler and run-processor options (spec.md §4.2).
type Scheduler struct {
	PollCron             string `mapstructure:"poll-cron" validate:"required"`
	StaleRunTimeoutSec   int    `mapstructure:"stale-run-timeout-sec" validate:"min=1"`
	MaxPendingRunsPerTick int   `mapstructure:"max-pending-runs-per-tick" validate:"min=1"`
	RetryBackoffBaseSec  int    `mapstructure:"retry-backoff-base-sec" validate:"min=1"`
}

// Runner groups the fetch/download/process pipeline's options (spec.md §4.2).
type Runner struct {
	ImageDir           string `mapstructure:"image-dir" validate:"required"`
	TempDir            string `mapstructure:"temp-dir" validate:"required"`
	MaxConcurrent      int    `mapstructure:"max-concurrent-downloads" validate:"min=1"`
	MinSpeedBytesPerSec int64 `mapstructure:"min-speed-bytes-per-sec" validate:"min=1"`
	SlowSpeedTimeoutMs int    `mapstructure:"slow-speed-timeout-ms" validate:"min=1"`
	SpeedCheckIntervalMs int  `mapstructure:"speed-check-interval-ms" validate:"min=1"`
	RequestTimeoutMs   int    `mapstructure:"request-timeout-ms" validate:"min=1"`
}

// Config is the immutable, fully-resolved configuration snapshot.
type Config struct {
	Database  Database  `mapstructure:"database"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Runner    Runner    `mapstructure:"runner"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", ".fallpaper/fallpaper.db")
	v.SetDefault("database.query-logging", false)
	v.SetDefault("database.tracing", false)

	v.SetDefault("scheduler.poll-cron", "* * * * *")
	v.SetDefault("scheduler.stale-run-timeout-sec", 1800)
	v.SetDefault("scheduler.max-pending-runs-per-tick", 5)
	v.SetDefault("scheduler.retry-backoff-base-sec", 30)

	v.SetDefault("runner.image-dir", ".fallpaper/images")
	v.SetDefault("runner.temp-dir", ".fallpaper/tmp")
	v.SetDefault("runner.max-concurrent-downloads", 4)
	v.SetDefault("runner.min-speed-bytes-per-sec", 10*1024)
	v.SetDefault("runner.slow-speed-timeout-ms", 15_000)
	v.SetDefault("runner.speed-check-interval-ms", 1_000)
	v.SetDefault("runner.request-timeout-ms", 60_000)
}

// Load builds the layered snapshot: defaults, then configPath if non-empty
// and present, then environment variables prefixed FALLPAPER_.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if !isFileNotFoundErr(err) {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
		} else {
			mergeFileKeys(v)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFileKeys rewrites the raw FALLPAPER_SECTION_FIELD keys the "env"
// parser loads verbatim into the dotted section.field keys Unmarshal
// expects, mirroring what AutomaticEnv+SetEnvKeyReplacer does for the
// environment-variable layer but applied to file-sourced keys.
func mergeFileKeys(v *viper.Viper) {
	prefix := envPrefix + "_"
	for _, key := range v.AllKeys() {
		lower := strings.ToLower(key)
		if !strings.HasPrefix(lower, strings.ToLower(prefix)) {
			continue
		}
		trimmed := strings.TrimPrefix(lower, strings.ToLower(prefix))
		dotted := toDottedKey(trimmed)
		// SetDefault, not Set, so an environment variable still wins over
		// the file value.
		v.SetDefault(dotted, v.Get(key))
	}
}

// toDottedKey turns SCHEDULER_POLL_CRON into scheduler.poll-cron by treating
// the first underscore-delimited segment as the section name and the rest
// as a hyphenated field name.
func toDottedKey(key string) string {
	parts := strings.SplitN(strings.ToLower(key), "_", 2)
	if len(parts) != 2 {
		return strings.ToLower(key)
	}
	return parts[0] + "." + strings.ReplaceAll(parts[1], "_", "-")
}

func isFileNotFoundErr(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// Validate runs struct-tag validation over the decoded config, surfacing
// failures as errors.ValidationError (spec.md §7).
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fperrors.Validation("config", err.Error())
	}
	if c.Runner.MaxConcurrent < 1 {
		return fperrors.Validation("runner.max-concurrent-downloads", "must be positive")
	}
	return nil
}

// Snapshot is the atomic, process-wide configuration handle. Load produces
// an immutable *Config; Snapshot swaps pointers so readers never observe a
// partially-updated struct.
type Snapshot struct {
	ptr atomic.Pointer[Config]
}

// NewSnapshot wraps an initial Config.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the current immutable Config.
func (s *Snapshot) Get() *Config {
	return s.ptr.Load()
}

// Reload builds a new Config from the same configPath/env layering and
// atomically swaps it in, per spec.md §4.2's "reload produces a new
// immutable snapshot and atomically swaps it into process-wide state".
func (s *Snapshot) Reload(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	s.ptr.Store(cfg)
	return nil
}
