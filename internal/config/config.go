// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/slotarena/internal/diag"
	slotErrors "github.com/23skdu/slotarena/internal/errors"
	"github.com/23skdu/slotarena/internal/memory"
)

// Prefix is the environment variable prefix, e.g. SLOTARENA_PROFILE.
const Prefix = "SLOTARENA"

// Config validation errors
var (
	ErrInvalidProfile       = errors.New("profile must be 'debug' or 'release'")
	ErrInvalidFatalPolicy   = errors.New("fatal_policy must be propagate, panic, exit or empty")
	ErrInvalidLogFormat     = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel      = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidLogBackend    = errors.New("log_backend must be 'zerolog' or 'zap'")
	ErrInvalidDiagRate      = errors.New("diag_rate cannot be negative")
	ErrInvalidArenaName     = errors.New("arena_name cannot be empty")
	ErrInvalidArenaCapacity = errors.New("arena_capacity must be positive")
	ErrInvalidArenaBacking  = errors.New("arena_backing must be 'heap' or 'mmap'")
	ErrInvalidSlotSize      = errors.New("pool_slot_size must be positive")
	ErrInvalidPoolCapacity  = errors.New("pool_capacity must be positive")
	ErrInvalidPoolTypeTag   = errors.New("pool_type_tag cannot be empty")
)

// Config is the full set of tunables for the slotarena tooling.
type Config struct {
	Profile     string `envconfig:"PROFILE" default:"debug"`
	FatalPolicy string `envconfig:"FATAL_POLICY" default:""` // empty follows the profile

	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogBackend string `envconfig:"LOG_BACKEND" default:"zerolog"`

	DiagRate  float64 `envconfig:"DIAG_RATE" default:"0"` // 0 means unlimited
	DiagBurst int     `envconfig:"DIAG_BURST" default:"0"`

	ArenaName     string `envconfig:"ARENA_NAME" default:"main"`
	ArenaCapacity int    `envconfig:"ARENA_CAPACITY" default:"1048576"`
	ArenaBacking  string `envconfig:"ARENA_BACKING" default:"heap"`

	PoolSlotSize int    `envconfig:"POOL_SLOT_SIZE" default:"32"`
	PoolCapacity int    `envconfig:"POOL_CAPACITY" default:"1024"`
	PoolTypeTag  string `envconfig:"POOL_TYPE_TAG" default:"object"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:""` // empty disables the endpoint
}

// DefaultConfig returns the configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Profile:       "debug",
		LogFormat:     "json",
		LogLevel:      "info",
		LogBackend:    "zerolog",
		ArenaName:     "main",
		ArenaCapacity: 1 << 20,
		ArenaBacking:  "heap",
		PoolSlotSize:  32,
		PoolCapacity:  1024,
		PoolTypeTag:   "object",
	}
}

// Load reads the given .env files, if they exist, and then the process
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func Validate(cfg *Config) error {
	if _, err := diag.ParseProfile(cfg.Profile); err != nil {
		return ErrInvalidProfile
	}
	if _, err := slotErrors.ParsePolicy(cfg.FatalPolicy); err != nil {
		return ErrInvalidFatalPolicy
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	if cfg.LogBackend != "zerolog" && cfg.LogBackend != "zap" {
		return ErrInvalidLogBackend
	}
	if cfg.DiagRate < 0 {
		return ErrInvalidDiagRate
	}
	if cfg.ArenaName == "" {
		return ErrInvalidArenaName
	}
	if cfg.ArenaCapacity <= 0 {
		return ErrInvalidArenaCapacity
	}
	if _, err := memory.ParseBacking(cfg.ArenaBacking); err != nil {
		return ErrInvalidArenaBacking
	}
	if cfg.PoolSlotSize <= 0 {
		return ErrInvalidSlotSize
	}
	if cfg.PoolCapacity <= 0 {
		return ErrInvalidPoolCapacity
	}
	if cfg.PoolTypeTag == "" {
		return ErrInvalidPoolTypeTag
	}
	return nil
}

// Env builds the memory environment the configuration describes: the profile
// filters sink, the fatal policy overrides the profile's when set, and the
// sink is rate limited when DiagRate is positive.
func (c *Config) Env(sink diag.Sink) (*memory.Env, error) {
	profile, err := diag.ParseProfile(c.Profile)
	if err != nil {
		return nil, err
	}
	env := memory.NewEnv(diag.RateLimited(sink, c.DiagRate, c.DiagBurst), profile)
	if c.FatalPolicy != "" {
		policy, err := slotErrors.ParsePolicy(c.FatalPolicy)
		if err != nil {
			return nil, err
		}
		env.WithPolicy(policy)
	}
	return env.WithMetrics(c.MetricsAddr != ""), nil
}

// Backing returns the parsed arena backing.
func (c *Config) Backing() memory.Backing {
	b, _ := memory.ParseBacking(c.ArenaBacking)
	return b
}
