// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads xyweb configuration from defaults, a YAML or TOML
// file, XYWEB_ environment variables and command line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/xybot/xyweb/internal/logging"
	"github.com/xybot/xyweb/internal/xdg"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: XYWEB_STORE__REDIS__ADDR sets store.redis.addr.
const EnvPrefix = "XYWEB_"

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete xyweb configuration.
type Config struct {
	LogFormat   string      `koanf:"log_format" yaml:"log_format"`
	LogLevel    string      `koanf:"log_level" yaml:"log_level"`
	MetricsAddr string      `koanf:"metrics_addr" yaml:"metrics_addr"`
	HTTP        HTTPConfig  `koanf:"http" yaml:"http"`
	Store       StoreConfig `koanf:"store" yaml:"store"`
	Auth        AuthConfig  `koanf:"auth" yaml:"auth"`
}

// HTTPConfig configures the web API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Backend   string         `koanf:"backend" yaml:"backend"`
	KeyPrefix string         `koanf:"key_prefix" yaml:"key_prefix"`
	Redis     RedisConfig    `koanf:"redis" yaml:"redis"`
	Postgres  PostgresConfig `koanf:"postgres" yaml:"postgres"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr         string        `koanf:"addr" yaml:"addr"`
	Username     string        `koanf:"username" yaml:"username"`
	Password     string        `koanf:"password" yaml:"password"`
	DB           int           `koanf:"db" yaml:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
}

// PostgresConfig configures the PostgreSQL connection.
type PostgresConfig struct {
	URL           string        `koanf:"url" yaml:"url"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
	AutoMigrate   bool          `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// AuthConfig tunes the authority.
type AuthConfig struct {
	TokenExpireHours             float64 `koanf:"token_expire_hours" yaml:"token_expire_hours"`
	HashConcurrency              int     `koanf:"hash_concurrency" yaml:"hash_concurrency"`
	RevokeTokensOnPasswordChange bool    `koanf:"revoke_tokens_on_password_change" yaml:"revoke_tokens_on_password_change"`
}

// TokenTTL converts TokenExpireHours to a duration.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenExpireHours * float64(time.Hour))
}

// Defaults returns the built-in configuration values as koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"log_format":                            "json",
		"log_level":                             "info",
		"metrics_addr":                          "",
		"http.addr":                             "0.0.0.0:8080",
		"http.cors_origins":                     []string{"*"},
		"http.shutdown_timeout":                 "10s",
		"store.backend":                         BackendRedis,
		"store.key_prefix":                      "xybot:web",
		"store.redis.addr":                      "127.0.0.1:6379",
		"store.redis.username":                  "",
		"store.redis.password":                  "",
		"store.redis.db":                        0,
		"store.redis.dial_timeout":              "5s",
		"store.redis.read_timeout":              "3s",
		"store.redis.write_timeout":             "3s",
		"store.postgres.url":                    "",
		"store.postgres.sweep_interval":         "10m",
		"store.postgres.auto_migrate":           true,
		"auth.token_expire_hours":               24,
		"auth.hash_concurrency":                 0,
		"auth.revoke_tokens_on_password_change": false,
	}
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":    "log_format",
	"log-level":     "log_level",
	"metrics-addr":  "metrics_addr",
	"http-addr":     "http.addr",
	"store-backend": "store.backend",
}

// RegisterFlags adds the configuration override flags to fs. Their
// defaults are empty so only explicitly set flags override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "observability listen address, empty to disable")
	fs.String("http-addr", "", "web API listen address")
	fs.String("store-backend", "", "credential store backend (redis, postgres, memory)")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path of the config file. Empty means the XDG default, which may be absent.
	Path string
	// DotEnv is loaded into the process environment when it exists.
	// Defaults to ".env".
	DotEnv string
	// Flags holds flags registered with RegisterFlags. Optional.
	Flags *pflag.FlagSet
}

// Load builds a validated Config.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns XYWEB_STORE__REDIS__ADDR into store.redis.addr.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "http.cors_origins" {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return oops.Code("CONFIG_LOAD_FAILED").With("source", "dotenv").With("path", path).Wrap(err)
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code("CONFIG_NOT_FOUND").With("path", path).Wrap(err)
	}

	parser, err := parserFor(path)
	if err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	}
	return nil, oops.Code("CONFIG_FORMAT_UNSUPPORTED").
		With("path", path).
		Errorf("config file must be .yaml, .yml or .toml")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s", msg)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", c.LogFormat, "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", c.LogLevel, "must be debug, info, warn or error")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", c.HTTP.ShutdownTimeout.String(), "must be positive")
	}
	if c.Store.KeyPrefix == "" {
		return invalid("store.key_prefix", c.Store.KeyPrefix, "is required")
	}
	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return invalid("store.redis.addr", c.Store.Redis.Addr, "is required for the redis backend")
		}
		if c.Store.Redis.DB < 0 {
			return invalid("store.redis.db", c.Store.Redis.DB, "must not be negative")
		}
	case BackendPostgres:
		if c.Store.Postgres.URL == "" {
			return invalid("store.postgres.url", "", "is required for the postgres backend")
		}
		if c.Store.Postgres.SweepInterval <= 0 {
			return invalid("store.postgres.sweep_interval", c.Store.Postgres.SweepInterval.String(), "must be positive")
		}
	case BackendMemory:
	default:
		return invalid("store.backend", c.Store.Backend, "must be one of "+strings.Join(Backends(), ", "))
	}
	if c.Auth.TokenExpireHours <= 0 {
		return invalid("auth.token_expire_hours", c.Auth.TokenExpireHours, "must be positive")
	}
	if c.Auth.HashConcurrency < 0 {
		return invalid("auth.hash_concurrency", c.Auth.HashConcurrency, "must not be negative")
	}
	return nil
}

// Backends lists the supported store backends.
func Backends() []string {
	return slices.Clone(backends)
}

var backends = []string{BackendRedis, BackendPostgres, BackendMemory}

// WriteDefault writes the default configuration as YAML to path, creating
// its directory. An existing file is not overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("config file already exists")
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
