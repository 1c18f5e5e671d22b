// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads gatekeeper configuration from defaults, a YAML file,
// GATEKEEPER_ environment variables and command-line flags, in that order of
// precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/internal/session"
	"github.com/holomush/gatekeeper/internal/xdg"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "GATEKEEPER_"

// FileName is the config file name inside the XDG config directory.
const FileName = "config.yaml"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Session backends.
const (
	SessionsMemory   = "memory"
	SessionsRedis    = "redis"
	SessionsPostgres = "postgres"
)

// Config is the complete gatekeeper configuration.
type Config struct {
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" json:"database" yaml:"database"`
	Sessions SessionsConfig `koanf:"sessions" json:"sessions" yaml:"sessions"`
	Password PasswordConfig `koanf:"password" json:"password" yaml:"password"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics" yaml:"metrics"`
	Connect  ConnectConfig  `koanf:"connect" json:"connect" yaml:"connect"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Format string `koanf:"format" json:"format" yaml:"format" validate:"oneof=json text" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig selects the credential store.
type DatabaseConfig struct {
	Driver string `koanf:"driver" json:"driver" yaml:"driver" validate:"oneof=postgres sqlite memory" jsonschema:"enum=postgres,enum=sqlite,enum=memory"`
	// DSN is the PostgreSQL connection string.
	DSN string `koanf:"dsn" json:"dsn,omitempty" yaml:"dsn,omitempty" validate:"required_if=Driver postgres"`
	// Path is the SQLite database file. Empty means $XDG_DATA_HOME/gatekeeper/users.db.
	Path string `koanf:"path" json:"path,omitempty" yaml:"path,omitempty"`
}

// SessionsConfig selects and tunes the session store.
type SessionsConfig struct {
	Backend         string        `koanf:"backend" json:"backend" yaml:"backend" validate:"oneof=memory redis postgres" jsonschema:"enum=memory,enum=redis,enum=postgres"`
	DefaultLifetime time.Duration `koanf:"defaultLifetime" json:"defaultLifetime" yaml:"defaultLifetime" validate:"gt=0" jsonschema:"type=string"`
	TokenLength     int           `koanf:"tokenLength" json:"tokenLength" yaml:"tokenLength" validate:"gte=16,lte=512" jsonschema:"minimum=16,maximum=512"`
	SweepInterval   time.Duration `koanf:"sweepInterval" json:"sweepInterval" yaml:"sweepInterval" validate:"gt=0" jsonschema:"type=string"`
	Redis           RedisConfig   `koanf:"redis" json:"redis" yaml:"redis"`
}

// RedisConfig addresses the redis session backend.
type RedisConfig struct {
	Addr      string `koanf:"addr" json:"addr" yaml:"addr"`
	Username  string `koanf:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password  string `koanf:"password" json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `koanf:"db" json:"db" yaml:"db" validate:"gte=0" jsonschema:"minimum=0"`
	KeyPrefix string `koanf:"keyPrefix" json:"keyPrefix" yaml:"keyPrefix" validate:"required"`
}

// PasswordConfig holds the signup policy and the hashing profile.
type PasswordConfig struct {
	MinLength    int          `koanf:"minLength" json:"minLength" yaml:"minLength" validate:"gte=1" jsonschema:"minimum=1"`
	RequireUpper bool         `koanf:"requireUpper" json:"requireUpper" yaml:"requireUpper"`
	RequireLower bool         `koanf:"requireLower" json:"requireLower" yaml:"requireLower"`
	RequireDigit bool         `koanf:"requireDigit" json:"requireDigit" yaml:"requireDigit"`
	Argon2       Argon2Config `koanf:"argon2" json:"argon2" yaml:"argon2"`
}

// Argon2Config mirrors auth.Argon2Params.
type Argon2Config struct {
	Time       uint32 `koanf:"time" json:"time" yaml:"time" validate:"gte=1" jsonschema:"minimum=1"`
	Memory     uint32 `koanf:"memory" json:"memory" yaml:"memory" validate:"gte=8" jsonschema:"minimum=8"`
	Threads    uint8  `koanf:"threads" json:"threads" yaml:"threads" validate:"gte=1" jsonschema:"minimum=1"`
	SaltLength uint32 `koanf:"saltLength" json:"saltLength" yaml:"saltLength" validate:"gte=8" jsonschema:"minimum=8"`
	KeyLength  uint32 `koanf:"keyLength" json:"keyLength" yaml:"keyLength" validate:"gte=16" jsonschema:"minimum=16"`
}

// MetricsConfig configures the janitor's metrics server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// ConnectConfig bounds startup connection retries.
type ConnectConfig struct {
	Attempts       uint64        `koanf:"attempts" json:"attempts" yaml:"attempts" validate:"gte=1" jsonschema:"minimum=1"`
	InitialBackoff time.Duration `koanf:"initialBackoff" json:"initialBackoff" yaml:"initialBackoff" validate:"gt=0" jsonschema:"type=string"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	params := auth.DefaultArgon2Params()
	policy := auth.DefaultPasswordPolicy()
	return &Config{
		Log: LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
		},
		Sessions: SessionsConfig{
			Backend:         SessionsMemory,
			DefaultLifetime: session.DefaultLifetime,
			TokenLength:     auth.DefaultTokenLength,
			SweepInterval:   time.Hour,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "gatekeeper:session:",
			},
		},
		Password: PasswordConfig{
			MinLength:    policy.MinLength,
			RequireUpper: policy.RequireUpper,
			RequireLower: policy.RequireLower,
			RequireDigit: policy.RequireDigit,
			Argon2: Argon2Config{
				Time:       params.Time,
				Memory:     params.Memory,
				Threads:    params.Threads,
				SaltLength: params.SaltLength,
				KeyLength:  params.KeyLength,
			},
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9102"},
		Connect: ConnectConfig{Attempts: 5, InitialBackoff: 500 * time.Millisecond},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/gatekeeper/config.yaml.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load builds a Config. A path that does not exist is skipped; flags may be
// nil. Only flags registered by RegisterFlags are consulted.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	known := knownKeys()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return canonicalizeEnvKey(strings.TrimPrefix(key, EnvPrefix), known), value
		},
	}), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := loadFlags(k, flags); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: strings.EqualFold,
		},
	}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("path", path).Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the combinations between sections.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return oops.Code("CONFIG_INVALID").Wrap(err)
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		return oops.Code("CONFIG_INVALID").With("fields", fields).Errorf("invalid configuration")
	}

	if c.Sessions.Backend == SessionsPostgres && c.Database.Driver != DriverPostgres {
		return oops.Code("CONFIG_INVALID").
			With("sessions.backend", c.Sessions.Backend).
			With("database.driver", c.Database.Driver).
			Errorf("postgres sessions require the postgres database driver")
	}
	if c.Sessions.Backend == SessionsRedis && c.Sessions.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").
			With("sessions.backend", c.Sessions.Backend).
			Errorf("redis sessions require sessions.redis.addr")
	}
	if c.Password.Argon2.Memory < 8*uint32(c.Password.Argon2.Threads) {
		return oops.Code("CONFIG_INVALID").
			With("password.argon2.memory", c.Password.Argon2.Memory).
			With("password.argon2.threads", c.Password.Argon2.Threads).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	}
	return nil
}

// Argon2Params converts the hashing profile.
func (c PasswordConfig) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:       c.Argon2.Time,
		Memory:     c.Argon2.Memory,
		Threads:    c.Argon2.Threads,
		SaltLength: c.Argon2.SaltLength,
		KeyLength:  c.Argon2.KeyLength,
	}
}

// Policy converts the signup password policy.
func (c PasswordConfig) Policy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:    c.MinLength,
		RequireUpper: c.RequireUpper,
		RequireLower: c.RequireLower,
		RequireDigit: c.RequireDigit,
	}
}

// structProvider is a koanf.Provider over a Config value.
type structProvider struct {
	cfg *Config
}

func (p structProvider) ReadBytes() ([]byte, error) {
	return nil, oops.Code("CONFIG_PROVIDER_UNSUPPORTED").Errorf("struct provider does not support ReadBytes")
}

func (p structProvider) Read() (map[string]any, error) {
	var out map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "koanf", Result: &out})
	if err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := dec.Decode(p.cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return out, nil
}

// YAML renders the configuration as a config file, with durations written
// in time.ParseDuration form.
func (c *Config) YAML() ([]byte, error) {
	raw, err := structProvider{c}.Read()
	if err != nil {
		return nil, err
	}
	data, err := yamlv3.Marshal(stringifyDurations(raw))
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

func stringifyDurations(m map[string]any) map[string]any {
	for k, v := range m {
		switch val := v.(type) {
		case time.Duration:
			m[k] = val.String()
		case map[string]any:
			m[k] = stringifyDurations(val)
		}
	}
	return m
}

// knownKeys indexes every config key by its normalized form so
// GATEKEEPER_SESSIONS_DEFAULT_LIFETIME and GATEKEEPER_SESSIONS_DEFAULTLIFETIME
// both resolve to sessions.defaultLifetime.
func knownKeys() map[string]string {
	k := koanf.New(".")
	// Loading a struct we built cannot fail.
	_ = k.Load(structProvider{Default()}, nil) //nolint:errcheck // static input
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[normalizeToken(key)] = key
	}
	return known
}

func canonicalizeEnvKey(rawKey string, known map[string]string) string {
	if key, ok := known[normalizeToken(rawKey)]; ok {
		return key
	}
	return strings.ReplaceAll(strings.ToLower(rawKey), "_", ".")
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}
	return normalized.String()
}
