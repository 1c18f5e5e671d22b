// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeeper/internal/auth"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
database:
  driver: postgres
  dsn: postgres://gatekeeper@localhost/gatekeeper
sessions:
  backend: postgres
  defaultLifetime: 720h
  sweepInterval: 5m
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 720*time.Hour, cfg.Sessions.DefaultLifetime)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.SweepInterval)
	assert.Equal(t, auth.DefaultTokenLength, cfg.Sessions.TokenLength)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
sessions:
  defaultLifetime: 720h
  redis:
    keyPrefix: "file:"
`)
	t.Setenv("GATEKEEPER_SESSIONS_DEFAULT_LIFETIME", "2h")
	t.Setenv("GATEKEEPER_SESSIONS_REDIS_KEYPREFIX", "env:")
	t.Setenv("GATEKEEPER_CONNECT_ATTEMPTS", "9")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.DefaultLifetime)
	assert.Equal(t, "env:", cfg.Sessions.Redis.KeyPrefix)
	assert.Equal(t, uint64(9), cfg.Connect.Attempts)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("GATEKEEPER_LOG_LEVEL", "warn")
	t.Setenv("GATEKEEPER_LOG_FORMAT", "text")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=error", "--database-driver=memory"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unchanged flags do not override")
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields map[string]string
	}{
		{
			name:   "unknown driver",
			body:   "database:\n  driver: mysql\n",
			fields: map[string]string{"Config.Database.Driver": "oneof"},
		},
		{
			name:   "postgres without dsn",
			body:   "database:\n  driver: postgres\n",
			fields: map[string]string{"Config.Database.DSN": "required_if"},
		},
		{
			name:   "short tokens",
			body:   "sessions:\n  tokenLength: 8\n",
			fields: map[string]string{"Config.Sessions.TokenLength": "gte"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Equal(t, tt.fields, oopsErr.Context()["fields"])
		})
	}
}

func TestValidate_CrossSection(t *testing.T) {
	cfg := Default()
	cfg.Sessions.Backend = SessionsPostgres
	err := cfg.Validate()
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "database.driver", DriverSQLite)

	cfg = Default()
	cfg.Sessions.Backend = SessionsRedis
	cfg.Sessions.Redis.Addr = ""
	errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")

	cfg = Default()
	cfg.Password.Argon2.Threads = 8
	cfg.Password.Argon2.Memory = 32
	errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unterminated"), nil)
	errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/gatekeeper/config.yaml", path)
}

func TestPasswordConfig_Conversions(t *testing.T) {
	cfg := Default()
	assert.Equal(t, auth.DefaultArgon2Params(), cfg.Password.Argon2Params())
	assert.Equal(t, auth.DefaultPasswordPolicy(), cfg.Password.Policy())
}

func TestCanonicalizeEnvKey(t *testing.T) {
	known := knownKeys()

	tests := map[string]string{
		"LOG_LEVEL":                   "log.level",
		"SESSIONS_DEFAULT_LIFETIME":   "sessions.defaultLifetime",
		"SESSIONS_DEFAULTLIFETIME":    "sessions.defaultLifetime",
		"PASSWORD_ARGON2_SALT_LENGTH": "password.argon2.saltLength",
		"METRICS_ADDR":                "metrics.addr",
		"SOMETHING_ELSE":              "something.else",
	}
	for raw, want := range tests {
		assert.Equal(t, want, canonicalizeEnvKey(raw, known), raw)
	}
}
