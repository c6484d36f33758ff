// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Lugadilu/TaskFlow/internal/config"
	"github.com/Lugadilu/TaskFlow/pkg/errutil"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(newFlags(t), "")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.False(t, cfg.HTTP.TrustProxy, "forwarding headers are ignored unless enabled")
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "taskflow.db", cfg.Database.URL)
	assert.Empty(t, cfg.JWT.Key)
	assert.Equal(t, "TaskFlowServer", cfg.JWT.Issuer)
	assert.Equal(t, "TaskFlowClient", cfg.JWT.Audience)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, time.Hour, cfg.Reset.TTL)
	assert.Equal(t, "@every 15m", cfg.Reset.Sweep)
	assert.Equal(t, "http://localhost:5173", cfg.Frontend.URL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.Origins)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, config.ThrottleConfig{LoginMax: 10, ResetMax: 5, IPMax: 60, Window: 15 * time.Minute}, cfg.Throttle)
	assert.Equal(t, "noreply@taskflow.local", cfg.Mail.FromAddress)
	assert.Equal(t, "TaskFlow", cfg.Mail.FromName)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, config.Argon2Config{Memory: 65536, Time: 1, Threads: 4}, cfg.Argon2)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "taskflow.yaml", `
http:
  addr: ":6000"
log:
  level: debug
  format: text
jwt:
  key: from-file-key-0123456789abcdef0123
throttle:
  login-max: 3
reset:
  ttl: 30m
`)
	t.Setenv("TASKFLOW_LOG_LEVEL", "warn")
	t.Setenv("TASKFLOW_THROTTLE_LOGIN_MAX", "4")
	t.Setenv("TASKFLOW_JWT_KEY", testKey)
	t.Setenv("TASKFLOW_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TASKFLOW_UNKNOWN_SETTING", "ignored")

	cfg, err := config.Load(newFlags(t, "--log.format=json"), path)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.HTTP.Addr, "file overrides default")
	assert.Equal(t, 30*time.Minute, cfg.Reset.TTL, "file durations decode")
	assert.Equal(t, "warn", cfg.Log.Level, "environment overrides file")
	assert.Equal(t, 4, cfg.Throttle.LoginMax, "dashed keys map from underscores")
	assert.Equal(t, testKey, cfg.JWT.Key, "secret from environment")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins)
	assert.Equal(t, "json", cfg.Log.Format, "explicit flag overrides file")
}

func TestLoad_TrustProxy(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("TASKFLOW_HTTP_TRUST_PROXY", "true")
		cfg, err := config.Load(newFlags(t), "")
		require.NoError(t, err)
		assert.True(t, cfg.HTTP.TrustProxy)
	})

	t.Run("flag", func(t *testing.T) {
		cfg, err := config.Load(newFlags(t, "--http.trust-proxy"), "")
		require.NoError(t, err)
		assert.True(t, cfg.HTTP.TrustProxy)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(newFlags(t), filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := config.Load(newFlags(t), writeFile(t, "bad.yaml", "http: [unclosed"))
	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		t.Setenv("TASKFLOW_HTTP_ADDR", ":7000")
		t.Setenv("TASKFLOW_SMTP_HOST", "")
		require.NoError(t, os.Unsetenv("TASKFLOW_SMTP_HOST"))

		path := writeFile(t, ".env", "TASKFLOW_HTTP_ADDR=:8000\nTASKFLOW_SMTP_HOST=smtp.example.com\n")
		require.NoError(t, config.LoadDotEnv(path))

		assert.Equal(t, ":7000", os.Getenv("TASKFLOW_HTTP_ADDR"))
		assert.Equal(t, "smtp.example.com", os.Getenv("TASKFLOW_SMTP_HOST"))
	})
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TASKFLOW_JWT_KEY", config.EnvVar("jwt.key"))
	assert.Equal(t, "TASKFLOW_MAIL_FROM_ADDRESS", config.EnvVar("mail.from-address"))
}

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TASKFLOW_JWT_KEY", testKey)
	cfg, err := config.Load(newFlags(t), "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*config.Config)
	}{
		{"http.addr", func(c *config.Config) { c.HTTP.Addr = "" }},
		{"log.format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"log.level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"database.driver", func(c *config.Config) { c.Database.Driver = "mysql" }},
		{"database.url", func(c *config.Config) { c.Database.URL = "" }},
		{"jwt.key", func(c *config.Config) { c.JWT.Key = "" }},
		{"jwt.key", func(c *config.Config) { c.JWT.Key = "short" }},
		{"jwt.issuer", func(c *config.Config) { c.JWT.Issuer = "" }},
		{"jwt.audience", func(c *config.Config) { c.JWT.Audience = "" }},
		{"jwt.ttl", func(c *config.Config) { c.JWT.TTL = 0 }},
		{"reset.ttl", func(c *config.Config) { c.Reset.TTL = -time.Minute }},
		{"reset.sweep", func(c *config.Config) { c.Reset.Sweep = "every now and then" }},
		{"frontend.url", func(c *config.Config) { c.Frontend.URL = "/relative" }},
		{"throttle.login-max", func(c *config.Config) { c.Throttle.LoginMax = 0 }},
		{"throttle.reset-max", func(c *config.Config) { c.Throttle.ResetMax = 0 }},
		{"throttle.ip-max", func(c *config.Config) { c.Throttle.IPMax = 0 }},
		{"throttle.window", func(c *config.Config) { c.Throttle.Window = 0 }},
		{"mail.from-address", func(c *config.Config) { c.Mail.FromAddress = "" }},
		{"smtp.port", func(c *config.Config) { c.SMTP.Port = 70000 }},
		{"argon2.memory", func(c *config.Config) { c.Argon2.Memory = 0 }},
		{"argon2.time", func(c *config.Config) { c.Argon2.Time = 0 }},
		{"argon2.threads", func(c *config.Config) { c.Argon2.Threads = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, config.ErrInvalid)
			errutil.AssertErrorCode(t, err, config.CodeInvalid)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestValidate_NeverEchoesKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.JWT.Key = "tooshort-but-secret"

	err := cfg.Validate()
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "value", config.Redacted)
	assert.NotContains(t, err.Error(), "tooshort-but-secret")
}

func TestDump_RedactsSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.SMTP.Password = "smtp-secret"

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, string(out), testKey)
	assert.NotContains(t, string(out), "smtp-secret")

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, config.Redacted, decoded["jwt"]["key"])
	assert.Equal(t, config.Redacted, decoded["smtp"]["password"])
	assert.Equal(t, ":5000", decoded["http"]["addr"])
	assert.Equal(t, "1h0m0s", decoded["reset"]["ttl"])
	assert.True(t, strings.Contains(string(out), "login-max: 10"))

	assert.Equal(t, testKey, cfg.JWT.Key, "dump leaves the original intact")
}
