// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package config loads TaskFlow settings from flags, an optional YAML file,
// TASKFLOW_* environment variables and a .env file.
//
// Precedence, lowest first: flag defaults, config file, environment,
// explicitly set flags.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TASKFLOW_"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	JWT      JWTConfig      `koanf:"jwt" yaml:"jwt"`
	Reset    ResetConfig    `koanf:"reset" yaml:"reset"`
	Frontend FrontendConfig `koanf:"frontend" yaml:"frontend"`
	CORS     CORSConfig     `koanf:"cors" yaml:"cors"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Throttle ThrottleConfig `koanf:"throttle" yaml:"throttle"`
	Mail     MailConfig     `koanf:"mail" yaml:"mail"`
	SMTP     SMTPConfig     `koanf:"smtp" yaml:"smtp"`
	Argon2   Argon2Config   `koanf:"argon2" yaml:"argon2"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// TrustProxy takes the client address from X-Forwarded-For and friends.
	// Only safe when every request passes through a proxy that sets them.
	TrustProxy bool `koanf:"trust-proxy" yaml:"trust-proxy"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// DatabaseConfig selects the account store.
type DatabaseConfig struct {
	Driver string `koanf:"driver" yaml:"driver"`
	URL    string `koanf:"url" yaml:"url"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	Key      string        `koanf:"key" yaml:"key"`
	Issuer   string        `koanf:"issuer" yaml:"issuer"`
	Audience string        `koanf:"audience" yaml:"audience"`
	TTL      time.Duration `koanf:"ttl" yaml:"ttl"`
}

// ResetConfig configures the password reset flow.
type ResetConfig struct {
	TTL   time.Duration `koanf:"ttl" yaml:"ttl"`
	Sweep string        `koanf:"sweep" yaml:"sweep"`
}

// FrontendConfig locates the web client reset links point at.
type FrontendConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	Origins []string `koanf:"origins" yaml:"origins"`
}

// RedisConfig enables shared throttling and the durable mail queue. An
// empty URL keeps both in process.
type RedisConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// ThrottleConfig sets attempt budgets per window.
type ThrottleConfig struct {
	LoginMax int           `koanf:"login-max" yaml:"login-max"`
	ResetMax int           `koanf:"reset-max" yaml:"reset-max"`
	IPMax    int           `koanf:"ip-max" yaml:"ip-max"`
	Window   time.Duration `koanf:"window" yaml:"window"`
}

// MailConfig sets the sender identity.
type MailConfig struct {
	FromAddress string `koanf:"from-address" yaml:"from-address"`
	FromName    string `koanf:"from-name" yaml:"from-name"`
}

// SMTPConfig configures the SMTP relay. An empty Host logs mail instead of
// sending it.
type SMTPConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
}

// Argon2Config sets password hashing cost.
type Argon2Config struct {
	Memory  uint32 `koanf:"memory" yaml:"memory"`
	Time    uint32 `koanf:"time" yaml:"time"`
	Threads uint8  `koanf:"threads" yaml:"threads"`
}

// RegisterFlags adds one flag per key to fs. The flag defaults are the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http.addr", ":5000", "API listen address")
	fs.Bool("http.trust-proxy", false, "take client addresses from proxy headers (only behind a trusted proxy)")
	fs.String("metrics.addr", "127.0.0.1:9100", "metrics/health listen address (empty = disabled)")
	fs.String("log.format", "json", "log format (json or text)")
	fs.String("log.level", "info", "log level (debug, info, warn, error)")
	fs.String("database.driver", "sqlite", "account store driver (sqlite or postgres)")
	fs.String("database.url", "taskflow.db", "database URL or SQLite path")
	fs.String("jwt.issuer", "TaskFlowServer", "session token issuer")
	fs.String("jwt.audience", "TaskFlowClient", "session token audience")
	fs.Duration("jwt.ttl", 24*time.Hour, "session token lifetime")
	fs.Duration("reset.ttl", time.Hour, "password reset link lifetime")
	fs.String("reset.sweep", "@every 15m", "cron schedule for clearing expired reset links")
	fs.String("frontend.url", "http://localhost:5173", "web client base URL used in reset links")
	fs.StringSlice("cors.origins", []string{"http://localhost:5173"}, "allowed CORS origins")
	fs.String("redis.url", "", "redis URL for shared throttling and the mail queue (empty = in-process)")
	fs.Int("throttle.login-max", 10, "login attempts per email per window")
	fs.Int("throttle.reset-max", 5, "reset requests per email per window")
	fs.Int("throttle.ip-max", 60, "auth requests per client IP per window")
	fs.Duration("throttle.window", 15*time.Minute, "throttle window")
	fs.String("mail.from-address", "noreply@taskflow.local", "sender address")
	fs.String("mail.from-name", "TaskFlow", "sender display name")
	fs.String("smtp.host", "", "SMTP host (empty = log mail instead of sending)")
	fs.Int("smtp.port", 587, "SMTP port")
	fs.String("smtp.username", "", "SMTP username")
	fs.Uint32("argon2.memory", 64*1024, "argon2id memory cost in KiB")
	fs.Uint32("argon2.time", 1, "argon2id iterations")
	fs.Uint8("argon2.threads", 4, "argon2id parallelism")
}

// secretKeys may only come from the file or environment; they have no flag.
var secretKeys = []string{"jwt.key", "smtp.password"}

// EnvVar returns the environment variable that sets key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return oops.Code(CodeInvalid).With("file", path).Wrap(err)
	}
	return nil
}

// Load builds a Config from fs, which must have been set up with
// RegisterFlags, and the optional YAML file at path.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).With("file", path).Wrap(err)
		}
	}

	envKeys := make(map[string]string)
	fs.VisitAll(func(f *pflag.Flag) { envKeys[EnvVar(f.Name)] = f.Name })
	for _, key := range secretKeys {
		envKeys[EnvVar(key)] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(name string) string {
		return envKeys[name]
	}), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("source", "environment").Wrap(err)
	}

	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "decode").Wrap(err)
	}
	return &cfg, nil
}
