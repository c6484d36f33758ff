// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

package config

import (
	"errors"
	"net/url"
	"slices"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration error. The service must not start.
var ErrInvalid = errors.New("invalid configuration")

// CodeInvalid is the oops code carried by configuration errors.
const CodeInvalid = "CONFIG_INVALID"

// MinJWTKeyBytes is the shortest accepted session signing key.
const MinJWTKeyBytes = 32

// Redacted replaces secret values in Dump output.
const Redacted = "[REDACTED]"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func invalid(field string, value any, reason string) error {
	return oops.Code(CodeInvalid).
		With("field", field).
		With("value", value).
		With("reason", reason).
		Wrap(ErrInvalid)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	checks := []struct {
		ok     bool
		field  string
		value  any
		reason string
	}{
		{c.HTTP.Addr != "", "http.addr", c.HTTP.Addr, "must not be empty"},
		{slices.Contains([]string{"json", "text"}, c.Log.Format), "log.format", c.Log.Format, "must be json or text"},
		{slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level), "log.level", c.Log.Level, "must be debug, info, warn or error"},
		{slices.Contains([]string{DriverSQLite, DriverPostgres}, c.Database.Driver), "database.driver", c.Database.Driver, "must be sqlite or postgres"},
		{c.Database.URL != "", "database.url", c.Database.URL, "must not be empty"},
		{c.JWT.Key != "", "jwt.key", Redacted, "must be set via " + EnvVar("jwt.key") + " or the config file"},
		{len(c.JWT.Key) >= MinJWTKeyBytes, "jwt.key", Redacted, "must be at least 32 bytes"},
		{c.JWT.Issuer != "", "jwt.issuer", c.JWT.Issuer, "must not be empty"},
		{c.JWT.Audience != "", "jwt.audience", c.JWT.Audience, "must not be empty"},
		{c.JWT.TTL > 0, "jwt.ttl", c.JWT.TTL, "must be positive"},
		{c.Reset.TTL > 0, "reset.ttl", c.Reset.TTL, "must be positive"},
		{validSchedule(c.Reset.Sweep), "reset.sweep", c.Reset.Sweep, "must be a cron schedule"},
		{absoluteURL(c.Frontend.URL), "frontend.url", c.Frontend.URL, "must be an absolute URL"},
		{c.Throttle.LoginMax > 0, "throttle.login-max", c.Throttle.LoginMax, "must be positive"},
		{c.Throttle.ResetMax > 0, "throttle.reset-max", c.Throttle.ResetMax, "must be positive"},
		{c.Throttle.IPMax > 0, "throttle.ip-max", c.Throttle.IPMax, "must be positive"},
		{c.Throttle.Window > 0, "throttle.window", c.Throttle.Window, "must be positive"},
		{c.Mail.FromAddress != "", "mail.from-address", c.Mail.FromAddress, "must not be empty"},
		{c.SMTP.Port > 0 && c.SMTP.Port <= 65535, "smtp.port", c.SMTP.Port, "must be a TCP port"},
		{c.Argon2.Memory > 0, "argon2.memory", c.Argon2.Memory, "must be positive"},
		{c.Argon2.Time > 0, "argon2.time", c.Argon2.Time, "must be positive"},
		{c.Argon2.Threads > 0, "argon2.threads", c.Argon2.Threads, "must be positive"},
	}
	for _, check := range checks {
		if !check.ok {
			return invalid(check.field, check.value, check.reason)
		}
	}
	return nil
}

func validSchedule(spec string) bool {
	_, err := cron.ParseStandard(spec)
	return err == nil
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Redact returns a copy of c with secrets replaced.
func (c *Config) Redact() Config {
	out := *c
	out.CORS.Origins = slices.Clone(c.CORS.Origins)
	if out.JWT.Key != "" {
		out.JWT.Key = Redacted
	}
	if out.SMTP.Password != "" {
		out.SMTP.Password = Redacted
	}
	return out
}

// Dump renders the redacted configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	redacted := c.Redact()
	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, oops.Code("CONFIG_DUMP_FAILED").Wrap(err)
	}
	return out, nil
}
