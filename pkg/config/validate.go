package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"convodb/pkg/state/logger"
)

// ValidateConfig fills defaults into the effective config and fails fast on
// values the server cannot run with.
func ValidateConfig(eff *EffectiveConfigResult) error {
	c := eff.Config
	if c == nil {
		return fmt.Errorf("effective config is nil")
	}
	if strings.TrimSpace(eff.DBPath) == "" {
		return fmt.Errorf("database path is empty: set --db flag, CONVODB_DB_PATH env, or server.db_path in config")
	}
	c.ApplyDefaults()

	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if !strings.HasPrefix(c.Live.Path, "/") {
		return fmt.Errorf("live.path must start with '/': %q", c.Live.Path)
	}
	if c.Addr() == c.LiveAddr() {
		return fmt.Errorf("server and live listeners share address %s", c.Addr())
	}
	if !gronx.IsValid(c.Presence.SweepCron) {
		return fmt.Errorf("invalid presence.sweep_cron expression: %s", c.Presence.SweepCron)
	}
	if c.Auth.JWTSecret == "" {
		logger.Warn("jwt_disabled", "reason", "auth.jwt_secret not set")
	} else if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	if len(c.Server.APIKeys.Admin) == 0 {
		logger.Warn("admin_disabled", "reason", "no admin api keys configured")
	}
	return nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = defaultRPS
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = defaultBurst
	}

	if c.Live.Path == "" {
		c.Live.Path = defaultLivePath
	}
	if c.Live.QueueSize <= 0 {
		c.Live.QueueSize = defaultQueueSize
	}
	if c.Live.PingInterval == 0 {
		c.Live.PingInterval = Duration(defaultPingInterval * time.Second)
	}
	if c.Live.WriteTimeout == 0 {
		c.Live.WriteTimeout = Duration(defaultWriteTimeout * time.Second)
	}
	if c.Live.MaxMessageSize == 0 {
		c.Live.MaxMessageSize = defaultMaxFrame
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = defaultIssuer
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = Duration(defaultTokenTTL * time.Second)
	}

	if c.Presence.SweepCron == "" {
		c.Presence.SweepCron = defaultSweepCron
	}

	if c.Limits.MaxBodyLen == 0 {
		c.Limits.MaxBodyLen = defaultMaxBodyLen
	}
	if c.Limits.MaxNameLen == 0 {
		c.Limits.MaxNameLen = defaultMaxNameLen
	}
	if c.Limits.MaxMembers == 0 {
		c.Limits.MaxMembers = defaultMaxMembers
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
