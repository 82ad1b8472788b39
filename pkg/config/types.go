package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Live     LiveConfig     `yaml:"live"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Presence PresenceConfig `yaml:"presence"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the REST listener and its gateway settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	CORS    struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LiveConfig holds the websocket listener.
type LiveConfig struct {
	Address      string   `yaml:"address"`
	Port         int      `yaml:"port"`
	Path         string   `yaml:"path"`
	QueueSize    int      `yaml:"queue_size"`
	PingInterval Duration `yaml:"ping_interval"`
	WriteTimeout Duration `yaml:"write_timeout"`
	// MaxMessageSize caps a single client frame.
	MaxMessageSize SizeBytes `yaml:"max_message_size"`
}

// AuthConfig holds user identity settings.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	Issuer    string   `yaml:"issuer"`
	Leeway    Duration `yaml:"leeway"`
	TokenTTL  Duration `yaml:"token_ttl"`
	// SigningKeys verify X-User-Signature; backend api keys are always
	// accepted as signing keys too.
	SigningKeys []string `yaml:"signing_keys"`
}

type StorageConfig struct {
	Sync      bool      `yaml:"sync"`
	CacheSize SizeBytes `yaml:"cache_size"`
}

// PresenceConfig controls the stale presence sweeper.
type PresenceConfig struct {
	SweepCron    string `yaml:"sweep_cron"`
	SweepOnStart *bool  `yaml:"sweep_on_start"`
}

// LimitsConfig bounds user supplied documents.
type LimitsConfig struct {
	MaxBodyLen   SizeBytes `yaml:"max_body_len"`
	MaxNameLen   int       `yaml:"max_name_len"`
	MaxMembers   int       `yaml:"max_members"`
	MessageTypes []string  `yaml:"message_types"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSizeBytes(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Addr returns the REST listen address as host:port.
func (c *Config) Addr() string {
	return hostPort(c.Server.Address, c.Server.Port, defaultPort)
}

// LiveAddr returns the websocket listen address as host:port.
func (c *Config) LiveAddr() string {
	return hostPort(c.Live.Address, c.Live.Port, defaultLivePort)
}

// SigningKeys returns the configured signing keys plus the backend keys,
// deduplicated.
func (c *Config) SigningKeys() []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range append(append([]string{}, c.Auth.SigningKeys...), c.Server.APIKeys.Backend...) {
		if k = strings.TrimSpace(k); k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func hostPort(host string, port, def int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	if port == 0 {
		port = def
	}
	return fmt.Sprintf("%s:%d", host, port)
}
