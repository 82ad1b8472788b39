package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort      = 8080
	defaultLivePort  = 8081
	defaultLivePath  = "/live"
	defaultQueueSize = 1024

	defaultPingInterval = 25
	defaultWriteTimeout = 10
	defaultTokenTTL     = 24 * 3600
	defaultIssuer       = "convodb"

	defaultSweepCron = "*/5 * * * *"

	defaultRPS   = 1000
	defaultBurst = 1000

	defaultMaxBodyLen = 16 << 10
	defaultMaxNameLen = 200
	defaultMaxMembers = 256
	defaultMaxFrame   = 64 << 10
)

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ParseConfigFile loads the file named by flags or CONVODB_CONFIG. A missing
// file is reported as not found, not as an error.
func ParseConfigFile(flags Flags, getenv func(string) string) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"], getenv)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool, getenv func(string) string) string {
	if flagSet {
		return flagPath
	}
	if p := getenv(envPrefix + "CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// SweepOnStart reports whether a presence sweep runs at boot.
func (c *Config) SweepOnStart() bool {
	return c.Presence.SweepOnStart == nil || *c.Presence.SweepOnStart
}
