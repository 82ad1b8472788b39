package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Profile holds the operator defaults convoctl reads before flags.
type Profile struct {
	DBPath    string `yaml:"db_path" json:"db_path"`
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer    string `yaml:"issuer" json:"issuer"`
	TokenTTL  string `yaml:"token_ttl" json:"token_ttl"`
}

// DefaultPath is $HOME/.convoctl.yaml, or the working directory when no
// home is set.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".convoctl.yaml"
	}
	return filepath.Join(home, ".convoctl.yaml")
}

// LoadFromFile reads a profile. A missing file yields an empty profile.
func LoadFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &p, nil
}

func SaveToFile(p *Profile, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TTL parses TokenTTL, falling back to def when unset.
func (p *Profile) TTL(def time.Duration) (time.Duration, error) {
	if p.TokenTTL == "" {
		return def, nil
	}
	d, err := time.ParseDuration(p.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("token_ttl: %w", err)
	}
	return d, nil
}

// Set assigns one profile field by its yaml name.
func (p *Profile) Set(key, value string) error {
	switch key {
	case "db_path":
		p.DBPath = value
	case "jwt_secret":
		p.JWTSecret = value
	case "issuer":
		p.Issuer = value
	case "token_ttl":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("token_ttl: %w", err)
		}
		p.TokenTTL = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
