package config

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParseConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  address: 127.0.0.1
  port: 9000
  db_path: /var/lib/convodb
  api_keys:
    backend: [bk1]
    admin: [ak1]
live:
  port: 9001
  ping_interval: 5
  max_message_size: 128KB
storage:
  cache_size: 64MB
presence:
  sweep_cron: "*/10 * * * *"
  sweep_on_start: false
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	flags := Flags{Config: path, Set: map[string]bool{"config": true}}
	cfg, found, err := ParseConfigFile(flags, envMap(nil))
	if err != nil || !found {
		t.Fatalf("ParseConfigFile: found=%v err=%v", found, err)
	}
	if got := cfg.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", got)
	}
	if got := cfg.LiveAddr(); got != "0.0.0.0:9001" {
		t.Errorf("LiveAddr = %q", got)
	}
	if got := cfg.Live.PingInterval.Duration(); got != 5*time.Second {
		t.Errorf("PingInterval = %v", got)
	}
	if got := cfg.Live.MaxMessageSize.Int64(); got != 128000 {
		t.Errorf("MaxMessageSize = %d", got)
	}
	if got := cfg.Storage.CacheSize.Int64(); got != 64000000 {
		t.Errorf("CacheSize = %d", got)
	}
	if cfg.SweepOnStart() {
		t.Error("SweepOnStart should be false")
	}

	_, found, err = ParseConfigFile(Flags{Config: filepath.Join(dir, "missing.yaml"), Set: map[string]bool{}}, envMap(nil))
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
}

func TestInvalidYAMLValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("live:\n  ping_interval: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestParseConfigEnvs(t *testing.T) {
	cfg, used := ParseConfigEnvs(envMap(map[string]string{
		"CONVODB_ADDR":                    "10.0.0.2:7000",
		"CONVODB_DB_PATH":                 "/tmp/db",
		"CONVODB_API_BACKEND_KEYS":        "a, b,,c",
		"CONVODB_SIGNING_KEYS":            "s1",
		"CONVODB_PRESENCE_SWEEP_ON_START": "no",
		"CONVODB_STORAGE_CACHE_SIZE":      "1MiB",
		"CONVODB_JWT_LEEWAY":              "2s",
	}))
	if !used {
		t.Fatal("env should be reported as used")
	}
	if cfg.Server.Address != "10.0.0.2" || cfg.Server.Port != 7000 {
		t.Errorf("addr = %s:%d", cfg.Server.Address, cfg.Server.Port)
	}
	if !reflect.DeepEqual(cfg.Server.APIKeys.Backend, []string{"a", "b", "c"}) {
		t.Errorf("backend keys = %v", cfg.Server.APIKeys.Backend)
	}
	if !reflect.DeepEqual(cfg.SigningKeys(), []string{"s1", "a", "b", "c"}) {
		t.Errorf("signing keys = %v", cfg.SigningKeys())
	}
	if cfg.SweepOnStart() {
		t.Error("SweepOnStart should be false")
	}
	if cfg.Storage.CacheSize != 1<<20 {
		t.Errorf("cache size = %d", cfg.Storage.CacheSize)
	}
	if cfg.Auth.Leeway.Duration() != 2*time.Second {
		t.Errorf("leeway = %v", cfg.Auth.Leeway)
	}

	if _, used := ParseConfigEnvs(envMap(nil)); used {
		t.Error("empty env should not be used")
	}
}

func TestLoadEffectiveConfigLayers(t *testing.T) {
	file := &Config{}
	file.Server.Port = 9000
	file.Server.DBPath = "/file/db"
	file.Logging.Level = "debug"
	env := &Config{}
	env.Server.DBPath = "/env/db"

	tests := []struct {
		name   string
		args   []string
		env    bool
		addr   string
		db     string
		source string
	}{
		{"file only", nil, false, "0.0.0.0:9000", "/file/db", "config"},
		{"env over file", nil, true, "0.0.0.0:9000", "/env/db", "env"},
		{"flags over env", []string{"--addr", "127.0.0.1:1234", "--db", "/flag/db"}, true, "127.0.0.1:1234", "/flag/db", "flags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := ParseConfigFlags(flag.NewFlagSet("test", flag.ContinueOnError), tt.args)
			if err != nil {
				t.Fatal(err)
			}
			res, err := LoadEffectiveConfig(flags, file, true, env, tt.env)
			if err != nil {
				t.Fatal(err)
			}
			if res.Addr != tt.addr || res.DBPath != tt.db || res.Source != tt.source {
				t.Errorf("got addr=%s db=%s source=%s", res.Addr, res.DBPath, res.Source)
			}
			if res.Config.Logging.Level != "debug" {
				t.Errorf("file value lost: level=%q", res.Config.Logging.Level)
			}
		})
	}

	flags, _ := ParseConfigFlags(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--config", "/nope.yaml"})
	if _, err := LoadEffectiveConfig(flags, &Config{}, false, env, false); err == nil {
		t.Error("explicit missing config should fail")
	}

	flags, _ = ParseConfigFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	res, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != "defaults" || res.DBPath != "./.database" {
		t.Errorf("defaults: source=%s db=%s", res.Source, res.DBPath)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *EffectiveConfigResult {
		c := &Config{}
		c.Auth.JWTSecret = "0123456789abcdef"
		return &EffectiveConfigResult{Config: c, DBPath: "/db"}
	}

	eff := valid()
	if err := ValidateConfig(eff); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	c := eff.Config
	if c.Presence.SweepCron != defaultSweepCron || c.Live.Path != defaultLivePath || c.Live.QueueSize != defaultQueueSize {
		t.Errorf("defaults not applied: %+v", c.Live)
	}
	if !c.SweepOnStart() {
		t.Error("SweepOnStart defaults to true")
	}

	tests := []struct {
		name string
		mod  func(*EffectiveConfigResult)
	}{
		{"no db", func(e *EffectiveConfigResult) { e.DBPath = "" }},
		{"bad cron", func(e *EffectiveConfigResult) { e.Config.Presence.SweepCron = "every minute" }},
		{"short secret", func(e *EffectiveConfigResult) { e.Config.Auth.JWTSecret = "short" }},
		{"live path", func(e *EffectiveConfigResult) { e.Config.Live.Path = "live" }},
		{"same port", func(e *EffectiveConfigResult) { e.Config.Live.Port = defaultPort }},
		{"negative rate", func(e *EffectiveConfigResult) { e.Config.Server.RateLimit.Burst = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := valid()
			tt.mod(eff)
			if err := ValidateConfig(eff); err == nil {
				t.Error("expected error")
			}
		})
	}
}
