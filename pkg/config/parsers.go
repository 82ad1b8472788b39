package config

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr     string
	DB       string
	Config   string
	Validate bool
	Set      map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // highest layer that contributed: "flags", "env", "config" or "defaults"
}

// ParseConfigFlags parses args into Flags and records which were set.
func ParseConfigFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	addr := fs.String("addr", ":8080", "HTTP listen address")
	db := fs.String("db", "./.database", "Pebble DB path")
	cfg := fs.String("config", "./config.yaml", "Path to config file")
	validate := fs.Bool("validate", false, "Validate the configuration and exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DB: *db, Config: *cfg, Validate: *validate, Set: set}, nil
}

// ParseConfigEnvs reads CONVODB_* variables through getenv into a new
// Config. The bool reports whether any variable was set.
func ParseConfigEnvs(getenv func(string) string) (*Config, bool) {
	env := func(name string) string { return strings.TrimSpace(getenv(envPrefix + name)) }
	used := false
	for _, name := range envNames {
		if env(name) != "" {
			used = true
			break
		}
	}
	c := &Config{}

	if v := firstNonEmpty(env("SERVER_ADDR"), env("ADDR")); v != "" {
		c.Server.Address, c.Server.Port = splitAddr(v)
	} else {
		c.Server.Address = env("SERVER_ADDRESS")
		c.Server.Port = atoi(env("SERVER_PORT"))
	}
	c.Server.DBPath = firstNonEmpty(env("SERVER_DB_PATH"), env("DB_PATH"))
	c.Server.CORS.AllowedOrigins = parseList(env("CORS_ORIGINS"))
	if v := env("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.RateLimit.RPS = f
		}
	}
	c.Server.RateLimit.Burst = atoi(env("RATE_BURST"))
	c.Server.IPWhitelist = parseList(env("IP_WHITELIST"))
	c.Server.APIKeys.Backend = parseList(env("API_BACKEND_KEYS"))
	c.Server.APIKeys.Frontend = parseList(env("API_FRONTEND_KEYS"))
	c.Server.APIKeys.Admin = parseList(env("API_ADMIN_KEYS"))

	if v := env("LIVE_ADDR"); v != "" {
		c.Live.Address, c.Live.Port = splitAddr(v)
	}
	c.Live.Path = env("LIVE_PATH")
	c.Live.QueueSize = atoi(env("LIVE_QUEUE_SIZE"))
	c.Live.PingInterval, _ = parseDuration(env("LIVE_PING_INTERVAL"))

	c.Auth.JWTSecret = env("JWT_SECRET")
	c.Auth.Issuer = env("JWT_ISSUER")
	c.Auth.Leeway, _ = parseDuration(env("JWT_LEEWAY"))
	c.Auth.TokenTTL, _ = parseDuration(env("TOKEN_TTL"))
	c.Auth.SigningKeys = parseList(env("SIGNING_KEYS"))

	c.Storage.Sync = parseBool(env("STORAGE_SYNC"), false)
	c.Storage.CacheSize, _ = parseSizeBytes(env("STORAGE_CACHE_SIZE"))

	c.Presence.SweepCron = env("PRESENCE_SWEEP_CRON")
	if v := env("PRESENCE_SWEEP_ON_START"); v != "" {
		b := parseBool(v, true)
		c.Presence.SweepOnStart = &b
	}

	c.Logging.Level = env("LOG_LEVEL")
	c.Logging.Format = env("LOG_FORMAT")
	return c, used
}

const envPrefix = "CONVODB_"

var envNames = []string{
	"SERVER_ADDR", "ADDR", "SERVER_ADDRESS", "SERVER_PORT", "SERVER_DB_PATH", "DB_PATH",
	"CORS_ORIGINS", "RATE_RPS", "RATE_BURST", "IP_WHITELIST",
	"API_BACKEND_KEYS", "API_FRONTEND_KEYS", "API_ADMIN_KEYS",
	"LIVE_ADDR", "LIVE_PATH", "LIVE_QUEUE_SIZE", "LIVE_PING_INTERVAL",
	"JWT_SECRET", "JWT_ISSUER", "JWT_LEEWAY", "TOKEN_TTL", "SIGNING_KEYS",
	"STORAGE_SYNC", "STORAGE_CACHE_SIZE",
	"PRESENCE_SWEEP_CRON", "PRESENCE_SWEEP_ON_START",
	"LOG_LEVEL", "LOG_FORMAT",
}

// LoadEffectiveConfig layers env over the file config and flags over both.
// An explicit --config that does not exist is an error.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	out := &Config{}
	res.Source = "defaults"
	if fileExists && fileCfg != nil {
		*out = *fileCfg
		res.Source = "config"
	}
	if envUsed && envCfg != nil {
		overlay(out, envCfg)
		res.Source = "env"
	}
	if flags.Set["addr"] {
		out.Server.Address, out.Server.Port = splitAddr(flags.Addr)
		res.Source = "flags"
	}
	if flags.Set["db"] {
		out.Server.DBPath = flags.DB
		res.Source = "flags"
	}
	if out.Server.DBPath == "" {
		out.Server.DBPath = flags.DB
	}

	res.Config = out
	res.Addr = out.Addr()
	res.DBPath = out.Server.DBPath
	return res, nil
}

// overlay copies every set field of src onto dst.
func overlay(dst, src *Config) {
	setStr := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	setInt := func(d *int, s int) {
		if s != 0 {
			*d = s
		}
	}
	setList := func(d *[]string, s []string) {
		if len(s) > 0 {
			*d = s
		}
	}
	setDur := func(d *Duration, s Duration) {
		if s != 0 {
			*d = s
		}
	}

	setStr(&dst.Server.Address, src.Server.Address)
	setInt(&dst.Server.Port, src.Server.Port)
	setStr(&dst.Server.DBPath, src.Server.DBPath)
	setList(&dst.Server.CORS.AllowedOrigins, src.Server.CORS.AllowedOrigins)
	if src.Server.RateLimit.RPS != 0 {
		dst.Server.RateLimit.RPS = src.Server.RateLimit.RPS
	}
	setInt(&dst.Server.RateLimit.Burst, src.Server.RateLimit.Burst)
	setList(&dst.Server.IPWhitelist, src.Server.IPWhitelist)
	setList(&dst.Server.APIKeys.Backend, src.Server.APIKeys.Backend)
	setList(&dst.Server.APIKeys.Frontend, src.Server.APIKeys.Frontend)
	setList(&dst.Server.APIKeys.Admin, src.Server.APIKeys.Admin)

	setStr(&dst.Live.Address, src.Live.Address)
	setInt(&dst.Live.Port, src.Live.Port)
	setStr(&dst.Live.Path, src.Live.Path)
	setInt(&dst.Live.QueueSize, src.Live.QueueSize)
	setDur(&dst.Live.PingInterval, src.Live.PingInterval)

	setStr(&dst.Auth.JWTSecret, src.Auth.JWTSecret)
	setStr(&dst.Auth.Issuer, src.Auth.Issuer)
	setDur(&dst.Auth.Leeway, src.Auth.Leeway)
	setDur(&dst.Auth.TokenTTL, src.Auth.TokenTTL)
	setList(&dst.Auth.SigningKeys, src.Auth.SigningKeys)

	if src.Storage.Sync {
		dst.Storage.Sync = true
	}
	if src.Storage.CacheSize != 0 {
		dst.Storage.CacheSize = src.Storage.CacheSize
	}

	setStr(&dst.Presence.SweepCron, src.Presence.SweepCron)
	if src.Presence.SweepOnStart != nil {
		dst.Presence.SweepOnStart = src.Presence.SweepOnStart
	}

	setStr(&dst.Logging.Level, src.Logging.Level)
	setStr(&dst.Logging.Format, src.Logging.Format)
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseSizeBytes(v string) (SizeBytes, error) {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return 0, nil
	}
	if u, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(u), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", v)
}

func parseDuration(v string) (Duration, error) {
	raw := strings.TrimSpace(v)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", v)
}

func splitAddr(a string) (string, int) {
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0
	}
	return h, atoi(p)
}

func atoi(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
