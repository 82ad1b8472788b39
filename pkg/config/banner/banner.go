package banner

import (
	"fmt"
	"io"

	"convodb/pkg/config"
)

const banner = `
  ___ ___  _ ____   _____  __| | |__
 / __/ _ \| '_ \ \ / / _ \/ _' | '_ \
| (_| (_) | | | \ V / (_) | (_| | |_) |
 \___\___/|_| |_|\_/ \___/\__,_|_.__/
`

// Print writes the startup banner with the effective listeners and a short
// production readiness checklist.
func Print(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "REST:     %s\n", eff.Addr)
	if cfg != nil {
		fmt.Fprintf(w, "Live:     %s%s\n", cfg.LiveAddr(), cfg.Live.Path)
	}
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)
	if cfg == nil {
		return
	}

	fmt.Fprintln(w, "\n== Production? =================================================")
	check(w, "Backend API keys", len(cfg.Server.APIKeys.Backend), "required for user registration")
	check(w, "Frontend API keys", len(cfg.Server.APIKeys.Frontend), "signed requests only")
	check(w, "Admin API keys", len(cfg.Server.APIKeys.Admin), "admin routes disabled")
	if cfg.Auth.JWTSecret != "" {
		fmt.Fprintln(w, "- JWT user tokens: OK")
	} else {
		fmt.Fprintln(w, "- JWT user tokens: DISABLED (set auth.jwt_secret)")
	}
	if len(cfg.Server.CORS.AllowedOrigins) > 0 {
		fmt.Fprintf(w, "- CORS origins: %v\n", cfg.Server.CORS.AllowedOrigins)
	} else {
		fmt.Fprintln(w, "- CORS origins: NONE (browsers cannot call the API)")
	}
	fmt.Fprintf(w, "- Presence sweep: %s\n", cfg.Presence.SweepCron)
	fmt.Fprintln(w, "================================================================")
}

func check(w io.Writer, name string, n int, missing string) {
	if n > 0 {
		fmt.Fprintf(w, "- %s: OK (%d)\n", name, n)
		return
	}
	fmt.Fprintf(w, "- %s: MISSING (%s)\n", name, missing)
}
