package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"convodb/internal/app"
	"convodb/pkg/config"
	"convodb/pkg/state"
	"convodb/pkg/state/logger"
	"convodb/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")
	shutdown.SetVersion(version)

	flags, err := config.ParseConfigFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "convodb: %v\n", err)
		os.Exit(2)
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags, os.Getenv)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DB)
	}
	envCfg, envUsed := config.ParseConfigEnvs(os.Getenv)

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.DB)
	}
	if err := config.ValidateConfig(&eff); err != nil {
		shutdown.Abort("invalid configuration", err, eff.DBPath)
	}
	if flags.Validate {
		fmt.Printf("config ok (source: %s)\n", eff.Source)
		return
	}

	logger.Init(eff.Config.Logging.Level, eff.Config.Logging.Format)
	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "live", eff.Config.LiveAddr(), "db_path", eff.DBPath)
	logger.LogConfigSummary("config_summary", []string{
		"live_path=" + eff.Config.Live.Path,
		"sweep_cron=" + eff.Config.Presence.SweepCron,
		fmt.Sprintf("jwt_enabled=%t", eff.Config.Auth.JWTSecret != ""),
		fmt.Sprintf("storage_sync=%t", eff.Config.Storage.Sync),
	})

	// init database folders and ensure the filesystem layout.
	if err := state.Init(eff.DBPath); err != nil {
		logger.Error("state_dirs_setup_failed", "error", err)
		shutdown.Abort(fmt.Sprintf("failed to ensure state directories under %s", eff.DBPath), err, eff.DBPath)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	runErr := a.Run(ctx)

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)

	if runErr != nil {
		shutdown.Abort("app run failed", runErr, eff.DBPath)
	}
}
