package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/pacificderg/autoblock-bot/internal/app"
	"github.com/pacificderg/autoblock-bot/pkg/config"
	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	addrFlag := flag.String("addr", "", "listen address (host:port), overrides config")
	dbFlag := flag.String("db", "", "pebble database path, overrides config")
	cfgFlag := flag.String("config", "", "path to config yaml")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	logger.Init(*logLevel)

	cfgPath := *cfgFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("AUTOBLOCK_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "./config.yaml"
	}

	eff, err := config.Ensure(cfgPath)
	if err != nil {
		shutdown.Abort("failed to load config", err, "", 0)
	}
	// Explicit flags win over config and env.
	if *addrFlag != "" {
		eff.Addr = *addrFlag
	}
	if *dbFlag != "" {
		eff.DBPath = *dbFlag
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, eff.DBPath)
	}
}
