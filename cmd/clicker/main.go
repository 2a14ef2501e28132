// ====================================
// File: cmd/clicker/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/app"
	"github.com/bigyan313/OBGC-V19/internal/config"
	"github.com/bigyan313/OBGC-V19/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// Local overrides from .env, if present
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}

	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := app.NewRunner(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize runner", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Clicker exited with error", zap.Error(err))
	}
}
