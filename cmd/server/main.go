// Package main provides the entry point for the health recorder server: a
// small web app for logging health notes and asking a local model about them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/health-recorder-ai/health-recorder/internal/cmd"
	"github.com/health-recorder-ai/health-recorder/internal/config"
	"github.com/health-recorder-ai/health-recorder/internal/logging"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	var configPath string
	var showVersion bool
	var quietMode bool
	var verboseMode bool
	var noWatch bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&quietMode, "quiet", false, "Run in quiet mode (overrides --verbose)")
	flag.BoolVar(&verboseMode, "verbose", false, "Run in verbose mode")
	flag.BoolVar(&noWatch, "no-watch", false, "Disable config hot reload")
	flag.Parse()

	if showVersion {
		fmt.Printf("health-recorder %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}
	if handleServiceCommand(flag.Args(), configPath) {
		return
	}
	if isWindowsService() {
		if err := runService(configPath); err != nil {
			os.Exit(1)
		}
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	if err = cmd.ApplyLogging(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}
	// CLI flags override config-based log level
	if quietMode {
		logging.SetLogLevel("quiet")
	} else if verboseMode {
		logging.SetLogLevel("verbose")
	}

	log.Infof("health-recorder %s, model %s via %s", Version, cfg.Model, cfg.GenerateEndpoint)

	watchPath := configPath
	if noWatch {
		watchPath = ""
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = cmd.StartService(ctx, cfg, watchPath); err != nil {
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
