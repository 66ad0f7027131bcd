// Package main provides journal-import, a one-shot tool that converts a legacy
// markdown health journal into individual record files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/health-recorder-ai/health-recorder/internal/config"
	"github.com/health-recorder-ai/health-recorder/internal/journal"
	"github.com/health-recorder-ai/health-recorder/internal/logging"
	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var inPath string
	var dataDir string
	var configPath string
	var start int
	var end int
	var dryRun bool
	var verbose bool

	flag.StringVar(&inPath, "in", "", "Markdown journal to import (required)")
	flag.StringVar(&dataDir, "data-dir", "", "Record directory (defaults to data-dir from the config)")
	flag.StringVar(&configPath, "config", "config.yaml", "Configure File Path")
	flag.IntVar(&start, "start", 0, "Index of the first entry to import")
	flag.IntVar(&end, "end", 0, "Index one past the last entry to import (0 = all)")
	flag.BoolVar(&dryRun, "dry-run", false, "List the files that would be created without writing")
	flag.BoolVar(&verbose, "verbose", false, "Log skipped entries")
	flag.Parse()

	if inPath == "" {
		fmt.Fprintln(os.Stderr, "journal-import: -in is required")
		flag.Usage()
		os.Exit(2)
	}
	if verbose {
		logging.SetLogLevel("verbose")
	}

	if dataDir == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		dataDir = cfg.DataDir
	}

	entries, err := journal.ParseFile(inPath)
	if err != nil {
		log.Fatalf("failed to parse journal: %v", err)
	}
	log.Infof("found %d entries in %s", len(entries), inPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := journal.Import(ctx, record.NewFileStore(dataDir), entries, journal.Options{
		Start:  start,
		End:    end,
		DryRun: dryRun,
	})
	for _, name := range res.Created {
		if dryRun {
			fmt.Printf("would create: %s\n", name)
		} else {
			fmt.Printf("created: %s\n", name)
		}
	}
	fmt.Printf("%d created, %d already present, %d empty\n", len(res.Created), res.Existing, res.Empty)
	if err != nil {
		log.Errorf("import stopped: %v", err)
		os.Exit(1)
	}
}
