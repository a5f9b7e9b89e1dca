package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"logMirrorBot/config"
	"logMirrorBot/internal/adapters/joinquant"
	"logMirrorBot/internal/adapters/logger"
	"logMirrorBot/internal/feed"
	"logMirrorBot/internal/signals"
	"logMirrorBot/internal/utils"
)

var (
	outDir  = flag.String("out", "data", "directory for the raw payload and signal CSV")
	dateStr = flag.String("date", "", "reference date YYYY-MM-DD for signal export (default today in the trading timezone)")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel, logger.FormatConsole)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	refDate := time.Now().In(cfg.Location)
	if *dateStr != "" {
		refDate, err = time.ParseInLocation("2006-01-02", *dateStr, cfg.Location)
		if err != nil {
			log.Fatalf("FATAL: Invalid -date %q: %v", *dateStr, err)
		}
	}

	// 3. Initialize Log Source (JoinQuant Adapter)
	client, err := joinquant.New(joinquant.Config{
		BaseURL: cfg.BaseURL,
		Cookies: cfg.Cookies,
		Timeout: cfg.FetchTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize JoinQuant client")
		log.Fatalf("FATAL: Failed to initialize JoinQuant client: %v", err)
	}

	fmt.Printf("Fetching log for %s...\n", cfg.QueryID)
	payload, err := client.Fetch(ctx, cfg.QueryID)
	if err != nil {
		if joinquant.IsAuthError(err) {
			log.Fatalf("Session rejected, refresh JQ_COOKIES: %v", err)
		}
		log.Fatalf("Error fetching log: %v", err)
	}

	stamp := payload.FetchedAt.In(cfg.Location).Format("20060102_150405")
	rawFile := filepath.Join(*outDir, fmt.Sprintf("%s_%s.log", cfg.QueryID, stamp))
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Error creating %s: %v", *outDir, err)
	}
	if err := os.WriteFile(rawFile, payload.Body, 0644); err != nil {
		log.Fatalf("Error saving payload: %v", err)
	}
	appLogger.Info(ctx, "Saved raw payload", map[string]interface{}{"filename": rawFile, "bytes": len(payload.Body)})

	// 4. Extract and export the reference day's signals
	lines, err := feed.Lines(payload)
	if err != nil {
		log.Fatalf("Error decoding payload: %v", err)
	}
	extractor, err := signals.New(signals.Config{Location: cfg.Location, CodeLength: cfg.InstrumentCodeLength, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error creating extractor: %v", err)
	}
	res := extractor.Extract(ctx, lines, refDate)

	csvFile := filepath.Join(*outDir, fmt.Sprintf("%s_signals_%s.csv", cfg.QueryID, refDate.Format("20060102")))
	if err := utils.WriteSignalsToCSV(res.Signals, csvFile); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved signals", map[string]interface{}{
		"filename": csvFile,
		"lines":    len(lines),
		"signals":  len(res.Signals),
		"rejected": len(res.Rejected),
	})
}
