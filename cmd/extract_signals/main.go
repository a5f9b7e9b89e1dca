package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"logMirrorBot/internal/adapters/logger"
	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/feed"
	"logMirrorBot/internal/signals"
	"logMirrorBot/internal/utils"
)

var (
	file       = flag.String("file", "", "saved log payload (JSON, HTML or text)")
	dates      = flag.String("dates", "", "comma separated YYYY-MM-DD dates (default: every date found in the log)")
	tz         = flag.String("tz", "Asia/Shanghai", "timezone of the log timestamps")
	codeLength = flag.Int("code-length", 6, "instrument code length")
	csvDir     = flag.String("csv", "", "also write one CSV per date into this directory")
	verbose    = flag.Bool("v", false, "log rejected lines")
)

func main() {
	flag.Parse()
	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("Invalid -tz %q: %v", *tz, err)
	}
	level := logger.LevelError
	if *verbose {
		level = logger.LevelWarn
	}
	appLogger, err := logger.New(level, logger.FormatConsole)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer appLogger.Sync()

	body, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Error reading %s: %v", *file, err)
	}
	lines, err := feed.DecodeLines(body)
	if err != nil {
		log.Fatalf("Error decoding %s: %v", *file, err)
	}

	days, err := referenceDays(*dates, lines, loc)
	if err != nil {
		log.Fatalf("Invalid -dates: %v", err)
	}
	if len(days) == 0 {
		log.Println("No dated log lines found.")
		return
	}

	extractor, err := signals.New(signals.Config{Location: loc, CodeLength: *codeLength, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error creating extractor: %v", err)
	}

	for _, day := range days {
		res := extractor.Extract(context.Background(), lines, day)
		printDay(day, res)

		if *csvDir != "" {
			name := filepath.Join(*csvDir, fmt.Sprintf("signals_%s.csv", day.Format("20060102")))
			if err := utils.WriteSignalsToCSV(res.Signals, name); err != nil {
				log.Fatalf("Error writing CSV: %v", err)
			}
		}
	}
}

// referenceDays parses the -dates flag, or collects every date that starts a log line.
func referenceDays(raw string, lines []string, loc *time.Location) ([]time.Time, error) {
	var days []time.Time
	if raw != "" {
		for _, s := range strings.Split(raw, ",") {
			d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
			if err != nil {
				return nil, err
			}
			days = append(days, d)
		}
		return days, nil
	}

	found := make(map[string]bool)
	for _, line := range lines {
		if len(line) < len(domain.TimestampLayout) {
			continue
		}
		if _, err := time.ParseInLocation(domain.TimestampLayout, line[:len(domain.TimestampLayout)], loc); err == nil {
			found[line[:10]] = true
		}
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d, _ := time.ParseInLocation("2006-01-02", k, loc)
		days = append(days, d)
	}
	return days, nil
}

func printDay(day time.Time, res signals.Result) {
	fmt.Printf("\n## %s: %d signals, %d rejected, %d noise\n", day.Format("2006-01-02"), len(res.Signals), len(res.Rejected), res.Noise)
	if len(res.Signals) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Time\tSide\tCode\tPrice\tQty\tDialect\tLine")
	for _, s := range res.Signals {
		price := s.Price.StringFixed(2)
		if s.IsMarket() {
			price = "market"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			s.Timestamp.Format("15:04:05"), s.Side, s.InstrumentCode, price, s.Quantity, s.Dialect, s.Line)
	}
	w.Flush()
}
