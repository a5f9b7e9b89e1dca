package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"logMirrorBot/internal/adapters/logger"
	"logMirrorBot/internal/adapters/sqlite"
	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/utils"
)

var (
	dbPath  = flag.String("db", "./data/log_mirror.db", "SQLite database path")
	queryID = flag.String("query", os.Getenv("JQ_QUERY_ID"), "query id (default $JQ_QUERY_ID)")
	limit   = flag.Int("limit", 50, "number of most recent records to show")
	tz      = flag.String("tz", "Asia/Shanghai", "timezone for display and the daily summary")
	csvFile = flag.String("csv", "", "also write the records to this CSV file")
)

func main() {
	flag.Parse()
	if *queryID == "" {
		log.Fatal("-query or JQ_QUERY_ID must be set")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("Invalid -tz %q: %v", *tz, err)
	}

	appLogger, err := logger.New(logger.LevelWarn, logger.FormatConsole)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer appLogger.Sync()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger, Location: loc})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	records, err := repo.FindByQuery(ctx, *queryID, *limit)
	if err != nil {
		log.Fatalf("Error reading execution records: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Attempted\tSignal time\tSide\tCode\tPrice\tQty\tStatus\tMessage")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.AttemptedAt.Format(domain.TimestampLayout),
			r.Signal.Timestamp.Format(domain.TimestampLayout),
			r.Signal.Side,
			r.Signal.InstrumentCode,
			r.Signal.Price.StringFixed(2),
			r.Signal.Quantity,
			r.Status,
			r.Message,
		)
	}
	w.Flush()

	today := time.Now().In(loc)
	succeeded, err := repo.CountByStatusOn(ctx, *queryID, domain.StatusSuccess, today)
	if err != nil {
		log.Fatalf("Error counting records: %v", err)
	}
	failed, err := repo.CountByStatusOn(ctx, *queryID, domain.StatusFailed, today)
	if err != nil {
		log.Fatalf("Error counting records: %v", err)
	}
	fmt.Printf("\nToday (%s): %d succeeded, %d failed\n", today.Format("2006-01-02"), succeeded, failed)

	if *csvFile != "" {
		if err := utils.WriteExecutionsToCSV(records, *csvFile); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("Saved to %s\n", *csvFile)
	}
}
