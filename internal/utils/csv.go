package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"logMirrorBot/internal/domain"
)

var signalHeader = []string{"timestamp", "side", "instrument_code", "price", "quantity", "dialect", "line"}

// WriteSignalsToCSV writes signals to filename, creating its directory.
func WriteSignalsToCSV(signals []domain.TradeSignal, filename string) error {
	rows := make([][]string, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, signalRow(s))
	}
	return writeCSV(filename, signalHeader, rows)
}

// WriteExecutionsToCSV writes execution records to filename, creating its directory.
func WriteExecutionsToCSV(records []*domain.ExecutionRecord, filename string) error {
	header := append([]string{"record_id", "attempted_at", "status", "final_state", "message"}, signalHeader...)
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{r.ID.String(), r.AttemptedAt.Format(time.RFC3339), string(r.Status), string(r.FinalState), r.Message}
		rows = append(rows, append(row, signalRow(r.Signal)...))
	}
	return writeCSV(filename, header, rows)
}

func signalRow(s domain.TradeSignal) []string {
	return []string{
		s.Timestamp.Format(domain.TimestampLayout),
		string(s.Side),
		s.InstrumentCode,
		s.Price.StringFixed(2),
		strconv.FormatInt(s.Quantity, 10),
		s.Dialect,
		strconv.Itoa(s.Line),
	}
}

func writeCSV(filename string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil { // WriteAll flushes
		return err
	}
	return writer.Error()
}
