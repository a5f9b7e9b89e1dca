// Package signals extracts canonical trade signals from free-text log lines.
package signals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

// Rejection reasons.
const (
	ReasonBadTimestamp    = "bad_timestamp"
	ReasonStaleDay        = "stale_day"
	ReasonMalformed       = "malformed"
	ReasonInvalidCode     = "invalid_code"
	ReasonMissingQuantity = "missing_quantity"
	ReasonInvalidQuantity = "invalid_quantity"
)

// Rejection describes a line that looked like an order event but was dropped.
type Rejection struct {
	Line    int // 1-based
	Reason  string
	Snippet string // first 100 characters of the line
	Err     error
}

// Result is the outcome of one extraction pass.
type Result struct {
	Signals  []domain.TradeSignal // ascending by timestamp, stable
	Rejected []Rejection          // in line order
	Noise    int                  // lines matching no dialect and carrying no companion clause
}

// Config holds configuration for the Extractor.
type Config struct {
	Location   *time.Location // zone of the log timestamps; defaults to time.Local
	CodeLength int            // exchange code length; defaults to 6
	Dialects   []Dialect      // defaults to DefaultDialects
	Logger     ports.Logger
}

// Extractor turns a batch of log lines into ordered TradeSignals.
type Extractor struct {
	loc        *time.Location
	codeLength int
	dialects   []Dialect
	logger     ports.Logger
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for signal extractor")
	}
	if cfg.CodeLength < 0 {
		return nil, fmt.Errorf("code length cannot be negative")
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = 6
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if len(cfg.Dialects) == 0 {
		cfg.Dialects = DefaultDialects(cfg.CodeLength)
	}
	return &Extractor{
		loc:        cfg.Location,
		codeLength: cfg.CodeLength,
		dialects:   cfg.Dialects,
		logger:     cfg.Logger,
	}, nil
}

// companion is a same-day line carrying a lot or slippage clause for an instrument.
type companion struct {
	code    string
	lot     int64
	hasLot  bool
	slip    decimal.Decimal
	hasSlip bool
	lineNo  int
}

type orderLine struct {
	lineNo  int
	raw     string
	ts      time.Time
	code    string
	dialect string
	partial Partial
}

// Extract parses lines into signals for referenceDate. A malformed line is
// rejected and logged; it never aborts the batch.
func (e *Extractor) Extract(ctx context.Context, lines []string, referenceDate time.Time) Result {
	op := "Extract"
	var res Result
	var companions []companion
	var orders []orderLine

	refY, refM, refD := referenceDate.In(e.loc).Date()

	reject := func(lineNo int, raw, reason string, err error) {
		r := Rejection{Line: lineNo, Reason: reason, Snippet: snippet(raw), Err: err}
		res.Rejected = append(res.Rejected, r)
		fields := map[string]interface{}{"line": lineNo, "reason": reason, "text": r.Snippet}
		if err != nil {
			fields["error"] = err.Error()
		}
		e.logger.Warn(ctx, op+": Rejected log line", fields)
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)

		dialect := e.match(line)
		lot, hasLot, lotErr := lotClause(line)
		slip, hasSlip, slipErr := slippageClause(line)
		if dialect == nil && !hasLot && !hasSlip {
			res.Noise++
			continue
		}

		ts, body, err := e.splitTimestamp(line)
		if err != nil {
			reject(lineNo, raw, ReasonBadTimestamp, err)
			continue
		}
		if y, m, d := ts.Date(); y != refY || m != refM || d != refD {
			reject(lineNo, raw, ReasonStaleDay, nil)
			continue
		}
		if lotErr != nil {
			reject(lineNo, raw, ReasonMalformed, lotErr)
			continue
		}
		if slipErr != nil {
			reject(lineNo, raw, ReasonMalformed, slipErr)
			continue
		}

		var code string
		if dialect != nil {
			partial, err := dialect.Parse(body)
			if err != nil {
				reject(lineNo, raw, ReasonMalformed, err)
				continue
			}
			code, err = NormalizeCode(partial.Security, e.codeLength)
			if err != nil {
				reject(lineNo, raw, ReasonInvalidCode, err)
				continue
			}
			orders = append(orders, orderLine{lineNo: lineNo, raw: raw, ts: ts, code: code, dialect: dialect.Name(), partial: partial})
		} else {
			security, ok := securityOf(body, e.codeLength)
			if !ok {
				e.logger.Debug(ctx, op+": Companion line without instrument code ignored", map[string]interface{}{"line": lineNo, "text": snippet(raw)})
				continue
			}
			code, err = NormalizeCode(security, e.codeLength)
			if err != nil {
				reject(lineNo, raw, ReasonInvalidCode, err)
				continue
			}
		}

		if hasLot || hasSlip {
			companions = append(companions, companion{code: code, lot: lot, hasLot: hasLot, slip: slip, hasSlip: hasSlip, lineNo: lineNo})
		}
	}

	for _, o := range orders {
		sig, reason, err := e.resolve(o, companions)
		if err != nil {
			reject(o.lineNo, o.raw, reason, err)
			continue
		}
		res.Signals = append(res.Signals, sig)
	}

	sort.SliceStable(res.Signals, func(i, j int) bool {
		return res.Signals[i].Timestamp.Before(res.Signals[j].Timestamp)
	})
	sort.SliceStable(res.Rejected, func(i, j int) bool {
		return res.Rejected[i].Line < res.Rejected[j].Line
	})

	e.logger.Debug(ctx, op+": Extraction finished", map[string]interface{}{
		"lines":    len(lines),
		"signals":  len(res.Signals),
		"rejected": len(res.Rejected),
		"noise":    res.Noise,
	})
	return res
}

// resolve completes an order line with quantity and price, using companion
// lines when the order line lacks them. The first companion in file order wins.
func (e *Extractor) resolve(o orderLine, companions []companion) (domain.TradeSignal, string, error) {
	p := o.partial

	qty, found := p.Quantity, p.HasQty
	if !found {
		if c, ok := firstCompanion(companions, o, func(c companion) bool { return c.hasLot }); ok {
			qty, found = c.lot, true
		}
	}
	if !found {
		return domain.TradeSignal{}, ReasonMissingQuantity, fmt.Errorf("no lot clause for %s", o.code)
	}
	if qty <= 0 {
		return domain.TradeSignal{}, ReasonInvalidQuantity, fmt.Errorf("quantity %d is not positive", qty)
	}

	price := decimal.Zero
	switch p.Side {
	case domain.Buy:
		if c, ok := firstCompanion(companions, o, func(c companion) bool { return c.hasSlip }); ok {
			price = c.slip
		}
	case domain.Sell:
		if p.Price == nil {
			return domain.TradeSignal{}, ReasonMalformed, fmt.Errorf("sell line has no price")
		}
		price = *p.Price
	}

	return domain.TradeSignal{
		Timestamp:      o.ts,
		Side:           p.Side,
		InstrumentCode: o.code,
		Price:          price,
		Quantity:       qty,
		Dialect:        o.dialect,
		Line:           o.lineNo,
	}, "", nil
}

// firstCompanion prefers the order's own line, then scans the whole batch in file order.
func firstCompanion(companions []companion, o orderLine, want func(companion) bool) (companion, bool) {
	for _, c := range companions {
		if c.lineNo == o.lineNo && want(c) {
			return c, true
		}
	}
	for _, c := range companions {
		if c.code == o.code && want(c) {
			return c, true
		}
	}
	return companion{}, false
}

func (e *Extractor) match(line string) Dialect {
	for _, d := range e.dialects {
		if d.Match(line) {
			return d
		}
	}
	return nil
}

// splitTimestamp parses the leading YYYY-MM-DD HH:MM:SS field and returns the rest of the line.
func (e *Extractor) splitTimestamp(line string) (time.Time, string, error) {
	n := len(domain.TimestampLayout)
	if len(line) < n {
		return time.Time{}, "", fmt.Errorf("line shorter than timestamp")
	}
	ts, err := time.ParseInLocation(domain.TimestampLayout, line[:n], e.loc)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, line[n:], nil
}
