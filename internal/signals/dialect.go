package signals

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
)

// Partial is what a dialect reads from the body of a single order line
// (the text after the leading timestamp).
type Partial struct {
	Side     domain.Side
	Security string           // raw security token, normalized later
	Price    *decimal.Decimal // nil when the line carries no price
	Quantity int64
	HasQty   bool // false when the quantity must come from a lot clause
}

// Dialect recognises one textual format of order events.
// Parse must be pure; cross-line correlation happens in the Extractor.
type Dialect interface {
	Name() string
	Match(body string) bool
	Parse(body string) (Partial, error)
}

// DefaultDialects returns the dialects observed in the JoinQuant logs.
func DefaultDialects(codeLength int) []Dialect {
	return []Dialect{
		CommittedOrderDialect{},
		FilledTradeDialect{CodeLength: codeLength},
	}
}

// CommittedOrderDialect reads committed-order lines such as
//
//	订单已委托 ... security=600000.XSHG ... _limit_price=12.48 ... action=open ... 调整为300)
//
// The commit marker is required: cancel and reject lines repeat the same order repr.
// The quantity usually comes from a lot clause, on this or another line.
type CommittedOrderDialect struct{}

func (CommittedOrderDialect) Name() string { return "committed-order" }

func (CommittedOrderDialect) Match(body string) bool {
	return containsAny(body, commitMarkers...) &&
		containsAny(body, "security=") && containsAny(body, "_limit_price=")
}

func (CommittedOrderDialect) Parse(body string) (Partial, error) {
	var p Partial

	security, ok := valueAfter(body, "security=")
	if !ok || security == "" {
		return p, fmt.Errorf("missing security")
	}
	p.Security = security

	side, ok := sideOf(body)
	if !ok {
		return p, fmt.Errorf("missing action/side discriminator")
	}
	p.Side = side

	raw, _ := valueAfter(body, "_limit_price=")
	price, err := parsePrice(raw)
	if err != nil {
		return p, err
	}
	p.Price = &price

	return p, nil
}

// FilledTradeDialect reads filled-trade lines carrying "trade price:" (or "price:")
// and "amount:" fields, with action=open/close (or side=long/short) as the side.
type FilledTradeDialect struct {
	CodeLength int
}

var tradePriceMarkers = []string{"trade price:", "price:"}

func (FilledTradeDialect) Name() string { return "filled-trade" }

func (FilledTradeDialect) Match(body string) bool {
	return containsAny(body, "amount:") && containsAny(body, tradePriceMarkers...)
}

func (d FilledTradeDialect) Parse(body string) (Partial, error) {
	var p Partial

	security, ok := securityOf(body, d.CodeLength)
	if !ok {
		return p, fmt.Errorf("missing security")
	}
	p.Security = security

	side, ok := sideOf(body)
	if !ok {
		return p, fmt.Errorf("missing action/side discriminator")
	}
	p.Side = side

	raw, _ := firstValueAfter(body, tradePriceMarkers...)
	price, err := parsePrice(raw)
	if err != nil {
		return p, err
	}
	p.Price = &price

	amount, _ := valueAfter(body, "amount:")
	digits := leadingDigits(amount)
	if digits == "" || digits != amount {
		return p, fmt.Errorf("amount %q is not a whole number", amount)
	}
	qty, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return p, fmt.Errorf("amount %q: %w", amount, err)
	}
	p.Quantity = qty
	p.HasQty = true

	return p, nil
}
