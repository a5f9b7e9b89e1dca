package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSignal is a canonical trade intent derived from log text.
type TradeSignal struct {
	Timestamp      time.Time       // Wall time in the trading location
	Side           Side            // BUY or SELL
	InstrumentCode string          // Digits only, fixed length (e.g. "600000")
	Price          decimal.Decimal // Zero means market order
	Quantity       int64           // Already lot adjusted by the source
	Dialect        string          // Name of the dialect that produced it
	Line           int             // 1-based line number in the payload
}

// IsMarket reports whether the signal carries the market order sentinel price.
func (s TradeSignal) IsMarket() bool {
	return s.Price.IsZero()
}

// Identity returns the deduplication key of the signal. Price is not part of it.
func (s TradeSignal) Identity() Identity {
	return Identity{
		Timestamp:      s.Timestamp.Format(TimestampLayout),
		Side:           s.Side,
		InstrumentCode: s.InstrumentCode,
		Quantity:       s.Quantity,
	}
}

func (s TradeSignal) String() string {
	return fmt.Sprintf("%s %s %s x%d @ %s", s.Timestamp.Format(TimestampLayout), s.Side, s.InstrumentCode, s.Quantity, s.Price.StringFixed(2))
}

// Identity is the (timestamp, side, instrument, quantity) tuple used for at-most-once dispatch.
// It is comparable and can be used as a map key.
type Identity struct {
	Timestamp      string
	Side           Side
	InstrumentCode string
	Quantity       int64
}

const identitySeparator = "|"

// Key renders the identity as a stable string for persistence.
func (id Identity) Key() string {
	return strings.Join([]string{id.Timestamp, string(id.Side), id.InstrumentCode, strconv.FormatInt(id.Quantity, 10)}, identitySeparator)
}

// ParseIdentityKey is the inverse of Identity.Key.
func ParseIdentityKey(key string) (Identity, error) {
	parts := strings.Split(key, identitySeparator)
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("malformed identity key %q", key)
	}
	if _, err := time.Parse(TimestampLayout, parts[0]); err != nil {
		return Identity{}, fmt.Errorf("malformed identity timestamp in %q: %w", key, err)
	}
	side := Side(parts[1])
	if !side.Valid() {
		return Identity{}, fmt.Errorf("unknown side in identity key %q", key)
	}
	qty, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("malformed identity quantity in %q: %w", key, err)
	}
	return Identity{Timestamp: parts[0], Side: side, InstrumentCode: parts[2], Quantity: qty}, nil
}

// IdentitySet is a set of signal identities.
type IdentitySet map[Identity]struct{}

// NewIdentitySet builds a set holding ids.
func NewIdentitySet(ids ...Identity) IdentitySet {
	set := make(IdentitySet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set. A nil set is empty.
func (s IdentitySet) Has(id Identity) bool {
	_, ok := s[id]
	return ok
}

// Clone returns an independent copy of the set.
func (s IdentitySet) Clone() IdentitySet {
	out := make(IdentitySet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
