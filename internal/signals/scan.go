package signals

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"logMirrorBot/internal/domain"
)

// Markers recognised anywhere in a line.
var (
	commitMarkers   = []string{"订单已委托", "order committed"}
	lotMarkers      = []string{"lot adjusted to", "调整为"}
	slippageMarkers = []string{"adjusted price after slippage", "滑点调整后价格", "滑点后价格"}
)

// valuePrefix is skipped between a marker and its value.
const valuePrefix = " \t:=："

func isDelimiter(r rune) bool {
	switch r {
	case ' ', '\t', ',', ';', ')', ']', '}', '|', '，', '；', '）', '】':
		return true
	}
	return false
}

// valueAfter returns the text following the first occurrence of marker,
// up to the next delimiter.
func valueAfter(line, marker string) (string, bool) {
	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimLeft(line[i+len(marker):], valuePrefix)
	end := strings.IndexFunc(rest, isDelimiter)
	if end < 0 {
		end = len(rest)
	}
	return rest[:end], true
}

// fieldAfter is valueAfter for key=value fields: the key must start a token,
// so "action=" does not match inside "transaction=".
func fieldAfter(line, key string) (string, bool) {
	from := 0
	for {
		i := strings.Index(line[from:], key)
		if i < 0 {
			return "", false
		}
		i += from
		if prev, _ := utf8.DecodeLastRuneInString(line[:i]); i == 0 || isFieldBoundary(prev) {
			return valueAfter(line[i:], key)
		}
		from = i + len(key)
	}
}

func isFieldBoundary(r rune) bool {
	switch r {
	case '(', '[', '{', ':', '（', '【', '：':
		return true
	}
	return isDelimiter(r)
}

// firstValueAfter tries markers in order and returns the first hit.
func firstValueAfter(line string, markers ...string) (string, bool) {
	for _, m := range markers {
		if v, ok := valueAfter(line, m); ok {
			return v, true
		}
	}
	return "", false
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// leadingNumber returns the decimal literal at the start of s (digits and one dot).
func leadingNumber(s string) string {
	end, dot := 0, false
	for end < len(s) {
		c := s[end]
		if c == '.' && !dot {
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		end++
	}
	return s[:end]
}

func containsAny(line string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// lotClause reads the lot adjusted quantity from a line.
// found is true when a lot marker is present, even if the number is malformed.
func lotClause(line string) (qty int64, found bool, err error) {
	for _, m := range lotMarkers {
		i := strings.Index(line, m)
		if i < 0 {
			continue
		}
		rest := strings.TrimLeft(line[i+len(m):], valuePrefix)
		digits := leadingDigits(rest)
		if digits == "" {
			return 0, true, fmt.Errorf("lot clause %q has no quantity", m)
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("lot clause quantity %q: %w", digits, err)
		}
		return n, true, nil
	}
	return 0, false, nil
}

// slippageClause reads the slippage adjusted price from a line.
func slippageClause(line string) (price decimal.Decimal, found bool, err error) {
	for _, m := range slippageMarkers {
		i := strings.Index(line, m)
		if i < 0 {
			continue
		}
		rest := strings.TrimLeft(line[i+len(m):], valuePrefix)
		p, err := parsePrice(leadingNumber(rest))
		if err != nil {
			return decimal.Zero, true, fmt.Errorf("slippage clause: %w", err)
		}
		return p, true, nil
	}
	return decimal.Zero, false, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %q is not numeric: %w", raw, err)
	}
	if p.IsNegative() {
		return decimal.Zero, fmt.Errorf("price %q is negative", raw)
	}
	return p, nil
}

// sideOf maps action=open/close to BUY/SELL, falling back to side=long/short.
func sideOf(line string) (domain.Side, bool) {
	if v, ok := fieldAfter(line, "action="); ok {
		switch strings.ToLower(v) {
		case "open":
			return domain.Buy, true
		case "close":
			return domain.Sell, true
		}
	}
	if v, ok := fieldAfter(line, "side="); ok {
		switch strings.ToLower(v) {
		case "long", "buy":
			return domain.Buy, true
		case "short", "sell":
			return domain.Sell, true
		}
	}
	return "", false
}

// securityOf returns the raw security token of a line: the security= field when
// present, else the first token shaped like an instrument code.
func securityOf(line string, codeLength int) (string, bool) {
	if v, ok := valueAfter(line, "security="); ok && v != "" {
		return v, true
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return isDelimiter(r) || r == ':' || r == '=' || r == '(' || r == '[' || r == '（' || r == '：'
	})
	for _, f := range fields {
		if looksLikeCode(f, codeLength) {
			return f, true
		}
	}
	return "", false
}

// looksLikeCode matches "600000" and "600000.XSHG" style tokens.
func looksLikeCode(token string, codeLength int) bool {
	base, suffix, _ := strings.Cut(token, ".")
	if len(base) != codeLength || leadingDigits(base) != base {
		return false
	}
	for _, r := range suffix {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// NormalizeCode keeps the digits of the part before the first '.', then
// left-pads with zeros or keeps the rightmost length digits.
func NormalizeCode(raw string, length int) (string, error) {
	base, _, _ := strings.Cut(raw, ".")
	var b strings.Builder
	for _, r := range base {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", fmt.Errorf("security %q has no digits", raw)
	}
	if len(digits) > length {
		digits = digits[len(digits)-length:]
	}
	return strings.Repeat("0", length-len(digits)) + digits, nil
}

func snippet(line string) string {
	r := []rune(line)
	if len(r) > 100 {
		return string(r[:100])
	}
	return line
}
