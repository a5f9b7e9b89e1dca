package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultSessions are the A-share continuous trading sessions.
const DefaultSessions = "09:30-11:30,13:00-15:00"

// Gates are the two scheduling inputs of a cycle.
type Gates struct {
	Tradable          bool // a cycle may dispatch orders now
	SensitiveBoundary bool // close to a session open or close; dispatch waits the settle delay
}

// Session is a trading session as offsets from local midnight.
type Session struct {
	Start time.Duration
	End   time.Duration
}

func (s Session) String() string {
	return fmt.Sprintf("%s-%s", clock(s.Start), clock(s.End))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ParseSessions parses "HH:MM-HH:MM,HH:MM-HH:MM". Sessions must not overlap.
func ParseSessions(raw string) ([]Session, error) {
	var sessions []Session
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("session %q: expected HH:MM-HH:MM", part)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", part, err)
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("session %q: end must be after start", part)
		}
		sessions = append(sessions, Session{Start: start, End: end})
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no trading sessions defined")
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Start < sessions[j].Start })
	for i := 1; i < len(sessions); i++ {
		if sessions[i].Start < sessions[i-1].End {
			return nil, fmt.Errorf("sessions %s and %s overlap", sessions[i-1], sessions[i])
		}
	}
	return sessions, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// TradingWindow computes cycle gates from the wall clock. Weekends are never tradable.
// Exchange holidays are not modelled.
type TradingWindow struct {
	Location *time.Location
	Sessions []Session
	Margin   time.Duration // distance from a session edge that counts as sensitive
}

// Gates returns the scheduling inputs at now.
func (w TradingWindow) Gates(now time.Time) Gates {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Gates{}
	}

	y, m, d := local.Date()
	tod := local.Sub(time.Date(y, m, d, 0, 0, 0, 0, loc))

	var g Gates
	for _, s := range w.Sessions {
		if tod >= s.Start && tod < s.End {
			g.Tradable = true
		}
		if abs(tod-s.Start) <= w.Margin || abs(tod-s.End) <= w.Margin {
			g.SensitiveBoundary = true
		}
	}
	return g
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
