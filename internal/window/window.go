// Package window maps wall-clock trigger times onto the configured trading
// windows. All window times are interpreted in the exchange time zone.
package window

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"alphatrade/internal/logger"
)

const ExchangeTZ = "America/New_York"

// Window is a named recurring time-of-day target.
type Window struct {
	Name   string // "HH:MM" in exchange time
	Hour   int
	Minute int
}

// minuteOfDay returns the window center as minutes since midnight.
func (w Window) minuteOfDay() int { return w.Hour*60 + w.Minute }

// CenterOn places the window center on the given day in loc.
func (w Window) CenterOn(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), w.Hour, w.Minute, 0, 0, loc)
}

// Parse reads a "11:50,14:35" style list.
func Parse(csv string) ([]Window, error) {
	parts := strings.Split(csv, ",")
	out := make([]Window, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		hm := strings.SplitN(p, ":", 2)
		if len(hm) != 2 {
			return nil, fmt.Errorf("invalid window %q: want HH:MM", p)
		}
		h, err := strconv.Atoi(hm[0])
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid window hour in %q", p)
		}
		m, err := strconv.Atoi(hm[1])
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid window minute in %q", p)
		}
		name := fmt.Sprintf("%02d:%02d", h, m)
		if seen[name] {
			return nil, fmt.Errorf("duplicate window %s", name)
		}
		seen[name] = true
		out = append(out, Window{Name: name, Hour: h, Minute: m})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no windows configured")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].minuteOfDay() < out[j].minuteOfDay() })
	return out, nil
}

// ValidateNoOverlap rejects window sets whose tolerance bands touch. A trigger
// time must match at most one window, so adjacent centers need a gap strictly
// wider than twice the tolerance.
func ValidateNoOverlap(ws []Window, tol time.Duration) error {
	for i := 1; i < len(ws); i++ {
		gap := time.Duration(ws[i].minuteOfDay()-ws[i-1].minuteOfDay()) * time.Minute
		if gap <= 2*tol {
			return fmt.Errorf("windows %s and %s overlap with tolerance %s", ws[i-1].Name, ws[i].Name, tol)
		}
	}
	return nil
}

// Matcher resolves trigger times against the configured windows.
type Matcher struct {
	Windows   []Window
	Tolerance time.Duration

	loc *time.Location
}

// NewMatcher parses the window list and loads the exchange time zone.
// Overlapping bands are surfaced as a warning here (the strict check belongs
// to config validation); matching falls back to the nearest center.
func NewMatcher(csv string, toleranceMin int) (*Matcher, error) {
	if toleranceMin < 0 {
		return nil, fmt.Errorf("window tolerance must be >= 0, got %d", toleranceMin)
	}
	ws, err := Parse(csv)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(ExchangeTZ)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", ExchangeTZ, err)
	}
	tol := time.Duration(toleranceMin) * time.Minute
	if err := ValidateNoOverlap(ws, tol); err != nil {
		logger.Warnf("window config: %v (will match nearest center)", err)
	}
	return &Matcher{Windows: ws, Tolerance: tol, loc: loc}, nil
}

// Location returns the exchange time zone.
func (m *Matcher) Location() *time.Location { return m.loc }

// Match returns the window whose tolerance band contains t, or ok=false when
// t is outside every band. Band edges are inclusive. If misconfigured bands
// overlap, the nearest center wins and a warning is logged.
func (m *Matcher) Match(t time.Time) (Window, bool) {
	local := t.In(m.loc)
	var (
		best     Window
		bestDiff time.Duration
		hits     int
	)
	for _, w := range m.Windows {
		center := w.CenterOn(local, m.loc)
		diff := local.Sub(center)
		if diff < 0 {
			diff = -diff
		}
		if diff > m.Tolerance {
			continue
		}
		hits++
		if hits == 1 || diff < bestDiff {
			best = w
			bestDiff = diff
		}
	}
	if hits == 0 {
		return Window{}, false
	}
	if hits > 1 {
		logger.Warnf("trigger %s matched %d overlapping windows, using nearest %s",
			local.Format("15:04"), hits, best.Name)
	}
	return best, true
}

// Tag labels a timestamp as the morning or afternoon half-day, used for
// episode bookkeeping.
func Tag(t time.Time, loc *time.Location) string {
	if t.In(loc).Hour() < 12 {
		return "am"
	}
	return "pm"
}
