// Package calendar answers trading-session questions for the simulation
// clock and the settlement queue. Schedules are opaque data supplied by
// the run configuration; nothing here hardcodes a venue.
package calendar

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Config describes one venue calendar. Times of day are offsets from
// midnight UTC; holidays and early closes are dates (any timestamp within
// the day selects it).
type Config struct {
	Name        string
	WeekendDays []time.Weekday
	OpenOffset  time.Duration
	CloseOffset time.Duration
	Holidays    []time.Time
	EarlyCloses map[string]time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.WeekendDays) == 0 {
		c.WeekendDays = []time.Weekday{time.Saturday, time.Sunday}
	}
	if c.CloseOffset == 0 {
		c.CloseOffset = day
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("invalid calendar config: Name is empty")
	}
	if c.OpenOffset < 0 || c.OpenOffset >= day {
		return fmt.Errorf("invalid calendar config: OpenOffset out of range")
	}
	if c.CloseOffset <= c.OpenOffset || c.CloseOffset > day {
		return fmt.Errorf("invalid calendar config: CloseOffset must be in (OpenOffset, 24h]")
	}
	if len(c.WeekendDays) >= 7 {
		return fmt.Errorf("invalid calendar config: every weekday is a weekend")
	}
	return nil
}

// Calendar answers session and business-day queries.
type Calendar struct {
	cfg      Config
	weekend  [7]bool
	holidays map[string]struct{}
	early    map[string]time.Duration
}

// New builds a calendar from config.
func New(cfg Config) (*Calendar, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Calendar{
		cfg:      cfg,
		holidays: make(map[string]struct{}, len(cfg.Holidays)),
		early:    make(map[string]time.Duration, len(cfg.EarlyCloses)),
	}
	for _, wd := range cfg.WeekendDays {
		c.weekend[wd] = true
	}
	for _, h := range cfg.Holidays {
		c.holidays[dateKey(h.UTC())] = struct{}{}
	}
	for k, v := range cfg.EarlyCloses {
		if v <= cfg.OpenOffset || v > cfg.CloseOffset {
			return nil, fmt.Errorf("invalid calendar config: early close %s out of session", k)
		}
		c.early[k] = v
	}
	return c, nil
}

// Name returns the calendar identity.
func (c *Calendar) Name() string { return c.cfg.Name }

// IsTradingDay reports whether the date containing ts is a trading day.
func (c *Calendar) IsTradingDay(ts int64) bool {
	t := time.Unix(0, ts).UTC()
	if c.weekend[t.Weekday()] {
		return false
	}
	_, holiday := c.holidays[dateKey(t)]
	return !holiday
}

// IsTrading reports whether ts falls inside a trading session.
func (c *Calendar) IsTrading(ts int64) bool {
	if !c.IsTradingDay(ts) {
		return false
	}
	t := time.Unix(0, ts).UTC()
	offset := time.Duration(ts - midnight(t).UnixNano())
	return offset >= c.cfg.OpenOffset && offset < c.closeOffset(t)
}

// SessionOpen returns the session open on the date containing ts. The
// second return is false when the date is not a trading day.
func (c *Calendar) SessionOpen(ts int64) (int64, bool) {
	if !c.IsTradingDay(ts) {
		return 0, false
	}
	t := time.Unix(0, ts).UTC()
	return midnight(t).UnixNano() + int64(c.cfg.OpenOffset), true
}

// SessionClose returns the session close on the date containing ts,
// honoring early closes.
func (c *Calendar) SessionClose(ts int64) (int64, bool) {
	if !c.IsTradingDay(ts) {
		return 0, false
	}
	t := time.Unix(0, ts).UTC()
	return midnight(t).UnixNano() + int64(c.closeOffset(t)), true
}

// NextSessionOpen returns the first session open strictly after ts.
func (c *Calendar) NextSessionOpen(ts int64) int64 {
	t := time.Unix(0, ts).UTC()
	for i := 0; i < 3660; i++ {
		if open, ok := c.SessionOpen(t.UnixNano()); ok && open > ts {
			return open
		}
		t = midnight(t).Add(day)
	}
	// A decade without a session means the schedule is degenerate;
	// Validate rejects all-weekend configs, so this is unreachable with
	// holiday lists of sane size.
	return ts
}

// AddBusinessDays advances the date containing ts by n trading days and
// returns midnight of the resulting date. n must be >= 0.
func (c *Calendar) AddBusinessDays(ts int64, n int) int64 {
	t := midnight(time.Unix(0, ts).UTC())
	for n > 0 {
		t = t.Add(day)
		if c.IsTradingDay(t.UnixNano()) {
			n--
		}
	}
	return t.UnixNano()
}

func (c *Calendar) closeOffset(t time.Time) time.Duration {
	if off, ok := c.early[dateKey(t)]; ok {
		return off
	}
	return c.cfg.CloseOffset
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Midnight returns midnight UTC of the date containing ts.
func Midnight(ts int64) int64 {
	return midnight(time.Unix(0, ts).UTC()).UnixNano()
}
