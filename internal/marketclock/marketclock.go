// Package marketclock answers whether the trading session is open and when
// the next one starts.
package marketclock

import (
	"fmt"
	"time"

	"github.com/tgparkk/trading-bot-sub001/internal/config"
)

// Clock gates trading on the regular session window and the holiday
// calendar. Times are interpreted in the clock's location.
type Clock struct {
	openHour, openMin   int
	closeHour, closeMin int
	holidays            map[string]struct{}
	loc                 *time.Location
	now                 func() time.Time
}

// New parses the session window ("09:00", "15:30") and the holiday list
// (YYYY-MM-DD dates).
func New(cfg config.Market, loc *time.Location) (*Clock, error) {
	if loc == nil {
		loc = time.Local
	}
	oh, om, err := parseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("market open: %w", err)
	}
	ch, cm, err := parseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("market close: %w", err)
	}
	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, day := range cfg.Holidays {
		if _, err := time.ParseInLocation("2006-01-02", day, loc); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", day, err)
		}
		holidays[day] = struct{}{}
	}
	return &Clock{
		openHour: oh, openMin: om,
		closeHour: ch, closeMin: cm,
		holidays: holidays,
		loc:      loc,
		now:      time.Now,
	}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// Now returns the clock's current time in its location.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// IsTradingDay reports whether t falls on a weekday that is not a holiday.
func (c *Clock) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// IsOpen reports whether t is inside the regular session. The open minute
// is inclusive, the close minute exclusive.
func (c *Clock) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	t = t.In(c.loc)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= c.openHour*60+c.openMin && minutes < c.closeHour*60+c.closeMin
}

// SessionClosed reports whether t is on a trading day but past the close.
func (c *Clock) SessionClosed(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	t = t.In(c.loc)
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= c.closeHour*60+c.closeMin
}

// NextOpen returns the start of the next trading session at or after t.
func (c *Clock) NextOpen(t time.Time) time.Time {
	t = t.In(c.loc)
	day := t
	for i := 0; i < 366; i++ {
		open := time.Date(day.Year(), day.Month(), day.Day(), c.openHour, c.openMin, 0, 0, c.loc)
		if c.IsTradingDay(open) && open.After(t) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}
