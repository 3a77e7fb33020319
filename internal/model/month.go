package model

import (
	"fmt"
	"time"
)

// DateLayout is the persisted calendar date format.
const DateLayout = "2006-01-02"

// MonthLayout is the persisted reference month format.
const MonthLayout = "2006-01"

// Month is a calendar month, used as the recurrence reference tag.
type Month struct {
	Year  int
	Month time.Month
}

// NewMonth builds a Month, normalizing overflowing month numbers.
func NewMonth(year int, month time.Month) Month {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

// MonthOf returns the calendar month of t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (expected YYYY-MM): %w", s, err)
	}
	return MonthOf(t), nil
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Compare returns -1, 0 or +1 depending on whether m is before, equal to or after o.
func (m Month) Compare(o Month) int {
	switch {
	case m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month):
		return -1
	case m == o:
		return 0
	default:
		return 1
	}
}

// Before reports whether m is strictly before o.
func (m Month) Before(o Month) bool {
	return m.Compare(o) < 0
}

// AddMonths moves m by n months.
func (m Month) AddMonths(n int) Month {
	return NewMonth(m.Year, m.Month+time.Month(n))
}

// LastDay returns the number of days in the month.
func (m Month) LastDay() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstDate returns the first calendar day of the month in loc.
func (m Month) FirstDate(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

// LastDate returns the last calendar day of the month in loc.
func (m Month) LastDate(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, m.LastDay(), 0, 0, 0, 0, loc)
}

// SafeDate returns the day-th of the month, clamped to the month's last day.
func (m Month) SafeDate(day int, loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, SafeDay(m.Year, m.Month, day), 0, 0, 0, 0, loc)
}

// SafeDay clamps day into [1, last day of the month].
func SafeDay(year int, month time.Month, day int) int {
	last := Month{Year: year, Month: month}.LastDay()
	if day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

// MarshalText implements encoding.TextMarshaler.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Month) UnmarshalText(text []byte) error {
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FormatDate renders the calendar date of t without converting time zones.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date anchored at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
