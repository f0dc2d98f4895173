package billing

import (
	"time"
)

// =============================================================================
// DATESTAMP - Whole-day time abstraction
// =============================================================================

// DateStamp is a calendar day in UTC. All billing state (setting
// intervals, membership status, attendance) is day-granular: a status
// change at 14:00 on day D applies for the whole of day D.
type DateStamp struct {
	Time time.Time
}

// Constructors
func NewDateStamp(year int, month time.Month, day int) DateStamp {
	return DateStamp{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) DateStamp {
	u := t.UTC()
	return NewDateStamp(u.Year(), u.Month(), u.Day())
}

func Today() DateStamp {
	return DateOf(time.Now())
}

// ParseDateStamp parses a YYYY-MM-DD string.
func ParseDateStamp(s string) (DateStamp, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DateStamp{}, err
	}
	return DateStamp{Time: t}, nil
}

// Comparison
func (d DateStamp) Before(other DateStamp) bool        { return d.normalize().Before(other.normalize()) }
func (d DateStamp) Equal(other DateStamp) bool         { return d.normalize().Equal(other.normalize()) }
func (d DateStamp) After(other DateStamp) bool         { return d.normalize().After(other.normalize()) }
func (d DateStamp) BeforeOrEqual(other DateStamp) bool { return d.Before(other) || d.Equal(other) }
func (d DateStamp) AfterOrEqual(other DateStamp) bool  { return d.After(other) || d.Equal(other) }

func (d DateStamp) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d DateStamp) AddDays(n int) DateStamp { return DateStamp{Time: d.Time.AddDate(0, 0, n)} }

// EndOfDay returns the last instant of the calendar day. Used when
// comparing an instant-valued change log against a day-valued query.
func (d DateStamp) EndOfDay() time.Time {
	n := d.normalize()
	return time.Date(n.Year(), n.Month(), n.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// Properties
func (d DateStamp) Year() int         { return d.Time.Year() }
func (d DateStamp) Month() time.Month { return d.Time.Month() }
func (d DateStamp) Day() int          { return d.Time.Day() }
func (d DateStamp) IsZero() bool      { return d.Time.IsZero() }

func (d DateStamp) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns the number of whole days from 'from' to 'to'.
func DaysBetween(from, to DateStamp) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// DaysInclusive counts the calendar days in [from, to]. Zero when the
// window is inverted.
func DaysInclusive(from, to DateStamp) int {
	if to.Before(from) {
		return 0
	}
	return DaysBetween(from, to) + 1
}

func MinDate(a, b DateStamp) DateStamp {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b DateStamp) DateStamp {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// BILLING WINDOW
// =============================================================================

// Window is an inclusive [Start, End] date range over which payables
// are aggregated.
type Window struct {
	Start DateStamp
	End   DateStamp
}

func (w Window) Contains(d DateStamp) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

func (w Window) Valid() bool { return !w.End.Before(w.Start) }

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}
