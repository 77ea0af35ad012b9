package calc

import (
	"time"

	"github.com/simaogato/dealtracker-analytics/internal/domain"
)

// Day identifies a calendar day in a given location
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in loc
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// WithinInterval reports whether t lies in [start, end], bounds included
func WithinInterval(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// civil converts a calendar day to a day count independent of DST
func (d Day) civil() int64 {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func lastDayOfMonth(d Day) bool {
	next := time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, time.UTC)
	return next.Month() != d.Month
}

// FullDays returns the number of calendar days from the start of from's day to the start of to's day
func FullDays(from, to time.Time, loc *time.Location) int {
	return int(DayOf(to, loc).civil() - DayOf(from, loc).civil())
}

// FullWeeks returns the number of complete weeks between the two days, truncated toward zero
func FullWeeks(from, to time.Time, loc *time.Location) int {
	return FullDays(from, to, loc) / 7
}

// FullMonths returns the number of complete calendar months between the two days.
// A month ending on the last day of a shorter month counts as complete (Jan 31 -> Feb 28 is one month).
func FullMonths(from, to time.Time, loc *time.Location) int {
	a, b := DayOf(from, loc), DayOf(to, loc)
	sign := 1
	if b.civil() < a.civil() {
		a, b = b, a
		sign = -1
	}

	months := (b.Year-a.Year)*12 + int(b.Month-a.Month)
	if months > 0 && b.Day < a.Day && !lastDayOfMonth(b) {
		months--
	}
	return sign * months
}

// FullQuarters returns the number of complete quarters between the two days
func FullQuarters(from, to time.Time, loc *time.Location) int {
	return FullMonths(from, to, loc) / 3
}

// FullYears returns the number of complete years between the two days.
// A year is complete once the anniversary day is reached, so Feb 29 -> Feb 28 of the next year is 0.
func FullYears(from, to time.Time, loc *time.Location) int {
	a, b := DayOf(from, loc), DayOf(to, loc)
	sign := 1
	if b.civil() < a.civil() {
		a, b = b, a
		sign = -1
	}

	years := b.Year - a.Year
	if years > 0 && (b.Month < a.Month || (b.Month == a.Month && b.Day < a.Day)) {
		years--
	}
	return sign * years
}

// HorizonElapsed reports whether at least one unit of h has passed between created and now,
// both measured from the start of their calendar day
func HorizonElapsed(h domain.Horizon, created, now time.Time, loc *time.Location) bool {
	switch h {
	case domain.HorizonYear:
		return FullYears(created, now, loc) >= 1
	case domain.HorizonQuarter:
		return FullQuarters(created, now, loc) >= 1
	case domain.HorizonMonth:
		return FullMonths(created, now, loc) >= 1
	case domain.HorizonWeek:
		return FullWeeks(created, now, loc) >= 1
	}
	return false
}
