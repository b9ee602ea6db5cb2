package service

import (
	"strings"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
)

// Period names a statistics window.  The rolling periods end at "now";
// the calendar periods follow week/month/year boundaries in the
// configured location.
type Period string

const (
	PeriodWeek      Period = "WEEK"
	PeriodMonth     Period = "MONTH"
	PeriodYear      Period = "YEAR"
	PeriodThisWeek  Period = "THIS_WEEK"
	PeriodLastWeek  Period = "LAST_WEEK"
	PeriodThisMonth Period = "THIS_MONTH"
	PeriodLastMonth Period = "LAST_MONTH"
	PeriodThisYear  Period = "THIS_YEAR"
	PeriodLastYear  Period = "LAST_YEAR"
)

var periods = []Period{
	PeriodWeek, PeriodMonth, PeriodYear,
	PeriodThisWeek, PeriodLastWeek,
	PeriodThisMonth, PeriodLastMonth,
	PeriodThisYear, PeriodLastYear,
}

// ParsePeriod accepts any case, e.g. "last_month".
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range periods {
		if p == known {
			return p, nil
		}
	}
	names := make([]string, len(periods))
	for i, known := range periods {
		names[i] = string(known)
	}
	return "", apperr.Validation("unknown period", map[string]any{
		"period":  s,
		"allowed": names,
	})
}

// Window is a time range.  Rolling windows are closed on both ends;
// calendar windows exclude To.
type Window struct {
	From   time.Time
	To     time.Time
	Closed bool
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	if w.Closed {
		return !t.After(w.To)
	}
	return t.Before(w.To)
}

const rollingWeek = 7 * 24 * time.Hour

// ResolvePeriod turns p into a concrete window relative to now.  Weeks
// start on Monday.
func ResolvePeriod(p Period, now time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	switch p {
	case PeriodWeek:
		// A fixed duration: calendar days would make the week 167h or
		// 169h across a DST change.
		return Window{From: now.Add(-rollingWeek), To: now, Closed: true}, nil
	case PeriodMonth:
		return Window{From: now.AddDate(0, -1, 0), To: now, Closed: true}, nil
	case PeriodYear:
		return Window{From: now.AddDate(-1, 0, 0), To: now, Closed: true}, nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monday := midnight.AddDate(0, 0, -daysSinceMonday(now.Weekday()))
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	firstOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)

	switch p {
	case PeriodThisWeek:
		return Window{From: monday, To: monday.AddDate(0, 0, 7)}, nil
	case PeriodLastWeek:
		return Window{From: monday.AddDate(0, 0, -7), To: monday}, nil
	case PeriodThisMonth:
		return Window{From: firstOfMonth, To: firstOfMonth.AddDate(0, 1, 0)}, nil
	case PeriodLastMonth:
		return Window{From: firstOfMonth.AddDate(0, -1, 0), To: firstOfMonth}, nil
	case PeriodThisYear:
		return Window{From: firstOfYear, To: firstOfYear.AddDate(1, 0, 0)}, nil
	case PeriodLastYear:
		return Window{From: firstOfYear.AddDate(-1, 0, 0), To: firstOfYear}, nil
	}
	_, err := ParsePeriod(string(p))
	return Window{}, err
}

func daysSinceMonday(d time.Weekday) int {
	return (int(d) + 6) % 7
}
