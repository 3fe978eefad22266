// Package datefilter implements the date-filter parser (spec component
// C4): normalizing relative, absolute, and partial date expressions into
// an inclusive [start, end] range. "Now" is always supplied by the
// caller — this package never reads the system clock, so parsing stays
// deterministic and testable.
package datefilter

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Range is an inclusive, date-only span.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether dateStr (expected to be YYYY-MM-DD) falls
// within the range. A malformed or empty dateStr never matches (spec
// section 3: "Records with null date never match a date filter").
func (r Range) Contains(dateStr string) bool {
	if dateStr == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return false
	}
	return !d.Before(r.Start) && !d.After(r.End)
}

var (
	reDekad     = regexp.MustCompile(`^(\d{4})-(\d{2})-(上旬|中旬|下旬)$`)
	reDaysAgo   = regexp.MustCompile(`^(\d+)_days_ago$`)
	reMonthsAgo = regexp.MustCompile(`^(\d+)_months_ago$`)
	reDay       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Kind classifies a raw filter string for the retriever's K-adaptation
// rule (spec section 4.8): how far a vector search must over-fetch
// before a date filter narrows it back down.
type Kind int

const (
	KindNone Kind = iota
	KindDay
	KindDekad
	KindOther
)

// ClassifyKind reports which K-adaptation bucket filter falls into,
// without validating it — an unparseable filter still classifies as
// KindOther, matching "any other filter" in spec section 4.8.
func ClassifyKind(filter string) Kind {
	switch {
	case filter == "":
		return KindNone
	case reDay.MatchString(filter):
		return KindDay
	case reDekad.MatchString(filter):
		return KindDekad
	default:
		return KindOther
	}
}

// Parse converts filter (relative to now) into a Range. A blank filter
// returns (nil, nil): no filter requested. An unrecognized, non-blank
// filter returns (nil, err): the caller (the retriever) treats this as
// "no filter" but logs the warning, per spec section 4.4.
func Parse(filter string, now time.Time) (*Range, error) {
	if filter == "" {
		return nil, nil
	}
	today := dateOnly(now)

	switch filter {
	case "today":
		return &Range{today, today}, nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return &Range{y, y}, nil
	case "last_week":
		return lastISOWeek(today), nil
	case "last_month":
		return lastCalendarMonth(today), nil
	case "last_year":
		ly := today.Year() - 1
		return &Range{
			time.Date(ly, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(ly, 12, 31, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	if m := reDaysAgo.FindStringSubmatch(filter); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return nil, fmt.Errorf("invalid N_days_ago: %q", filter)
		}
		start := today.AddDate(0, 0, -(n - 1))
		return &Range{start, today}, nil
	}

	if m := reMonthsAgo.FindStringSubmatch(filter); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return nil, fmt.Errorf("invalid N_months_ago: %q", filter)
		}
		firstThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := firstThisMonth.AddDate(0, -n, 0)
		end := today.AddDate(0, 0, -1)
		return &Range{start, end}, nil
	}

	if m := reDekad.FindStringSubmatch(filter); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return nil, fmt.Errorf("invalid month in dekad filter: %q", filter)
		}
		var startDay, endDay int
		switch m[3] {
		case "上旬":
			startDay, endDay = 1, 10
		case "中旬":
			startDay, endDay = 11, 20
		case "下旬":
			startDay = 21
			endDay = lastDayOfMonth(year, month)
		}
		return &Range{
			time.Date(year, time.Month(month), startDay, 0, 0, 0, 0, time.UTC),
			time.Date(year, time.Month(month), endDay, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	if d, err := time.Parse("2006-01-02", filter); err == nil {
		return &Range{d, d}, nil
	}

	if d, err := time.Parse("2006-01", filter); err == nil {
		start := d
		end := start.AddDate(0, 1, -1)
		return &Range{start, end}, nil
	}

	if d, err := time.Parse("2006", filter); err == nil {
		start := time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(d.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
		return &Range{start, end}, nil
	}

	return nil, fmt.Errorf("unrecognized date filter: %q", filter)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// lastISOWeek returns Monday..Sunday of the ISO week preceding today's.
func lastISOWeek(today time.Time) *Range {
	wd := int(today.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	thisMonday := today.AddDate(0, 0, -(wd - 1))
	lastMonday := thisMonday.AddDate(0, 0, -7)
	lastSunday := lastMonday.AddDate(0, 0, 6)
	return &Range{lastMonday, lastSunday}
}

func lastCalendarMonth(today time.Time) *Range {
	firstThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthEnd := firstThisMonth.AddDate(0, 0, -1)
	lastMonthStart := time.Date(lastMonthEnd.Year(), lastMonthEnd.Month(), 1, 0, 0, 0, 0, time.UTC)
	return &Range{lastMonthStart, lastMonthEnd}
}

func lastDayOfMonth(year, month int) int {
	firstNextMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return firstNextMonth.AddDate(0, 0, -1).Day()
}
