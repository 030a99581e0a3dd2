// Package filter selects records by period and lists the periods available for selection.
package filter

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"monee/internal/core"
)

const (
	PeriodAll   = ""
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

var ErrUnknownPeriod = errors.New("unknown period")

// ByExactDate keeps records whose date equals date.
func ByExactDate(records []core.Expense, date string) []core.Expense {
	return keep(records, func(e core.Expense) bool { return e.Date == date })
}

// ByMonthPrefix keeps records whose date starts with the YYYY-MM prefix.
func ByMonthPrefix(records []core.Expense, yearMonth string) []core.Expense {
	return keep(records, func(e core.Expense) bool { return strings.HasPrefix(e.Date, yearMonth) })
}

// ByYearPrefix keeps records whose date starts with the YYYY prefix.
func ByYearPrefix(records []core.Expense, year string) []core.Expense {
	return keep(records, func(e core.Expense) bool { return strings.HasPrefix(e.Date, year) })
}

// Since keeps records dated on or after from. Dates that do not parse are dropped.
func Since(records []core.Expense, from time.Time) []core.Expense {
	if from.IsZero() {
		return keep(records, func(core.Expense) bool { return true })
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	return keep(records, func(e core.Expense) bool {
		d, err := time.Parse(core.DateLayout, e.Date)
		return err == nil && !d.Before(start)
	})
}

// PeriodStart resolves a named period to its first day relative to at.
// PeriodAll yields the zero time.
func PeriodStart(period string, at time.Time) (time.Time, error) {
	t := now.With(at)
	switch period {
	case PeriodAll:
		return time.Time{}, nil
	case PeriodWeek:
		return t.BeginningOfWeek(), nil
	case PeriodMonth:
		return t.BeginningOfMonth(), nil
	case PeriodYear:
		return t.BeginningOfYear(), nil
	default:
		return time.Time{}, ErrUnknownPeriod
	}
}

// DistinctDates lists unique dates, most recent first.
func DistinctDates(records []core.Expense) []string {
	return distinct(records, func(d string) string { return d })
}

// DistinctMonths lists unique YYYY-MM prefixes, most recent first.
func DistinctMonths(records []core.Expense) []string {
	return distinct(records, func(d string) string { return prefix(d, 7) })
}

// DistinctYears lists unique YYYY prefixes, most recent first.
func DistinctYears(records []core.Expense) []string {
	return distinct(records, func(d string) string { return prefix(d, 4) })
}

func keep(records []core.Expense, ok func(core.Expense) bool) []core.Expense {
	out := make([]core.Expense, 0, len(records))
	for _, r := range records {
		if ok(r) {
			out = append(out, r)
		}
	}
	return out
}

func distinct(records []core.Expense, key func(string) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range records {
		k := key(r.Date)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
