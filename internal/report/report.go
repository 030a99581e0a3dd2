// Package report derives totals, breakdowns and trends from a list of expense records.
//
// Every function is pure: it reads the slice it is given and returns new values.
// Callers pass the current record list each time; nothing is cached.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"monee/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Total sums the amounts of all records.
func Total(records []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// ByCategory sums amounts per category in first-encountered order.
func ByCategory(records []core.Expense) []core.CategoryAmount {
	index := make(map[core.Category]int)
	out := make([]core.CategoryAmount, 0)
	for _, r := range records {
		i, ok := index[r.Category]
		if !ok {
			i = len(out)
			index[r.Category] = i
			out = append(out, core.CategoryAmount{Category: r.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
	}
	return out
}

// TopCategories returns at most n categories ordered by descending amount.
// Equal amounts keep first-encountered order.
func TopCategories(records []core.Expense, n int) []core.CategoryAmount {
	if n <= 0 {
		return []core.CategoryAmount{}
	}
	cats := ByCategory(records)
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Amount.GreaterThan(cats[j].Amount)
	})
	if len(cats) > n {
		cats = cats[:n]
	}
	return cats
}

// Percentages annotates the top n categories with their share of the total.
func Percentages(records []core.Expense, n int) []core.CategoryShare {
	total := Total(records)
	top := TopCategories(records, n)
	out := make([]core.CategoryShare, 0, len(top))
	for _, c := range top {
		share := core.CategoryShare{CategoryAmount: c}
		if !total.IsZero() {
			share.Percent = c.Amount.Div(total).Mul(hundred).InexactFloat64()
		}
		out = append(out, share)
	}
	return out
}

// MonthKey returns the YYYY-MM prefix of an ISO date.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// ByMonth sums amounts per YYYY-MM month, ascending by month.
func ByMonth(records []core.Expense) []core.MonthAmount {
	sums := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := MonthKey(r.Date)
		sums[key] = sums[key].Add(r.Amount)
	}
	out := make([]core.MonthAmount, 0, len(sums))
	for month, amount := range sums {
		out = append(out, core.MonthAmount{Month: month, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Month < out[j].Month
	})
	return out
}

// MonthlyTrend compares the latest month with the one before it.
//
// With fewer than two months, or a zero prior total, there is no meaningful
// ratio: the trend reports HasPrior=false and a 0 percent change.
func MonthlyTrend(records []core.Expense) core.Trend {
	months := ByMonth(records)
	var trend core.Trend
	if len(months) == 0 {
		return trend
	}
	trend.Current = months[len(months)-1]
	if len(months) < 2 {
		return trend
	}
	trend.Previous = months[len(months)-2]
	if trend.Previous.Amount.IsZero() {
		return trend
	}
	trend.HasPrior = true
	trend.Percent = trend.Current.Amount.
		Sub(trend.Previous.Amount).
		Div(trend.Previous.Amount).
		Mul(hundred).
		InexactFloat64()
	return trend
}

// DailyAverage divides the total by the number of distinct dates, at least one.
func DailyAverage(records []core.Expense) decimal.Decimal {
	days := make(map[string]struct{})
	for _, r := range records {
		days[r.Date] = struct{}{}
	}
	n := len(days)
	if n == 0 {
		n = 1
	}
	return Total(records).Div(decimal.NewFromInt(int64(n)))
}

// Recent returns the n most recently inserted records, newest first.
func Recent(records []core.Expense, n int) []core.Expense {
	return latest(records, n, func(a, b core.Expense) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// LatestByDate returns the n records with the latest expense date, latest first.
func LatestByDate(records []core.Expense, n int) []core.Expense {
	return latest(records, n, func(a, b core.Expense) bool {
		return a.Date > b.Date
	})
}

func latest(records []core.Expense, n int, newer func(a, b core.Expense) bool) []core.Expense {
	if n <= 0 {
		return []core.Expense{}
	}
	out := make([]core.Expense, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i], out[j])
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Summarize builds the report view: totals, trend, top categories and recent records.
func Summarize(records []core.Expense, top, recent int) core.Summary {
	return core.Summary{
		Total:         Total(records),
		Count:         len(records),
		DailyAverage:  DailyAverage(records),
		Trend:         MonthlyTrend(records),
		TopCategories: Percentages(records, top),
		ByMonth:       ByMonth(records),
		Recent:        Recent(records, recent),
	}
}
