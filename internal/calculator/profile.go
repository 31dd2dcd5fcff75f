package calculator

import (
	"sort"
	"time"

	"github.com/mmynk/groupsplit/internal/models"
)

// MonthKeyFormat is the layout of monthly histogram keys.
const MonthKeyFormat = "2006-01"

// CalculateProfile folds expenses from all of the observer's groups into
// lifetime totals and a monthly spending histogram.
//
// For each valid expense:
// - Paid by the observer: spent += amount, received += amount - ownShare,
//   and the month of CreatedAt (in loc) gains amount
// - Paid by someone else: iOwe += the observer's own share
//
// A nil loc means UTC.
func CalculateProfile(expenses []models.Expense, observerUID string, loc *time.Location) models.ProfileTotals {
	if loc == nil {
		loc = time.UTC
	}

	var totals models.ProfileTotals
	monthly := make(map[string]int64)

	for _, e := range expenses {
		if !e.Valid() {
			continue
		}
		ownShare := e.ShareOf(observerUID)
		if e.PaidByUID == observerUID {
			totals.TotalSpentCents += e.AmountCents
			totals.TotalReceivedCents += e.AmountCents - ownShare
			monthly[MonthKey(e.CreatedAt, loc)] += e.AmountCents
		} else {
			totals.TotalIOweCents += ownShare
		}
	}

	totals.TotalOwedToMeCents = totals.TotalReceivedCents
	totals.NetBalanceCents = totals.TotalOwedToMeCents - totals.TotalIOweCents
	totals.Monthly = sortedMonthly(monthly)
	return totals
}

// MonthKey formats an epoch-millisecond timestamp as "YYYY-MM" in loc.
func MonthKey(createdAtMillis int64, loc *time.Location) string {
	return time.UnixMilli(createdAtMillis).In(loc).Format(MonthKeyFormat)
}

func sortedMonthly(monthly map[string]int64) []models.MonthlySpent {
	rows := make([]models.MonthlySpent, 0, len(monthly))
	for month, cents := range monthly {
		rows = append(rows, models.MonthlySpent{Month: month, AmountCents: cents})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month > rows[j].Month })
	return rows
}

// CategoryTotals sums valid expenses per normalized category, largest first.
func CategoryTotals(expenses []models.Expense) []models.CategoryTotal {
	byKey := make(map[string]*models.CategoryTotal)
	for _, e := range expenses {
		if !e.Valid() {
			continue
		}
		key := models.NormalizeCategory(e.Category)
		total, ok := byKey[key]
		if !ok {
			total = &models.CategoryTotal{Key: key, Label: models.CategoryLabel(key)}
			byKey[key] = total
		}
		total.AmountCents += e.AmountCents
		total.Count++
	}

	out := make([]models.CategoryTotal, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AmountCents != out[j].AmountCents {
			return out[i].AmountCents > out[j].AmountCents
		}
		return out[i].Key < out[j].Key
	})
	return out
}
