package models

import (
	"sort"
	"strings"
)

// DefaultCurrency is used when an expense is created without a currency code.
const DefaultCurrency = "ILS"

// Expense is one payment made by a member on behalf of others.
// The splits are assumed to sum to AmountCents; nothing here checks it.
type Expense struct {
	// ID is the unique identifier for the expense (TypeID, "exp_" prefix).
	ID string `json:"id"`

	// GroupID is the group that owns the expense.
	GroupID string `json:"groupId"`

	// Description is free text entered by the payer.
	Description string `json:"description"`

	// AmountCents is the total paid, in the currency's minor unit.
	AmountCents int64 `json:"amountCents"`

	// Currency is an ISO 4217 code. Amounts are never converted.
	Currency string `json:"currency"`

	// PaidByUID is the member who paid.
	PaidByUID string `json:"paidByUid"`

	// Splits maps each participant ID to their owed share in cents.
	Splits map[string]int64 `json:"splits"`

	// CreatedAt is the epoch-millisecond timestamp of the expense.
	CreatedAt int64 `json:"createdAt"`

	// Category is a normalized category key (see NormalizeCategory).
	Category string `json:"category"`
}

// Valid reports whether the expense can take part in aggregation.
// Expenses with a non-positive amount or a blank payer are skipped.
func (e Expense) Valid() bool {
	return e.AmountCents > 0 && strings.TrimSpace(e.PaidByUID) != ""
}

// ShareOf returns uid's split in cents, or 0 when uid is not a participant.
func (e Expense) ShareOf(uid string) int64 {
	return e.Splits[uid]
}

// Participants returns the split participant IDs in ascending order.
func (e Expense) Participants() []string {
	ids := make([]string, 0, len(e.Splits))
	for uid := range e.Splits {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	return ids
}

// SortByCreatedDesc orders expenses newest first, ties by ID.
func SortByCreatedDesc(expenses []Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].CreatedAt != expenses[j].CreatedAt {
			return expenses[i].CreatedAt > expenses[j].CreatedAt
		}
		return expenses[i].ID < expenses[j].ID
	})
}

// SplitRow is one participant's share with their display name.
type SplitRow struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amountCents"`
}

// ExpenseDetails is an expense with the payer and participants named.
type ExpenseDetails struct {
	Expense    Expense    `json:"expense"`
	PaidByName string     `json:"paidByName"`
	Splits     []SplitRow `json:"splits"`
}

// SortSplitRows orders rows by amount descending, ties by UID.
func SortSplitRows(rows []SplitRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AmountCents != rows[j].AmountCents {
			return rows[i].AmountCents > rows[j].AmountCents
		}
		return rows[i].UID < rows[j].UID
	})
}
