package calculator

import (
	"errors"
	"sort"
)

var (
	// ErrNoParticipants is returned when an amount is split among nobody.
	ErrNoParticipants = errors.New("must have at least one participant")

	// ErrNegativeAmount is returned when a negative amount is split.
	ErrNegativeAmount = errors.New("amount cannot be negative")
)

// SplitEqually divides amountCents among participants as evenly as integer
// cents allow. Duplicate IDs count once.
//
// Algorithm:
// - Sort participant IDs ascending so the result never depends on input order
// - base = amount / n, remainder = amount % n
// - The first `remainder` IDs in sorted order receive base+1, the rest base
//
// The shares always sum to amountCents and differ by at most one cent.
func SplitEqually(amountCents int64, participants []string) (map[string]int64, error) {
	if amountCents < 0 {
		return nil, ErrNegativeAmount
	}

	ids := uniqueSorted(participants)
	if len(ids) == 0 {
		return nil, ErrNoParticipants
	}

	n := int64(len(ids))
	base := amountCents / n
	remainder := amountCents % n

	splits := make(map[string]int64, len(ids))
	for i, id := range ids {
		share := base
		if int64(i) < remainder {
			share++
		}
		splits[id] = share
	}
	return splits, nil
}

// uniqueSorted returns the distinct non-empty IDs in ascending order.
func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
