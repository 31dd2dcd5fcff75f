package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mmynk/groupsplit/internal/models"
)

// Strategy names accepted by StrategyByName.
const (
	StrategyOptimized = "optimized"
	StrategyPairwise  = "pairwise"

	// DefaultStrategy never routes money between members who did not share
	// an expense.
	DefaultStrategy = StrategyPairwise
)

// ErrUnknownStrategy is returned by StrategyByName for an unrecognized name.
var ErrUnknownStrategy = errors.New("unknown settlement strategy")

// Strategy turns an expense snapshot into recommended transfers.
// Implementations are pure: the same input always yields the same output,
// ordered by SortSettlements.
type Strategy interface {
	Name() string
	Settle(expenses []models.Expense) []models.Settlement
}

// StrategyByName returns the strategy registered under name.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case StrategyOptimized:
		return Optimized{}, nil
	case StrategyPairwise:
		return Pairwise{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// StrategyNames lists the available strategies.
func StrategyNames() []string {
	return []string{StrategyOptimized, StrategyPairwise}
}

// Optimized settles net balances with the fewest transfers. Money may move
// between two members who never shared an expense.
type Optimized struct{}

// Name implements Strategy.
func (Optimized) Name() string { return StrategyOptimized }

// Settle implements Strategy using the balances of members touched by at
// least one valid expense.
func (o Optimized) Settle(expenses []models.Expense) []models.Settlement {
	return o.SettleBalances(touchedBalances(expenses))
}

// SettleBalances matches debtors with creditors in their order of appearance.
//
// Algorithm:
// - Partition into debtors (balance < 0) and creditors (balance > 0)
// - Take the current debtor and creditor, transfer min(remaining)
// - Advance whichever pointer reached zero; stop when one side is exhausted
//
// At most debtors+creditors-1 settlements are produced.
func (Optimized) SettleBalances(balances []models.MemberBalance) []models.Settlement {
	type pending struct {
		uid       string
		remaining int64
	}

	var debtors, creditors []pending
	for _, b := range balances {
		switch {
		case b.BalanceCents < 0:
			debtors = append(debtors, pending{uid: b.UID, remaining: -b.BalanceCents})
		case b.BalanceCents > 0:
			creditors = append(creditors, pending{uid: b.UID, remaining: b.BalanceCents})
		}
	}

	settlements := make([]models.Settlement, 0)
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := &debtors[i]
		creditor := &creditors[j]

		amount := min(debtor.remaining, creditor.remaining)
		if amount > 0 && debtor.uid != creditor.uid {
			settlements = append(settlements, models.Settlement{
				FromUID:     debtor.uid,
				ToUID:       creditor.uid,
				AmountCents: amount,
			})
		}

		debtor.remaining -= amount
		creditor.remaining -= amount

		if debtor.remaining == 0 {
			i++
		}
		if creditor.remaining == 0 {
			j++
		}
	}

	SortSettlements(settlements)
	return settlements
}

// Pairwise settles each pair of members directly. It never introduces a
// transfer between members who had no expense together, at the cost of
// possibly more transfers than Optimized.
type Pairwise struct{}

// Name implements Strategy.
func (Pairwise) Name() string { return StrategyPairwise }

type pair struct {
	from, to string
}

// Settle implements Strategy.
//
// Algorithm:
// - For every valid expense, each participant other than the payer owes the
//   payer their split: direct[participant -> payer] += split
// - For every unordered pair, net both directions and emit the positive one
func (Pairwise) Settle(expenses []models.Expense) []models.Settlement {
	direct := make(map[pair]int64)
	for _, e := range expenses {
		if !e.Valid() {
			continue
		}
		for uid, share := range e.Splits {
			if uid == e.PaidByUID || share <= 0 {
				continue
			}
			direct[pair{from: uid, to: e.PaidByUID}] += share
		}
	}

	settlements := make([]models.Settlement, 0)
	processed := make(map[pair]bool, len(direct))
	for p := range direct {
		canonical := p
		if canonical.to < canonical.from {
			canonical = pair{from: p.to, to: p.from}
		}
		if processed[canonical] {
			continue
		}
		processed[canonical] = true

		a, b := canonical.from, canonical.to
		diff := direct[pair{from: a, to: b}] - direct[pair{from: b, to: a}]
		switch {
		case diff > 0:
			settlements = append(settlements, models.Settlement{FromUID: a, ToUID: b, AmountCents: diff})
		case diff < 0:
			settlements = append(settlements, models.Settlement{FromUID: b, ToUID: a, AmountCents: -diff})
		}
	}

	SortSettlements(settlements)
	return settlements
}

// SortSettlements orders settlements by amount descending, then FromUID,
// then ToUID ascending.
func SortSettlements(settlements []models.Settlement) {
	sort.Slice(settlements, func(i, j int) bool {
		a, b := settlements[i], settlements[j]
		if a.AmountCents != b.AmountCents {
			return a.AmountCents > b.AmountCents
		}
		if a.FromUID != b.FromUID {
			return a.FromUID < b.FromUID
		}
		return a.ToUID < b.ToUID
	})
}

