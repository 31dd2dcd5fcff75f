package calculator

import (
	"sort"

	"github.com/mmynk/groupsplit/internal/models"
)

// CalculateBalances folds expenses into one net balance per member.
//
// Every member in members appears even with a zero balance. Participants that
// show up in an expense but not in members are included too, with an empty
// name.
//
// Algorithm:
// - For each valid expense: the payer gains the full amount
// - Each participant (the payer included) loses their split
// - Net effect for the payer: amount - ownShare
//
// The result is sorted by balance descending (creditors first), ties by UID.
func CalculateBalances(expenses []models.Expense, members []models.Member) []models.MemberBalance {
	net := make(map[string]int64, len(members))
	names := make(map[string]string, len(members))
	for _, m := range members {
		net[m.ID] = 0
		names[m.ID] = m.Name
	}

	for _, e := range expenses {
		// Skip malformed expenses
		if !e.Valid() {
			continue
		}
		net[e.PaidByUID] += e.AmountCents
		for uid, share := range e.Splits {
			net[uid] -= share
		}
	}

	balances := make([]models.MemberBalance, 0, len(net))
	for uid, cents := range net {
		balances = append(balances, models.MemberBalance{
			UID:          uid,
			Name:         names[uid],
			BalanceCents: cents,
		})
	}
	sortBalances(balances)
	return balances
}

// NetBalanceFor returns uid's net position across expenses: what they paid
// minus their own shares.
func NetBalanceFor(expenses []models.Expense, uid string) int64 {
	var net int64
	for _, e := range expenses {
		if !e.Valid() {
			continue
		}
		if e.PaidByUID == uid {
			net += e.AmountCents
		}
		net -= e.ShareOf(uid)
	}
	return net
}

// touchedBalances returns balances only for members that took part in at
// least one valid expense. Without a member list, the aggregator only ever
// sees payers and participants.
func touchedBalances(expenses []models.Expense) []models.MemberBalance {
	return CalculateBalances(expenses, nil)
}

func sortBalances(balances []models.MemberBalance) {
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].BalanceCents != balances[j].BalanceCents {
			return balances[i].BalanceCents > balances[j].BalanceCents
		}
		return balances[i].UID < balances[j].UID
	})
}
