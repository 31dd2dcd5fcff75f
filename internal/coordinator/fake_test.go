package coordinator

import (
	"github.com/mmynk/groupsplit/internal/feed"
	"github.com/mmynk/groupsplit/internal/models"
)

// fakeFeed records subscriptions and lets tests push snapshots by hand.
type fakeFeed struct {
	members    map[string][]*fakeSub[[]models.Member]
	expenses   map[string][]*fakeSub[[]models.Expense]
	userGroups map[string][]*fakeSub[[]string]
}

type fakeSub[T any] struct {
	onSnapshot func(T)
	onError    func(error)
	cancelled  bool
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		members:    make(map[string][]*fakeSub[[]models.Member]),
		expenses:   make(map[string][]*fakeSub[[]models.Expense]),
		userGroups: make(map[string][]*fakeSub[[]string]),
	}
}

func (f *fakeFeed) SubscribeMembers(groupID string, onSnapshot func([]models.Member), onError func(error)) feed.CancelFunc {
	sub := &fakeSub[[]models.Member]{onSnapshot: onSnapshot, onError: onError}
	f.members[groupID] = append(f.members[groupID], sub)
	return func() { sub.cancelled = true }
}

func (f *fakeFeed) SubscribeExpenses(groupID string, onSnapshot func([]models.Expense), onError func(error)) feed.CancelFunc {
	sub := &fakeSub[[]models.Expense]{onSnapshot: onSnapshot, onError: onError}
	f.expenses[groupID] = append(f.expenses[groupID], sub)
	return func() { sub.cancelled = true }
}

func (f *fakeFeed) SubscribeUserGroups(userID string, onSnapshot func([]string), onError func(error)) feed.CancelFunc {
	sub := &fakeSub[[]string]{onSnapshot: onSnapshot, onError: onError}
	f.userGroups[userID] = append(f.userGroups[userID], sub)
	return func() { sub.cancelled = true }
}

// pushMembers delivers to every subscription, cancelled or not, so tests can
// check that late deliveries are ignored.
func (f *fakeFeed) pushMembers(groupID string, members ...models.Member) {
	for _, sub := range f.members[groupID] {
		sub.onSnapshot(members)
	}
}

func (f *fakeFeed) pushExpenses(groupID string, expenses ...models.Expense) {
	for _, sub := range f.expenses[groupID] {
		sub.onSnapshot(expenses)
	}
}

func (f *fakeFeed) pushUserGroups(userID string, groupIDs ...string) {
	for _, sub := range f.userGroups[userID] {
		sub.onSnapshot(groupIDs)
	}
}

func (f *fakeFeed) failExpenses(groupID string, err error) {
	for _, sub := range f.expenses[groupID] {
		sub.onError(err)
	}
}

func (f *fakeFeed) failMembers(groupID string, err error) {
	for _, sub := range f.members[groupID] {
		sub.onError(err)
	}
}

func (f *fakeFeed) activeExpenseSubs(groupID string) int {
	n := 0
	for _, sub := range f.expenses[groupID] {
		if !sub.cancelled {
			n++
		}
	}
	return n
}

func expense(id, payer string, amount int64, createdAt int64, splits map[string]int64) models.Expense {
	return models.Expense{
		ID:          id,
		GroupID:     "g1",
		Description: id,
		AmountCents: amount,
		Currency:    models.DefaultCurrency,
		PaidByUID:   payer,
		Splits:      splits,
		CreatedAt:   createdAt,
	}
}

func member(id string) models.Member {
	return models.Member{ID: id, Name: "name-" + id}
}
