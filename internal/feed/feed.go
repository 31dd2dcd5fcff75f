// Package feed delivers full-snapshot updates of group membership and
// expenses to subscribers.
//
// Sources push snapshots (never deltas) whenever the underlying data changes.
// Every subscription returns a CancelFunc. When it is called on the
// dispatch goroutine, no further snapshot or error is delivered for that
// subscription once it returns. A cancel from another goroutine may still
// race one delivery that is already in flight.
package feed

import (
	"context"

	"github.com/mmynk/groupsplit/internal/models"
)

// CancelFunc stops delivery for one subscription. It is safe to call more
// than once and from inside a delivery callback. Delivery stops immediately
// only when called on the dispatch goroutine (see Hub.Do).
type CancelFunc func()

// MembershipSource streams the member list of a group.
type MembershipSource interface {
	SubscribeMembers(groupID string, onSnapshot func([]models.Member), onError func(error)) CancelFunc
}

// ExpenseSource streams the expense list of a group.
type ExpenseSource interface {
	SubscribeExpenses(groupID string, onSnapshot func([]models.Expense), onError func(error)) CancelFunc
}

// UserGroupsSource streams the IDs of the groups a user belongs to.
type UserGroupsSource interface {
	SubscribeUserGroups(userID string, onSnapshot func([]string), onError func(error)) CancelFunc
}

// Loader reads current snapshots from the store.
type Loader interface {
	ListGroupMembers(ctx context.Context, groupID string) ([]models.Member, error)
	ListExpensesByGroup(ctx context.Context, groupID string) ([]models.Expense, error)
	ListUserGroups(ctx context.Context, userID string) ([]string, error)
}
