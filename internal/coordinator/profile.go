package coordinator

import (
	"time"

	"github.com/mmynk/groupsplit/internal/calculator"
	"github.com/mmynk/groupsplit/internal/feed"
	"github.com/mmynk/groupsplit/internal/models"
)

type groupExpenses struct {
	cancel   feed.CancelFunc
	received bool
	expenses []models.Expense
}

// ProfileCoordinator keeps the lifetime totals of one user current across
// every group they belong to.
type ProfileCoordinator struct {
	groups   feed.UserGroupsSource
	expenses feed.ExpenseSource
	emit     func(models.ProfileView)
	opts     options

	userID     string
	state      State
	generation uint64

	cancelGroups   feed.CancelFunc
	groupsReceived bool
	perGroup       map[string]*groupExpenses
	syncing        bool

	last models.ProfileView
}

// NewProfileCoordinator creates a coordinator that emits to emit.
func NewProfileCoordinator(groups feed.UserGroupsSource, expenses feed.ExpenseSource, emit func(models.ProfileView), opts ...Option) *ProfileCoordinator {
	return &ProfileCoordinator{
		groups:   groups,
		expenses: expenses,
		emit:     emit,
		opts:     buildOptions(opts),
	}
}

// Start subscribes to the user's group list. It is a no-op while already
// running for the same user.
func (c *ProfileCoordinator) Start(userID string) {
	if c.state != Uninitialized {
		if c.userID == userID {
			return
		}
		c.Stop()
	}

	c.generation++
	gen := c.generation
	c.userID = userID
	c.perGroup = make(map[string]*groupExpenses)
	c.setState(Loading)

	c.last = models.ProfileView{
		UserID:  userID,
		Totals:  models.ProfileTotals{Monthly: []models.MonthlySpent{}},
		Loading: true,
	}
	c.emit(c.last)

	c.cancelGroups = c.groups.SubscribeUserGroups(userID,
		func(groupIDs []string) {
			if gen != c.generation {
				return
			}
			c.groupsReceived = true
			c.clearStale()
			c.syncGroups(gen, groupIDs)
			if gen != c.generation {
				return
			}
			c.recompute()
		},
		func(err error) {
			if gen != c.generation {
				return
			}
			c.fail(FeedUserGroups, userID, err)
		},
	)
}

// Stop cancels every subscription and forgets every snapshot.
func (c *ProfileCoordinator) Stop() {
	if c.state == Uninitialized {
		return
	}
	c.generation++

	if c.cancelGroups != nil {
		c.cancelGroups()
		c.cancelGroups = nil
	}
	for _, g := range c.perGroup {
		if g.cancel != nil {
			g.cancel()
		}
	}

	c.perGroup = nil
	c.groupsReceived = false
	c.last = models.ProfileView{}
	c.setState(Uninitialized)
}

// State returns the current lifecycle state.
func (c *ProfileCoordinator) State() State {
	return c.state
}

// Stale reports whether the most recent feed event was an error.
func (c *ProfileCoordinator) Stale() bool {
	return c.last.Stale
}

// Output returns the last emitted view.
func (c *ProfileCoordinator) Output() models.ProfileView {
	return c.last
}

// Groups returns the number of groups with a live expense subscription.
func (c *ProfileCoordinator) Groups() int {
	return len(c.perGroup)
}

// syncGroups drops expense subscriptions for groups the user left and opens
// them for groups the user joined.
func (c *ProfileCoordinator) syncGroups(gen uint64, groupIDs []string) {
	wanted := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = struct{}{}
	}

	for id, g := range c.perGroup {
		if _, ok := wanted[id]; ok {
			continue
		}
		if g.cancel != nil {
			g.cancel()
		}
		delete(c.perGroup, id)
	}

	var joined []string
	for id := range wanted {
		if _, ok := c.perGroup[id]; ok {
			continue
		}
		c.perGroup[id] = &groupExpenses{}
		joined = append(joined, id)
	}

	// Every joined group is registered before subscribing so a synchronous
	// delivery cannot make the profile look ready with only part of them.
	c.syncing = true
	defer func() { c.syncing = false }()

	for _, groupID := range joined {
		g := c.perGroup[groupID]
		cancel := c.expenses.SubscribeExpenses(groupID,
			func(expenses []models.Expense) {
				if gen != c.generation || c.perGroup[groupID] != g {
					return
				}
				g.expenses = expenses
				g.received = true
				c.clearStale()
				c.recompute()
			},
			func(err error) {
				if gen != c.generation || c.perGroup[groupID] != g {
					return
				}
				c.fail(FeedExpenses, groupID, err)
			},
		)
		if gen != c.generation {
			cancel()
			return
		}
		g.cancel = cancel
	}
}

func (c *ProfileCoordinator) ready() bool {
	if !c.groupsReceived {
		return false
	}
	for _, g := range c.perGroup {
		if !g.received {
			return false
		}
	}
	return true
}

func (c *ProfileCoordinator) recompute() {
	if c.syncing || !c.ready() {
		return
	}

	started := time.Now()
	var all []models.Expense
	for _, g := range c.perGroup {
		all = append(all, g.expenses...)
	}

	totals := calculator.CalculateProfile(all, c.userID, c.opts.loc)
	c.last = models.ProfileView{
		UserID: c.userID,
		Totals: totals,
	}
	c.setState(Ready)
	c.opts.recorder.Recomputed(KindProfile, time.Since(started))
	c.emit(c.last)
}

func (c *ProfileCoordinator) fail(feedName, key string, err error) {
	feedErr := &FeedError{Feed: feedName, Key: key, Err: err}
	c.last.Stale = true
	c.last.Error = feedErr.Error()
	c.opts.recorder.FeedFailed(KindProfile, feedName)
	c.opts.onError(feedErr)
}

func (c *ProfileCoordinator) clearStale() {
	c.last.Stale = false
	c.last.Error = ""
}

func (c *ProfileCoordinator) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	c.opts.recorder.StateChanged(KindProfile, prev, s)
}
