package coordinator

import (
	"time"

	"github.com/mmynk/groupsplit/internal/calculator"
	"github.com/mmynk/groupsplit/internal/feed"
	"github.com/mmynk/groupsplit/internal/models"
)

// GroupOutput is everything a group screen renders, replaced wholesale on
// every recomputation. Stale and Error mark a copy of the last output sent
// after a feed failure.
type GroupOutput struct {
	GroupID     string                 `json:"groupId"`
	Balances    models.BalanceView     `json:"balances"`
	Settlements models.SettlementView  `json:"settlements"`
	Categories  []models.CategoryTotal `json:"categories"`
	Expenses    []models.Expense       `json:"expenses"`
	Stale       bool                   `json:"stale,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Loading reports whether the output is the placeholder emitted before the
// first consistent snapshot.
func (o GroupOutput) Loading() bool {
	return o.Balances.Loading
}

// Option configures a coordinator.
type Option func(*options)

type options struct {
	recorder Recorder
	onError  func(error)
	loc      *time.Location
}

// WithRecorder reports recomputations, feed failures and state changes to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithErrorHandler receives every *FeedError.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithLocation sets the calendar used for monthly profile buckets.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.loc = loc
	}
}

func buildOptions(opts []Option) options {
	o := options{
		recorder: nopRecorder{},
		onError:  func(error) {},
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	return o
}

// GroupCoordinator keeps the balances and settlements of one group current.
type GroupCoordinator struct {
	members  feed.MembershipSource
	expenses feed.ExpenseSource
	strategy calculator.Strategy
	emit     func(GroupOutput)
	opts     options

	groupID    string
	state      State
	generation uint64

	cancelMembers  feed.CancelFunc
	cancelExpenses feed.CancelFunc

	membershipReceived bool
	expensesReceived   bool
	memberSnapshot     []models.Member
	expenseSnapshot    []models.Expense

	last GroupOutput
}

// NewGroupCoordinator creates a coordinator that emits to emit. A nil
// strategy uses the default.
func NewGroupCoordinator(members feed.MembershipSource, expenses feed.ExpenseSource, strategy calculator.Strategy, emit func(GroupOutput), opts ...Option) *GroupCoordinator {
	if strategy == nil {
		strategy, _ = calculator.StrategyByName(calculator.DefaultStrategy)
	}
	return &GroupCoordinator{
		members:  members,
		expenses: expenses,
		strategy: strategy,
		emit:     emit,
		opts:     buildOptions(opts),
	}
}

// Start subscribes to the group's feeds. It is a no-op while already
// running for the same group; a different group restarts the coordinator.
func (c *GroupCoordinator) Start(groupID string) {
	if c.state != Uninitialized {
		if c.groupID == groupID {
			return
		}
		c.Stop()
	}

	c.generation++
	gen := c.generation
	c.groupID = groupID
	c.setState(Loading)

	c.last = GroupOutput{
		GroupID:     groupID,
		Balances:    models.BalanceView{Balances: []models.MemberBalance{}, Loading: true},
		Settlements: models.SettlementView{Settlements: []models.Settlement{}, Strategy: c.strategy.Name(), Loading: true},
		Categories:  []models.CategoryTotal{},
		Expenses:    []models.Expense{},
	}
	c.emit(c.last)

	c.cancelMembers = c.members.SubscribeMembers(groupID,
		func(members []models.Member) {
			if gen != c.generation {
				return
			}
			c.memberSnapshot = members
			c.membershipReceived = true
			c.clearStale()
			c.recompute()
		},
		func(err error) {
			if gen != c.generation {
				return
			}
			c.fail(FeedMembers, err)
		},
	)

	// The membership subscription may deliver synchronously and a callback
	// may stop the coordinator.
	if gen != c.generation {
		return
	}

	c.cancelExpenses = c.expenses.SubscribeExpenses(groupID,
		func(expenses []models.Expense) {
			if gen != c.generation {
				return
			}
			c.expenseSnapshot = expenses
			c.expensesReceived = true
			c.clearStale()
			c.recompute()
		},
		func(err error) {
			if gen != c.generation {
				return
			}
			c.fail(FeedExpenses, err)
		},
	)
}

// Stop cancels both subscriptions and forgets every snapshot. No output is
// emitted after Stop returns.
func (c *GroupCoordinator) Stop() {
	if c.state == Uninitialized {
		return
	}
	c.generation++

	if c.cancelMembers != nil {
		c.cancelMembers()
		c.cancelMembers = nil
	}
	if c.cancelExpenses != nil {
		c.cancelExpenses()
		c.cancelExpenses = nil
	}

	c.membershipReceived = false
	c.expensesReceived = false
	c.memberSnapshot = nil
	c.expenseSnapshot = nil
	c.last = GroupOutput{}
	c.setState(Uninitialized)
}

// State returns the current lifecycle state.
func (c *GroupCoordinator) State() State {
	return c.state
}

// Stale reports whether the most recent feed event was an error.
func (c *GroupCoordinator) Stale() bool {
	return c.last.Stale
}

// Output returns the last emitted output.
func (c *GroupCoordinator) Output() GroupOutput {
	return c.last
}

func (c *GroupCoordinator) recompute() {
	if !c.membershipReceived || !c.expensesReceived {
		return
	}

	started := time.Now()
	expenses := make([]models.Expense, len(c.expenseSnapshot))
	copy(expenses, c.expenseSnapshot)
	models.SortByCreatedDesc(expenses)

	out := GroupOutput{
		GroupID: c.groupID,
		Balances: models.BalanceView{
			Balances: calculator.CalculateBalances(c.expenseSnapshot, c.memberSnapshot),
		},
		Settlements: models.SettlementView{
			Settlements: c.strategy.Settle(c.expenseSnapshot),
			Strategy:    c.strategy.Name(),
		},
		Categories: calculator.CategoryTotals(c.expenseSnapshot),
		Expenses:   expenses,
	}

	c.last = out
	c.setState(Ready)
	c.opts.recorder.Recomputed(KindGroup, time.Since(started))
	c.emit(out)
}

// fail marks the last output stale without emitting it. The error handler
// decides whether to surface it.
func (c *GroupCoordinator) fail(feedName string, err error) {
	feedErr := &FeedError{Feed: feedName, Key: c.groupID, Err: err}
	c.last.Stale = true
	c.last.Error = feedErr.Error()
	c.opts.recorder.FeedFailed(KindGroup, feedName)
	c.opts.onError(feedErr)
}

func (c *GroupCoordinator) clearStale() {
	c.last.Stale = false
	c.last.Error = ""
}

func (c *GroupCoordinator) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	c.opts.recorder.StateChanged(KindGroup, prev, s)
}
