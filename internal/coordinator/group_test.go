package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/mmynk/groupsplit/internal/calculator"
	"github.com/mmynk/groupsplit/internal/models"
)

type recordingRecorder struct {
	recomputes  int
	feedErrors  int
	transitions []State
}

func (r *recordingRecorder) Recomputed(string, time.Duration) { r.recomputes++ }
func (r *recordingRecorder) FeedFailed(string, string) { r.feedErrors++ }
func (r *recordingRecorder) StateChanged(_ string, _, to State) {
	r.transitions = append(r.transitions, to)
}

func newGroup(t *testing.T, f *fakeFeed, opts ...Option) (*GroupCoordinator, *[]GroupOutput) {
	t.Helper()
	var outputs []GroupOutput
	c := NewGroupCoordinator(f, f, calculator.Optimized{}, func(o GroupOutput) {
		outputs = append(outputs, o)
	}, opts...)
	return c, &outputs
}

func TestGroupCoordinatorGating(t *testing.T) {
	f := newFakeFeed()
	c, outputs := newGroup(t, f)

	c.Start("g1")
	if c.State() != Loading {
		t.Fatalf("State() = %v, want %v", c.State(), Loading)
	}
	if len(*outputs) != 1 || !(*outputs)[0].Loading() {
		t.Fatalf("expected a single loading output, got %+v", *outputs)
	}

	f.pushExpenses("g1", expense("e1", "A", 1000, 1, map[string]int64{"A": 500, "B": 500}))
	if c.State() != Loading {
		t.Errorf("State() after expenses only = %v, want %v", c.State(), Loading)
	}
	if len(*outputs) != 1 {
		t.Errorf("emitted %d outputs before membership arrived, want 1", len(*outputs))
	}

	f.pushMembers("g1", member("A"), member("B"), member("C"))
	if c.State() != Ready {
		t.Fatalf("State() = %v, want %v", c.State(), Ready)
	}
	if len(*outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(*outputs))
	}

	out := (*outputs)[1]
	if out.Loading() || out.Settlements.Loading {
		t.Error("ready output still marked loading")
	}
	wantBalances := []models.MemberBalance{
		{UID: "A", Name: "name-A", BalanceCents: 500},
		{UID: "C", Name: "name-C", BalanceCents: 0},
		{UID: "B", Name: "name-B", BalanceCents: -500},
	}
	if len(out.Balances.Balances) != len(wantBalances) {
		t.Fatalf("balances = %+v", out.Balances.Balances)
	}
	for i, want := range wantBalances {
		if out.Balances.Balances[i] != want {
			t.Errorf("balance[%d] = %+v, want %+v", i, out.Balances.Balances[i], want)
		}
	}
	wantSettlement := models.Settlement{FromUID: "B", ToUID: "A", AmountCents: 500}
	if len(out.Settlements.Settlements) != 1 || out.Settlements.Settlements[0] != wantSettlement {
		t.Errorf("settlements = %+v, want [%+v]", out.Settlements.Settlements, wantSettlement)
	}
	if out.Settlements.Strategy != calculator.StrategyOptimized {
		t.Errorf("strategy = %q", out.Settlements.Strategy)
	}
}

func TestGroupCoordinatorLastSnapshotWins(t *testing.T) {
	f := newFakeFeed()
	c, outputs := newGroup(t, f)
	c.Start("g1")

	f.pushMembers("g1", member("A"), member("B"))
	f.pushExpenses("g1", expense("e1", "A", 1000, 1, map[string]int64{"A": 500, "B": 500}))
	f.pushExpenses("g1",
		expense("e1", "A", 1000, 1, map[string]int64{"A": 500, "B": 500}),
		expense("e2", "B", 400, 2, map[string]int64{"A": 200, "B": 200}),
	)

	if len(*outputs) != 3 {
		t.Fatalf("outputs = %d, want 3", len(*outputs))
	}
	out := c.Output()
	want := models.Settlement{FromUID: "B", ToUID: "A", AmountCents: 300}
	if len(out.Settlements.Settlements) != 1 || out.Settlements.Settlements[0] != want {
		t.Errorf("settlements = %+v, want [%+v]", out.Settlements.Settlements, want)
	}
	if len(out.Expenses) != 2 || out.Expenses[0].ID != "e2" {
		t.Errorf("expenses not newest first: %+v", out.Expenses)
	}

	// A member joining with no expenses still shows up at zero.
	f.pushMembers("g1", member("A"), member("B"), member("D"))
	found := false
	for _, b := range c.Output().Balances.Balances {
		if b.UID == "D" && b.BalanceCents == 0 {
			found = true
		}
	}
	if !found {
		t.Errorf("new member missing from balances: %+v", c.Output().Balances.Balances)
	}
}

func TestGroupCoordinatorFeedErrorKeepsOutput(t *testing.T) {
	f := newFakeFeed()
	var errs []error
	c, outputs := newGroup(t, f, WithErrorHandler(func(err error) {
		errs = append(errs, err)
	}))
	c.Start("g1")
	f.pushMembers("g1", member("A"), member("B"))
	f.pushExpenses("g1", expense("e1", "A", 1000, 1, map[string]int64{"A": 500, "B": 500}))
	before := c.Output()

	boom := errors.New("permission denied")
	f.failExpenses("g1", boom)

	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	var feedErr *FeedError
	if !errors.As(errs[0], &feedErr) {
		t.Fatalf("error %T is not a *FeedError", errs[0])
	}
	if feedErr.Feed != FeedExpenses || feedErr.Key != "g1" || !errors.Is(errs[0], boom) {
		t.Errorf("feed error = %+v", feedErr)
	}
	if c.State() != Ready || !c.Stale() {
		t.Errorf("State() = %v, Stale() = %v; want ready and stale", c.State(), c.Stale())
	}
	if len(*outputs) != 2 {
		t.Errorf("error emitted output, outputs = %d", len(*outputs))
	}
	if len(c.Output().Settlements.Settlements) != len(before.Settlements.Settlements) {
		t.Error("previous output was cleared")
	}
	if out := c.Output(); !out.Stale || out.Error != feedErr.Error() {
		t.Errorf("Output() stale=%v error=%q, want stale with %q", out.Stale, out.Error, feedErr.Error())
	}

	f.pushExpenses("g1", expense("e1", "A", 1000, 1, map[string]int64{"A": 500, "B": 500}))
	if c.Stale() {
		t.Error("Stale() still true after a fresh snapshot")
	}
	if out := c.Output(); out.Stale || out.Error != "" {
		t.Errorf("fresh output still marked stale: %+v", out)
	}
}

func TestGroupCoordinatorErrorWhileLoading(t *testing.T) {
	f := newFakeFeed()
	var errs []error
	c, outputs := newGroup(t, f, WithErrorHandler(func(err error) {
		errs = append(errs, err)
	}))
	c.Start("g1")
	f.failMembers("g1", errors.New("unavailable"))

	if c.State() != Loading {
		t.Errorf("State() = %v, want %v", c.State(), Loading)
	}
	if len(errs) != 1 || len(*outputs) != 1 {
		t.Errorf("errs = %d, outputs = %d", len(errs), len(*outputs))
	}
}

func TestGroupCoordinatorStop(t *testing.T) {
	f := newFakeFeed()
	c, outputs := newGroup(t, f)
	c.Start("g1")
	f.pushMembers("g1", member("A"))
	c.Stop()

	if c.State() != Uninitialized {
		t.Errorf("State() = %v, want %v", c.State(), Uninitialized)
	}
	if f.activeExpenseSubs("g1") != 0 {
		t.Error("expense subscription not cancelled")
	}

	// Late deliveries on the cancelled subscriptions are dropped.
	f.pushExpenses("g1", expense("e1", "A", 100, 1, map[string]int64{"A": 100}))
	f.failMembers("g1", errors.New("late"))
	if len(*outputs) != 1 {
		t.Errorf("outputs after Stop = %d, want 1", len(*outputs))
	}

	// Restarting waits for both feeds again.
	c.Start("g1")
	f.pushExpenses("g1", expense("e1", "A", 100, 1, map[string]int64{"A": 100}))
	if c.State() != Loading {
		t.Errorf("State() after restart = %v, want %v", c.State(), Loading)
	}
}

func TestGroupCoordinatorStartIdempotent(t *testing.T) {
	f := newFakeFeed()
	rec := &recordingRecorder{}
	c, outputs := newGroup(t, f, WithRecorder(rec))
	c.Start("g1")
	c.Start("g1")

	if len(f.members["g1"]) != 1 || len(f.expenses["g1"]) != 1 {
		t.Errorf("subscriptions = %d/%d, want 1/1", len(f.members["g1"]), len(f.expenses["g1"]))
	}
	if len(*outputs) != 1 {
		t.Errorf("outputs = %d, want 1", len(*outputs))
	}

	f.pushMembers("g1", member("A"))
	f.pushExpenses("g1")
	if rec.recomputes != 1 {
		t.Errorf("recomputes = %d, want 1", rec.recomputes)
	}
	wantTransitions := []State{Loading, Ready}
	if len(rec.transitions) != len(wantTransitions) {
		t.Fatalf("transitions = %v, want %v", rec.transitions, wantTransitions)
	}
	for i := range wantTransitions {
		if rec.transitions[i] != wantTransitions[i] {
			t.Errorf("transitions = %v, want %v", rec.transitions, wantTransitions)
		}
	}
}

func TestGroupCoordinatorSwitchGroup(t *testing.T) {
	f := newFakeFeed()
	c, _ := newGroup(t, f)
	c.Start("g1")
	c.Start("g2")

	if f.activeExpenseSubs("g1") != 0 || f.activeExpenseSubs("g2") != 1 {
		t.Errorf("active subs g1=%d g2=%d", f.activeExpenseSubs("g1"), f.activeExpenseSubs("g2"))
	}
	if c.Output().GroupID != "g2" {
		t.Errorf("GroupID = %q, want g2", c.Output().GroupID)
	}
}

func TestGroupCoordinatorDefaultStrategy(t *testing.T) {
	f := newFakeFeed()
	c := NewGroupCoordinator(f, f, nil, func(GroupOutput) {})
	c.Start("g1")
	if got := c.Output().Settlements.Strategy; got != calculator.DefaultStrategy {
		t.Errorf("strategy = %q, want %q", got, calculator.DefaultStrategy)
	}
}
