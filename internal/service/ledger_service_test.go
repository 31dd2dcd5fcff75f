package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/groupsplit/internal/calculator"
	"github.com/mmynk/groupsplit/internal/feed"
	"github.com/mmynk/groupsplit/internal/middleware"
	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/notify"
	"github.com/mmynk/groupsplit/internal/storage"
	"github.com/mmynk/groupsplit/internal/storage/sqlite"
)

// testAuthInterceptor returns a Connect interceptor that sets a test user ID in the context.
func testAuthInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx = context.WithValue(ctx, middleware.UserIDKey, "Alice")
			return next(ctx, req)
		}
	}
}

type testServer struct {
	client *LedgerServiceClient
	store  storage.Store
}

// setupTestServer creates a test server backed by a temp SQLite database and
// a running feed hub. wrap, when set, decorates the store seen by both the
// service and the hub.
func setupTestServer(t *testing.T, wrap func(storage.Store) storage.Store, opts ...Option) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	var svcStore storage.Store = store
	if wrap != nil {
		svcStore = wrap(store)
	}

	hub := feed.NewHub(svcStore)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()

	svc := NewLedgerService(svcStore, hub, opts...)
	path, handler := NewLedgerServiceHandler(svc, connect.WithInterceptors(testAuthInterceptor()))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hubDone
		store.Close()
	})

	return &testServer{
		client: NewLedgerServiceClient(http.DefaultClient, server.URL),
		store:  store,
	}
}

func (s *testServer) createGroup(t *testing.T, name string, members ...string) models.Group {
	t.Helper()
	resp, err := s.client.CreateGroup(context.Background(), connect.NewRequest(&CreateGroupRequest{
		Name:      name,
		MemberIDs: members,
	}))
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return resp.Msg.Group
}

func (s *testServer) createExpense(t *testing.T, req *CreateExpenseRequest) models.Expense {
	t.Helper()
	resp, err := s.client.CreateExpense(context.Background(), connect.NewRequest(req))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	return resp.Msg.Expense
}

// receiveUntil reads the stream until done accepts a message.
func receiveUntil[T any](t *testing.T, stream *connect.ServerStreamForClient[T], done func(*T) bool) *T {
	t.Helper()
	for stream.Receive() {
		if msg := stream.Msg(); done(msg) {
			return msg
		}
	}
	t.Fatalf("stream ended before expected message: %v", stream.Err())
	return nil
}

func TestCreateGroup(t *testing.T) {
	s := setupTestServer(t, nil)

	group := s.createGroup(t, "Trip", "Bob", "Alice", "Bob")

	if group.ID == "" {
		t.Error("expected group ID to be assigned")
	}
	if group.CreatedByUID != "Alice" {
		t.Errorf("expected creator Alice, got %q", group.CreatedByUID)
	}
	if len(group.Members) != 2 {
		t.Errorf("expected 2 members, got %v", group.Members)
	}

	_, err := s.client.CreateGroup(context.Background(), connect.NewRequest(&CreateGroupRequest{Name: "  "}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument for blank name, got %v", err)
	}
}

func TestAddMembers(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Flat", "Bob")

	resp, err := s.client.AddMembers(context.Background(), connect.NewRequest(&AddMembersRequest{
		GroupID:   group.ID,
		MemberIDs: []string{"Bob", "Carol", "Dave"},
	}))
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if len(resp.Msg.Added) != 2 {
		t.Fatalf("expected Carol and Dave to be added, got %v", resp.Msg.Added)
	}

	_, err = s.client.AddMembers(context.Background(), connect.NewRequest(&AddMembersRequest{
		GroupID:   group.ID,
		MemberIDs: []string{"Bob", "Carol"},
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument for existing members, got %v", err)
	}

	_, err = s.client.AddMembers(context.Background(), connect.NewRequest(&AddMembersRequest{
		GroupID:   "grp_missing",
		MemberIDs: []string{"Eve"},
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound for unknown group, got %v", err)
	}
}

func TestCreateExpense_EqualSplit(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Dinner", "m2", "m1", "m3")

	expense := s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Pizza",
		AmountCents:  1001,
		Participants: []string{"m3", "m1", "m2"},
		Category:     "FOOD",
	})

	want := map[string]int64{"m1": 334, "m2": 334, "m3": 333}
	for uid, cents := range want {
		if expense.Splits[uid] != cents {
			t.Errorf("split %s: expected %d, got %d", uid, cents, expense.Splits[uid])
		}
	}
	if len(expense.Splits) != len(want) {
		t.Errorf("expected %d splits, got %v", len(want), expense.Splits)
	}
	if expense.PaidByUID != "Alice" {
		t.Errorf("expected payer to default to Alice, got %q", expense.PaidByUID)
	}
	if expense.Currency != models.DefaultCurrency {
		t.Errorf("expected default currency, got %q", expense.Currency)
	}
	if expense.Category != "food" {
		t.Errorf("expected normalized category, got %q", expense.Category)
	}
}

func TestCreateExpense_Validation(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Flat", "Bob")

	tests := []struct {
		name string
		req  *CreateExpenseRequest
		code connect.Code
	}{
		{
			name: "blank description",
			req:  &CreateExpenseRequest{GroupID: group.ID, AmountCents: 100, Participants: []string{"Bob"}},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "zero amount",
			req:  &CreateExpenseRequest{GroupID: group.ID, Description: "x", Participants: []string{"Bob"}},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "unknown group",
			req:  &CreateExpenseRequest{GroupID: "grp_missing", Description: "x", AmountCents: 100, Participants: []string{"Bob"}},
			code: connect.CodeNotFound,
		},
		{
			name: "payer not a member",
			req:  &CreateExpenseRequest{GroupID: group.ID, Description: "x", AmountCents: 100, PaidByUID: "Eve", Participants: []string{"Bob"}},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "participant not a member",
			req:  &CreateExpenseRequest{GroupID: group.ID, Description: "x", AmountCents: 100, Participants: []string{"Bob", "Eve"}},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "no participants",
			req:  &CreateExpenseRequest{GroupID: group.ID, Description: "x", AmountCents: 100},
			code: connect.CodeInvalidArgument,
		},
		{
			name: "negative explicit split",
			req:  &CreateExpenseRequest{GroupID: group.ID, Description: "x", AmountCents: 100, Splits: map[string]int64{"Alice": 150, "Bob": -50}},
			code: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.client.CreateExpense(context.Background(), connect.NewRequest(tt.req))
			if connect.CodeOf(err) != tt.code {
				t.Errorf("expected %v, got %v", tt.code, err)
			}
		})
	}
}

func TestGetGroupBalances_TwoMembers(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Pair", "Bob")
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Groceries",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})

	for _, strategy := range calculator.StrategyNames() {
		t.Run(strategy, func(t *testing.T) {
			resp, err := s.client.GetGroupBalances(context.Background(), connect.NewRequest(&GetGroupBalancesRequest{
				GroupID:  group.ID,
				Strategy: strategy,
			}))
			if err != nil {
				t.Fatalf("GetGroupBalances failed: %v", err)
			}

			balances := resp.Msg.Balances
			if len(balances) != 2 || balances[0].UID != "Alice" || balances[0].BalanceCents != 500 ||
				balances[1].UID != "Bob" || balances[1].BalanceCents != -500 {
				t.Errorf("unexpected balances: %+v", balances)
			}

			want := []models.Settlement{{FromUID: "Bob", ToUID: "Alice", AmountCents: 500}}
			if !equalSettlements(resp.Msg.Settlements, want) {
				t.Errorf("expected %+v, got %+v", want, resp.Msg.Settlements)
			}
			if resp.Msg.Strategy != strategy {
				t.Errorf("expected strategy %q, got %q", strategy, resp.Msg.Strategy)
			}
		})
	}
}

func TestGetGroupBalances_ThreeMembers(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Trip", "Bob", "Carol")
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:     group.ID,
		Description: "Hotel",
		AmountCents: 900,
		Splits:      map[string]int64{"Alice": 300, "Bob": 300, "Carol": 300},
	})
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:     group.ID,
		Description: "Taxi",
		AmountCents: 300,
		PaidByUID:   "Bob",
		Splits:      map[string]int64{"Alice": 100, "Bob": 100, "Carol": 100},
		Category:    "transport",
	})

	tests := []struct {
		strategy string
		want     []models.Settlement
	}{
		{
			strategy: calculator.StrategyOptimized,
			want: []models.Settlement{
				{FromUID: "Carol", ToUID: "Alice", AmountCents: 400},
				{FromUID: "Bob", ToUID: "Alice", AmountCents: 100},
			},
		},
		{
			strategy: calculator.StrategyPairwise,
			want: []models.Settlement{
				{FromUID: "Carol", ToUID: "Alice", AmountCents: 300},
				{FromUID: "Bob", ToUID: "Alice", AmountCents: 200},
				{FromUID: "Carol", ToUID: "Bob", AmountCents: 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			resp, err := s.client.GetGroupBalances(context.Background(), connect.NewRequest(&GetGroupBalancesRequest{
				GroupID:  group.ID,
				Strategy: tt.strategy,
			}))
			if err != nil {
				t.Fatalf("GetGroupBalances failed: %v", err)
			}

			wantBalances := map[string]int64{"Alice": 500, "Bob": -100, "Carol": -400}
			for _, b := range resp.Msg.Balances {
				if wantBalances[b.UID] != b.BalanceCents {
					t.Errorf("balance %s: expected %d, got %d", b.UID, wantBalances[b.UID], b.BalanceCents)
				}
			}
			if !equalSettlements(resp.Msg.Settlements, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, resp.Msg.Settlements)
			}
			if len(resp.Msg.Categories) != 2 {
				t.Errorf("expected 2 categories, got %+v", resp.Msg.Categories)
			}
		})
	}
}

func TestGetGroupBalances_Errors(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Flat")

	_, err := s.client.GetGroupBalances(context.Background(), connect.NewRequest(&GetGroupBalancesRequest{
		GroupID:  group.ID,
		Strategy: "greedy",
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument for unknown strategy, got %v", err)
	}

	_, err = s.client.GetGroupBalances(context.Background(), connect.NewRequest(&GetGroupBalancesRequest{
		GroupID: "grp_missing",
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound for unknown group, got %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	s := setupTestServer(t, nil)
	first := s.createGroup(t, "Flat", "Bob")
	second := s.createGroup(t, "Trip", "Bob", "Carol")

	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      first.ID,
		Description:  "Rent",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      second.ID,
		Description:  "Fuel",
		AmountCents:  900,
		PaidByUID:    "Bob",
		Participants: []string{"Alice", "Bob", "Carol"},
	})

	resp, err := s.client.GetProfile(context.Background(), connect.NewRequest(&GetProfileRequest{TimeZone: "UTC"}))
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}

	totals := resp.Msg.Profile.Totals
	if resp.Msg.Profile.UserID != "Alice" {
		t.Errorf("expected observer Alice, got %q", resp.Msg.Profile.UserID)
	}
	if totals.TotalSpentCents != 1000 {
		t.Errorf("expected spent 1000, got %d", totals.TotalSpentCents)
	}
	if totals.TotalOwedToMeCents != 500 {
		t.Errorf("expected owed to me 500, got %d", totals.TotalOwedToMeCents)
	}
	if totals.TotalIOweCents != 300 {
		t.Errorf("expected I owe 300, got %d", totals.TotalIOweCents)
	}
	if totals.NetBalanceCents != 200 {
		t.Errorf("expected net 200, got %d", totals.NetBalanceCents)
	}

	_, err = s.client.GetProfile(context.Background(), connect.NewRequest(&GetProfileRequest{TimeZone: "Mars/Olympus"}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument for unknown time zone, got %v", err)
	}
}

func TestListGroups(t *testing.T) {
	s := setupTestServer(t, nil)
	for _, u := range []models.User{
		{ID: "Alice", DisplayName: "Alice"},
		{ID: "Bob", DisplayName: "Bob"},
		{ID: "Carol", Email: "carol@example.com"},
	} {
		if _, err := s.client.SaveUser(context.Background(), connect.NewRequest(&SaveUserRequest{User: u})); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}
	}

	older := s.createGroup(t, "Flat", "Bob")
	time.Sleep(2 * time.Millisecond)
	newer := s.createGroup(t, "Trip", "Bob", "Carol", "Dave")

	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      older.ID,
		Description:  "Rent",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      newer.ID,
		Description:  "Fuel",
		AmountCents:  900,
		PaidByUID:    "Bob",
		Participants: []string{"Alice", "Bob", "Carol"},
	})

	resp, err := s.client.ListGroups(context.Background(), connect.NewRequest(&ListGroupsRequest{}))
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}

	groups := resp.Msg.Groups
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Group.ID != newer.ID || groups[1].Group.ID != older.ID {
		t.Errorf("expected newest group first, got %s then %s", groups[0].Group.Name, groups[1].Group.Name)
	}
	if groups[0].MyBalanceCents != -300 {
		t.Errorf("expected -300 in %s, got %d", groups[0].Group.Name, groups[0].MyBalanceCents)
	}
	if groups[1].MyBalanceCents != 500 {
		t.Errorf("expected 500 in %s, got %d", groups[1].Group.Name, groups[1].MyBalanceCents)
	}
	if groups[0].MemberCount != 4 {
		t.Errorf("expected 4 members, got %d", groups[0].MemberCount)
	}
	if groups[0].MemberPreview != "Alice, Bob, carol" {
		t.Errorf("unexpected member preview %q", groups[0].MemberPreview)
	}

	empty, err := s.client.ListGroups(context.Background(), connect.NewRequest(&ListGroupsRequest{UserID: "Nobody"}))
	if err != nil {
		t.Fatalf("ListGroups failed: %v", err)
	}
	if len(empty.Msg.Groups) != 0 {
		t.Errorf("expected no groups, got %+v", empty.Msg.Groups)
	}
}

func TestGetExpense(t *testing.T) {
	s := setupTestServer(t, nil)
	if _, err := s.client.SaveUser(context.Background(), connect.NewRequest(&SaveUserRequest{
		User: models.User{ID: "Bob", DisplayName: "Bob Builder"},
	})); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	group := s.createGroup(t, "Flat", "Bob", "Carol")

	expense := s.createExpense(t, &CreateExpenseRequest{
		GroupID:     group.ID,
		Description: "Dinner",
		AmountCents: 1000,
		PaidByUID:   "Bob",
		Splits:      map[string]int64{"Alice": 200, "Bob": 500, "Carol": 300},
	})

	resp, err := s.client.GetExpense(context.Background(), connect.NewRequest(&GetExpenseRequest{ExpenseID: expense.ID}))
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}

	details := resp.Msg.Details
	if details.Expense.ID != expense.ID || details.Expense.AmountCents != 1000 {
		t.Errorf("unexpected expense %+v", details.Expense)
	}
	if details.PaidByName != "Bob Builder" {
		t.Errorf("expected payer name Bob Builder, got %q", details.PaidByName)
	}
	want := []models.SplitRow{
		{UID: "Bob", Name: "Bob Builder", AmountCents: 500},
		{UID: "Carol", Name: "Carol", AmountCents: 300},
		{UID: "Alice", Name: "Alice", AmountCents: 200},
	}
	if len(details.Splits) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), details.Splits)
	}
	for i := range want {
		if details.Splits[i] != want[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, want[i], details.Splits[i])
		}
	}

	_, err = s.client.GetExpense(context.Background(), connect.NewRequest(&GetExpenseRequest{ExpenseID: "exp_missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
	_, err = s.client.GetExpense(context.Background(), connect.NewRequest(&GetExpenseRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestListActivities(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Flat")

	if _, err := s.client.AddMembers(context.Background(), connect.NewRequest(&AddMembersRequest{
		GroupID:   group.ID,
		MemberIDs: []string{"Bob"},
	})); err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Internet",
		AmountCents:  500,
		Participants: []string{"Alice", "Bob"},
	})

	resp, err := s.client.ListActivities(context.Background(), connect.NewRequest(&ListActivitiesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}

	types := make(map[string]int)
	for _, a := range resp.Msg.Activities {
		types[a.Type]++
	}
	for _, typ := range []string{models.ActivityGroupCreated, models.ActivityMemberAdded, models.ActivityExpenseAdded} {
		if types[typ] != 1 {
			t.Errorf("expected one %s activity, got %d", typ, types[typ])
		}
	}

	limited, err := s.client.ListActivities(context.Background(), connect.NewRequest(&ListActivitiesRequest{GroupID: group.ID, Limit: 1}))
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if len(limited.Msg.Activities) != 1 {
		t.Errorf("expected 1 activity with limit, got %d", len(limited.Msg.Activities))
	}
}

// failingActivityStore rejects every timeline write.
type failingActivityStore struct {
	storage.Store
}

func (failingActivityStore) CreateActivity(context.Context, *models.ActivityItem) error {
	return errors.New("activity table unavailable")
}

func TestCreateExpense_ActivityFailureIsBestEffort(t *testing.T) {
	s := setupTestServer(t, func(store storage.Store) storage.Store {
		return failingActivityStore{Store: store}
	})
	group := s.createGroup(t, "Flat", "Bob")

	expense := s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Water",
		AmountCents:  200,
		Participants: []string{"Alice", "Bob"},
	})

	stored, err := s.store.GetExpense(context.Background(), expense.ID)
	if err != nil {
		t.Fatalf("expected expense to be stored: %v", err)
	}
	if stored.AmountCents != 200 {
		t.Errorf("expected 200 cents, got %d", stored.AmountCents)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.ChangeEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func TestWritesNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	s := setupTestServer(t, nil, WithNotifier(notifier))

	group := s.createGroup(t, "Flat", "Bob")
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Power",
		AmountCents:  400,
		Participants: []string{"Alice", "Bob"},
	})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(notifier.events))
	}
	if e := notifier.events[0]; e.Kind != notify.KindMembers || e.GroupID != group.ID || len(e.UserIDs) != 2 {
		t.Errorf("unexpected group event: %+v", e)
	}
	if e := notifier.events[1]; e.Kind != notify.KindExpenses || e.GroupID != group.ID {
		t.Errorf("unexpected expense event: %+v", e)
	}
}

func TestWatchGroup(t *testing.T) {
	s := setupTestServer(t, nil)
	group := s.createGroup(t, "Flat", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := s.client.WatchGroup(ctx, connect.NewRequest(&WatchGroupRequest{
		GroupID:  group.ID,
		Strategy: calculator.StrategyOptimized,
	}))
	if err != nil {
		t.Fatalf("WatchGroup failed: %v", err)
	}
	defer stream.Close()

	first := receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		return !msg.Group.Loading()
	})
	if len(first.Group.Balances.Balances) != 2 {
		t.Fatalf("expected zero balances for both members, got %+v", first.Group.Balances.Balances)
	}
	for _, b := range first.Group.Balances.Balances {
		if b.BalanceCents != 0 {
			t.Errorf("expected zero balance for %s, got %d", b.UID, b.BalanceCents)
		}
	}
	if first.Group.Settlements.Strategy != calculator.StrategyOptimized {
		t.Errorf("expected optimized strategy, got %q", first.Group.Settlements.Strategy)
	}

	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Groceries",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})

	updated := receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		return len(msg.Group.Expenses) == 1
	})
	want := []models.Settlement{{FromUID: "Bob", ToUID: "Alice", AmountCents: 500}}
	if !equalSettlements(updated.Group.Settlements.Settlements, want) {
		t.Errorf("expected %+v, got %+v", want, updated.Group.Settlements.Settlements)
	}

	if _, err := s.client.SaveUser(context.Background(), connect.NewRequest(&SaveUserRequest{
		User: models.User{ID: "Bob", DisplayName: "Bob Builder"},
	})); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	renamed := receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		for _, b := range msg.Group.Balances.Balances {
			if b.UID == "Bob" && b.Name == "Bob Builder" {
				return true
			}
		}
		return false
	})
	if len(renamed.Group.Expenses) != 1 {
		t.Errorf("expected expenses to survive a member refresh, got %d", len(renamed.Group.Expenses))
	}
}

// flakyExpenseStore fails expense list reads while failing is set.
type flakyExpenseStore struct {
	storage.Store
	failing *atomic.Bool
}

func (s flakyExpenseStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]models.Expense, error) {
	if s.failing.Load() {
		return nil, errors.New("expenses unavailable")
	}
	return s.Store.ListExpensesByGroup(ctx, groupID)
}

func TestWatchGroup_FeedErrorMarksStale(t *testing.T) {
	failing := &atomic.Bool{}
	s := setupTestServer(t, func(store storage.Store) storage.Store {
		return flakyExpenseStore{Store: store, failing: failing}
	})
	group := s.createGroup(t, "Flat", "Bob")
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Groceries",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := s.client.WatchGroup(ctx, connect.NewRequest(&WatchGroupRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("WatchGroup failed: %v", err)
	}
	defer stream.Close()

	receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		return !msg.Group.Loading() && len(msg.Group.Expenses) == 1
	})

	failing.Store(true)
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Water",
		AmountCents:  200,
		Participants: []string{"Alice", "Bob"},
	})

	stale := receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		return msg.Group.Stale
	})
	if !strings.Contains(stale.Group.Error, "expenses unavailable") {
		t.Errorf("expected the feed error in the message, got %q", stale.Group.Error)
	}
	if len(stale.Group.Expenses) != 1 {
		t.Errorf("expected the last good expenses, got %d", len(stale.Group.Expenses))
	}
	want := []models.Settlement{{FromUID: "Bob", ToUID: "Alice", AmountCents: 500}}
	if !equalSettlements(stale.Group.Settlements.Settlements, want) {
		t.Errorf("expected last good settlements %+v, got %+v", want, stale.Group.Settlements.Settlements)
	}

	failing.Store(false)
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      group.ID,
		Description:  "Power",
		AmountCents:  400,
		Participants: []string{"Alice", "Bob"},
	})

	fresh := receiveUntil(t, stream, func(msg *WatchGroupResponse) bool {
		return len(msg.Group.Expenses) == 3
	})
	if fresh.Group.Stale || fresh.Group.Error != "" {
		t.Errorf("expected a fresh output after recovery, got stale=%v error=%q", fresh.Group.Stale, fresh.Group.Error)
	}
}

func TestWatchGroup_UnknownGroup(t *testing.T) {
	s := setupTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := s.client.WatchGroup(ctx, connect.NewRequest(&WatchGroupRequest{GroupID: "grp_missing"}))
	if err != nil {
		t.Fatalf("WatchGroup failed: %v", err)
	}
	defer stream.Close()

	if stream.Receive() {
		t.Fatalf("expected no messages, got %+v", stream.Msg())
	}
	if connect.CodeOf(stream.Err()) != connect.CodeNotFound {
		t.Errorf("expected NotFound, got %v", stream.Err())
	}
}

func TestWatchProfile(t *testing.T) {
	s := setupTestServer(t, nil)
	first := s.createGroup(t, "Flat", "Bob")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := s.client.WatchProfile(ctx, connect.NewRequest(&WatchProfileRequest{
		UserID:   "Alice",
		TimeZone: "Asia/Tokyo",
	}))
	if err != nil {
		t.Fatalf("WatchProfile failed: %v", err)
	}
	defer stream.Close()

	initial := receiveUntil(t, stream, func(msg *WatchProfileResponse) bool {
		return !msg.Profile.Loading
	})
	if totals := initial.Profile.Totals; totals.TotalSpentCents != 0 || totals.TotalIOweCents != 0 || len(totals.Monthly) != 0 {
		t.Errorf("expected empty totals, got %+v", initial.Profile.Totals)
	}

	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      first.ID,
		Description:  "Rent",
		AmountCents:  1000,
		Participants: []string{"Alice", "Bob"},
	})
	receiveUntil(t, stream, func(msg *WatchProfileResponse) bool {
		return msg.Profile.Totals.TotalSpentCents == 1000
	})

	// Joining a new group brings its expenses into the profile.
	second := s.createGroup(t, "Trip", "Bob")
	s.createExpense(t, &CreateExpenseRequest{
		GroupID:      second.ID,
		Description:  "Fuel",
		AmountCents:  600,
		PaidByUID:    "Bob",
		Participants: []string{"Alice", "Bob"},
	})
	final := receiveUntil(t, stream, func(msg *WatchProfileResponse) bool {
		return msg.Profile.Totals.TotalIOweCents == 300
	})
	if final.Profile.Totals.NetBalanceCents != 200 {
		t.Errorf("expected net 200, got %d", final.Profile.Totals.NetBalanceCents)
	}
}

func equalSettlements(got, want []models.Settlement) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
