package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/groupsplit/internal/calculator"
	"github.com/mmynk/groupsplit/internal/coordinator"
	"github.com/mmynk/groupsplit/internal/feed"
	"github.com/mmynk/groupsplit/internal/middleware"
	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/notify"
	"github.com/mmynk/groupsplit/internal/storage"
)

// DefaultActivityLimit caps ListActivities when the request sets no limit.
const DefaultActivityLimit = 50

// maxGroupLoads bounds concurrent per-group loads.
const maxGroupLoads = 8

// Feeds is the live side of the ledger: snapshot subscriptions, reload
// triggers and the dispatch goroutine that serializes them.
type Feeds interface {
	feed.MembershipSource
	feed.ExpenseSource
	feed.UserGroupsSource
	notify.Refresher

	// Do runs fn on the dispatch goroutine and waits for it.
	Do(ctx context.Context, fn func()) error
}

// Notifier tells other server instances about a change.
type Notifier interface {
	Notify(ctx context.Context, e notify.ChangeEvent) error
}

// Option configures a LedgerService.
type Option func(*LedgerService)

// WithRecorder reports coordinator activity of watch streams.
func WithRecorder(r coordinator.Recorder) Option {
	return func(s *LedgerService) {
		s.recorder = r
	}
}

// WithNotifier broadcasts every write after it is stored.
func WithNotifier(n Notifier) Option {
	return func(s *LedgerService) {
		s.notifier = n
	}
}

// WithDefaultStrategy sets the settlement strategy used when a request
// names none.
func WithDefaultStrategy(name string) Option {
	return func(s *LedgerService) {
		s.defaultStrategy = name
	}
}

// WithLocation sets the calendar used for monthly profile buckets when a
// request names no time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *LedgerService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithActivityLimit sets the default page size of ListActivities.
func WithActivityLimit(n int) Option {
	return func(s *LedgerService) {
		if n > 0 {
			s.activityLimit = n
		}
	}
}

// LedgerService implements the groupsplit.v1.LedgerService procedures.
type LedgerService struct {
	store           storage.Store
	feeds           Feeds
	recorder        coordinator.Recorder
	notifier        Notifier
	defaultStrategy string
	loc             *time.Location
	activityLimit   int
}

// NewLedgerService creates a LedgerService writing to store and serving
// watch streams from feeds.
func NewLedgerService(store storage.Store, feeds Feeds, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:           store,
		feeds:           feeds,
		defaultStrategy: calculator.DefaultStrategy,
		loc:             time.Local,
		activityLimit:   DefaultActivityLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group with the creator and the listed members.
func (s *LedgerService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"members_count", len(req.Msg.MemberIDs),
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, invalidArgument(errors.New("group name is required"))
	}
	creator, err := observerID(ctx, req.Msg.CreatorID)
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:         name,
		CreatedByUID: creator,
		Members:      uniqueIDs(append([]string{creator}, req.Msg.MemberIDs...)),
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, toConnectError("CreateGroup", err)
	}
	slog.Info("Group created", "group_id", group.ID, "members", group.Members)

	s.recordActivity(ctx, &models.ActivityItem{
		GroupID:     group.ID,
		Type:        models.ActivityGroupCreated,
		ActorUID:    creator,
		Description: group.Name,
	})
	s.publish(ctx, notify.NewChangeEvent(notify.KindMembers, group.ID, group.Members...))

	return connect.NewResponse(&CreateGroupResponse{Group: *group}), nil
}

// AddMembers adds members to an existing group.
func (s *LedgerService) AddMembers(ctx context.Context, req *connect.Request[AddMembersRequest]) (*connect.Response[AddMembersResponse], error) {
	slog.Info("AddMembers request received",
		"group_id", req.Msg.GroupID,
		"members", req.Msg.MemberIDs,
	)

	if req.Msg.GroupID == "" {
		return nil, invalidArgument(errors.New("group_id is required"))
	}
	actor, err := observerID(ctx, req.Msg.ActorID)
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("AddMembers", err)
	}
	candidates := findNewMembers(uniqueIDs(req.Msg.MemberIDs), group.Members)
	if len(candidates) == 0 {
		return nil, invalidArgument(errors.New("already members"))
	}

	added, err := s.store.AddMembers(ctx, group.ID, candidates)
	if err != nil {
		return nil, toConnectError("AddMembers", err)
	}
	if len(added) == 0 {
		return nil, invalidArgument(errors.New("already members"))
	}
	slog.Info("Members added", "group_id", group.ID, "added", added)

	for _, uid := range added {
		s.recordActivity(ctx, &models.ActivityItem{
			GroupID:   group.ID,
			Type:      models.ActivityMemberAdded,
			ActorUID:  actor,
			TargetUID: uid,
		})
	}
	s.publish(ctx, notify.NewChangeEvent(notify.KindMembers, group.ID, added...))

	return connect.NewResponse(&AddMembersResponse{Added: added}), nil
}

// CreateExpense records an expense and fans the change out to every watcher
// of the group.
func (s *LedgerService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[CreateExpenseResponse], error) {
	slog.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"description", req.Msg.Description,
		"amount_cents", req.Msg.AmountCents,
		"participants", req.Msg.Participants,
	)

	description := strings.TrimSpace(req.Msg.Description)
	if description == "" {
		return nil, invalidArgument(errors.New("description is required"))
	}
	if req.Msg.AmountCents <= 0 {
		return nil, invalidArgument(errors.New("amount must be positive"))
	}
	if req.Msg.GroupID == "" {
		return nil, invalidArgument(errors.New("group_id is required"))
	}
	payer, err := observerID(ctx, req.Msg.PaidByUID)
	if err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("CreateExpense", err)
	}
	if !slices.Contains(group.Members, payer) {
		return nil, invalidArgument(fmt.Errorf("payer %q is not a member of the group", payer))
	}

	splits, err := buildSplits(req.Msg, group.Members)
	if err != nil {
		return nil, toConnectError("CreateExpense", err)
	}

	expense := &models.Expense{
		GroupID:     group.ID,
		Description: description,
		AmountCents: req.Msg.AmountCents,
		Currency:    req.Msg.Currency,
		PaidByUID:   payer,
		Splits:      splits,
		Category:    req.Msg.Category,
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return nil, toConnectError("CreateExpense", err)
	}
	slog.Info("Expense created", "expense_id", expense.ID, "group_id", group.ID, "splits", len(splits))

	s.recordActivity(ctx, &models.ActivityItem{
		GroupID:     group.ID,
		Type:        models.ActivityExpenseAdded,
		ActorUID:    payer,
		ExpenseID:   expense.ID,
		Description: expense.Description,
		AmountCents: expense.AmountCents,
	})
	s.publish(ctx, notify.NewChangeEvent(notify.KindExpenses, group.ID))

	return connect.NewResponse(&CreateExpenseResponse{Expense: *expense}), nil
}

// buildSplits validates explicit splits or divides the amount equally among
// the participants. Every split key must be a group member.
func buildSplits(msg *CreateExpenseRequest, members []string) (map[string]int64, error) {
	if len(msg.Splits) > 0 {
		for uid, cents := range msg.Splits {
			if !slices.Contains(members, uid) {
				return nil, invalidArgument(fmt.Errorf("participant %q is not a member of the group", uid))
			}
			if cents < 0 {
				return nil, invalidArgument(fmt.Errorf("split for %q: %w", uid, calculator.ErrNegativeAmount))
			}
		}
		return maps.Clone(msg.Splits), nil
	}

	for _, uid := range msg.Participants {
		if !slices.Contains(members, uid) {
			return nil, invalidArgument(fmt.Errorf("participant %q is not a member of the group", uid))
		}
	}
	return calculator.SplitEqually(msg.AmountCents, msg.Participants)
}

// GetGroupBalances computes balances and settlements for a group from the
// current store contents.
func (s *LedgerService) GetGroupBalances(ctx context.Context, req *connect.Request[GetGroupBalancesRequest]) (*connect.Response[GetGroupBalancesResponse], error) {
	slog.Info("GetGroupBalances request received", "group_id", req.Msg.GroupID, "strategy", req.Msg.Strategy)

	strategy, err := s.strategy(req.Msg.Strategy)
	if err != nil {
		return nil, toConnectError("GetGroupBalances", err)
	}
	if _, err := s.store.GetGroup(ctx, req.Msg.GroupID); err != nil {
		return nil, toConnectError("GetGroupBalances", err)
	}

	members, err := s.store.ListGroupMembers(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("GetGroupBalances", err)
	}
	expenses, err := s.store.ListExpensesByGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("GetGroupBalances", err)
	}

	settlements := strategy.Settle(expenses)
	slog.Info("GetGroupBalances successful",
		"group_id", req.Msg.GroupID,
		"expenses", len(expenses),
		"settlements", len(settlements),
	)

	return connect.NewResponse(&GetGroupBalancesResponse{
		Balances:    calculator.CalculateBalances(expenses, members),
		Settlements: settlements,
		Strategy:    strategy.Name(),
		Categories:  calculator.CategoryTotals(expenses),
	}), nil
}

// GetProfile computes lifetime totals across every group of the user.
func (s *LedgerService) GetProfile(ctx context.Context, req *connect.Request[GetProfileRequest]) (*connect.Response[GetProfileResponse], error) {
	uid, err := observerID(ctx, req.Msg.UserID)
	if err != nil {
		return nil, err
	}
	loc, err := s.location(req.Msg.TimeZone)
	if err != nil {
		return nil, err
	}
	slog.Info("GetProfile request received", "user_id", uid, "time_zone", loc.String())

	groupIDs, err := s.store.ListUserGroups(ctx, uid)
	if err != nil {
		return nil, toConnectError("GetProfile", err)
	}

	perGroup := make([][]models.Expense, len(groupIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxGroupLoads)
	for i, groupID := range groupIDs {
		g.Go(func() error {
			expenses, err := s.store.ListExpensesByGroup(gctx, groupID)
			if err != nil {
				return fmt.Errorf("list expenses of %s: %w", groupID, err)
			}
			perGroup[i] = expenses
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, toConnectError("GetProfile", err)
	}

	var all []models.Expense
	for _, expenses := range perGroup {
		all = append(all, expenses...)
	}
	totals := calculator.CalculateProfile(all, uid, loc)

	return connect.NewResponse(&GetProfileResponse{
		Profile: models.ProfileView{
			UserID: uid,
			Totals: totals,
		},
	}), nil
}

// ListGroups returns the user's groups newest first, each with the user's
// net balance and a preview of member names.
func (s *LedgerService) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	uid, err := observerID(ctx, req.Msg.UserID)
	if err != nil {
		return nil, err
	}
	slog.Info("ListGroups request received", "user_id", uid)

	groupIDs, err := s.store.ListUserGroups(ctx, uid)
	if err != nil {
		return nil, toConnectError("ListGroups", err)
	}

	summaries := make([]models.GroupSummary, len(groupIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxGroupLoads)
	for i, groupID := range groupIDs {
		g.Go(func() error {
			summary, err := s.groupSummary(gctx, groupID, uid)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, toConnectError("ListGroups", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].Group, summaries[j].Group
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID > b.ID
	})

	slog.Info("ListGroups successful", "user_id", uid, "count", len(summaries))
	return connect.NewResponse(&ListGroupsResponse{Groups: summaries}), nil
}

func (s *LedgerService) groupSummary(ctx context.Context, groupID, uid string) (models.GroupSummary, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.GroupSummary{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return models.GroupSummary{}, fmt.Errorf("list members of %s: %w", groupID, err)
	}
	expenses, err := s.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return models.GroupSummary{}, fmt.Errorf("list expenses of %s: %w", groupID, err)
	}

	return models.GroupSummary{
		Group:          *group,
		MemberCount:    len(members),
		MemberPreview:  models.MemberPreview(members),
		MyBalanceCents: calculator.NetBalanceFor(expenses, uid),
	}, nil
}

// GetExpense returns one expense with the payer and every participant
// named, largest share first.
func (s *LedgerService) GetExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[GetExpenseResponse], error) {
	if req.Msg.ExpenseID == "" {
		return nil, invalidArgument(errors.New("expense_id is required"))
	}

	expense, err := s.store.GetExpense(ctx, req.Msg.ExpenseID)
	if err != nil {
		return nil, toConnectError("GetExpense", err)
	}

	ids := append([]string{expense.PaidByUID}, expense.Participants()...)
	users, err := s.store.GetUsersByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, toConnectError("GetExpense", err)
	}

	rows := make([]models.SplitRow, 0, len(expense.Splits))
	for uid, cents := range expense.Splits {
		rows = append(rows, models.SplitRow{UID: uid, Name: displayName(users, uid), AmountCents: cents})
	}
	models.SortSplitRows(rows)

	return connect.NewResponse(&GetExpenseResponse{
		Details: models.ExpenseDetails{
			Expense:    *expense,
			PaidByName: displayName(users, expense.PaidByUID),
			Splits:     rows,
		},
	}), nil
}

// displayName labels uid from the directory, falling back to the ID.
func displayName(users map[string]*models.User, uid string) string {
	if label := users[uid].Label(); label != "" {
		return label
	}
	return uid
}

// ListActivities returns the newest timeline entries of a group.
func (s *LedgerService) ListActivities(ctx context.Context, req *connect.Request[ListActivitiesRequest]) (*connect.Response[ListActivitiesResponse], error) {
	if req.Msg.GroupID == "" {
		return nil, invalidArgument(errors.New("group_id is required"))
	}
	limit := req.Msg.Limit
	if limit <= 0 {
		limit = s.activityLimit
	}

	activities, err := s.store.ListActivitiesByGroup(ctx, req.Msg.GroupID, limit)
	if err != nil {
		return nil, toConnectError("ListActivities", err)
	}
	if activities == nil {
		activities = []models.ActivityItem{}
	}
	return connect.NewResponse(&ListActivitiesResponse{Activities: activities}), nil
}

// SaveUser stores a directory record and refreshes the member names of
// every group the user belongs to.
func (s *LedgerService) SaveUser(ctx context.Context, req *connect.Request[SaveUserRequest]) (*connect.Response[SaveUserResponse], error) {
	user := req.Msg.User
	if user.ID == "" {
		user.ID = middleware.GetUserID(ctx)
	}
	if user.ID == "" {
		return nil, invalidArgument(errors.New("user id is required"))
	}
	if user.Email == "" {
		user.Email = middleware.GetEmail(ctx)
	}

	if err := s.store.UpsertUser(ctx, &user); err != nil {
		return nil, toConnectError("SaveUser", err)
	}

	groupIDs, err := s.store.ListUserGroups(ctx, user.ID)
	if err != nil {
		slog.Warn("SaveUser: failed to list groups", "user_id", user.ID, "error", err)
	}
	for _, groupID := range groupIDs {
		s.publish(ctx, notify.NewChangeEvent(notify.KindMembers, groupID))
	}

	return connect.NewResponse(&SaveUserResponse{User: user}), nil
}

// recordActivity writes a timeline entry. Failures are logged and never
// fail the primary write.
func (s *LedgerService) recordActivity(ctx context.Context, activity *models.ActivityItem) {
	if err := s.store.CreateActivity(ctx, activity); err != nil {
		slog.Warn("Activity write failed",
			"group_id", activity.GroupID,
			"type", activity.Type,
			"error", err,
		)
	}
}

// publish reloads the local feeds and tells other instances.
func (s *LedgerService) publish(ctx context.Context, e notify.ChangeEvent) {
	notify.Apply(s.feeds, e)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, e); err != nil {
		slog.Warn("Change notification failed", "group_id", e.GroupID, "kind", e.Kind, "error", err)
	}
}

func (s *LedgerService) strategy(name string) (calculator.Strategy, error) {
	if name == "" {
		name = s.defaultStrategy
	}
	return calculator.StrategyByName(name)
}

func (s *LedgerService) location(name string) (*time.Location, error) {
	if name == "" {
		return s.loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidArgument(fmt.Errorf("time zone %q: %w", name, err))
	}
	return loc, nil
}

// observerID returns id, or the authenticated user when id is empty.
func observerID(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if uid := middleware.GetUserID(ctx); uid != "" {
		return uid, nil
	}
	return "", invalidArgument(errors.New("user id is required"))
}

// findNewMembers returns candidates that are not already in existing.
func findNewMembers(candidates, existing []string) []string {
	memberSet := make(map[string]bool, len(existing))
	for _, m := range existing {
		memberSet[m] = true
	}
	var newOnes []string
	for _, c := range candidates {
		if !memberSet[c] {
			newOnes = append(newOnes, c)
		}
	}
	return newOnes
}

// uniqueIDs drops blanks and duplicates, keeping first occurrences.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
