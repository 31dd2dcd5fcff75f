// Package storagetest holds behaviour tests shared by every storage.Store
// backend.
package storagetest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

// Run exercises store against the storage.Store contract. The store must be
// empty.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	group := &models.Group{
		Name:         "Roommates",
		CreatedByUID: "alice",
		Members:      []string{"alice", "bob"},
	}

	t.Run("CreateGroup generates ID and timestamp", func(t *testing.T) {
		if err := store.CreateGroup(ctx, group); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if !strings.HasPrefix(group.ID, storage.PrefixGroup+"_") {
			t.Errorf("Expected grp_ ID, got %q", group.ID)
		}
		if group.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}
	})

	t.Run("GetGroup returns members", func(t *testing.T) {
		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != group.Name || got.CreatedByUID != "alice" {
			t.Errorf("GetGroup = %+v", got)
		}
		if len(got.Members) != 2 || got.Members[0] != "alice" || got.Members[1] != "bob" {
			t.Errorf("Members = %v, want [alice bob]", got.Members)
		}
	})

	t.Run("GetGroup returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "grp_missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AddMembers reports only new members", func(t *testing.T) {
		added, err := store.AddMembers(ctx, group.ID, []string{"bob", "carol", " ", "carol"})
		if err != nil {
			t.Fatalf("AddMembers failed: %v", err)
		}
		if len(added) != 1 || added[0] != "carol" {
			t.Errorf("added = %v, want [carol]", added)
		}

		_, err = store.AddMembers(ctx, "grp_missing", []string{"dave"})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for missing group, got %v", err)
		}
	})

	t.Run("ListGroupMembers resolves names", func(t *testing.T) {
		if err := store.UpsertUser(ctx, models.NewUser("alice", "Alice", "alice@example.com")); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
		if err := store.UpsertUser(ctx, models.NewUser("bob", "", "bobby@example.com")); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}

		members, err := store.ListGroupMembers(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListGroupMembers failed: %v", err)
		}
		want := []models.Member{
			{ID: "alice", Name: "Alice"},
			{ID: "bob", Name: "bobby"},
			{ID: "carol", Name: ""},
		}
		if len(members) != len(want) {
			t.Fatalf("members = %+v, want %+v", members, want)
		}
		for i := range want {
			if members[i] != want[i] {
				t.Errorf("member[%d] = %+v, want %+v", i, members[i], want[i])
			}
		}
	})

	t.Run("UpsertUser updates existing record", func(t *testing.T) {
		if err := store.UpsertUser(ctx, models.NewUser("alice", "Alice B.", "alice@example.com")); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
		users, err := store.GetUsersByIDs(ctx, []string{"alice", "nobody"})
		if err != nil {
			t.Fatalf("GetUsersByIDs failed: %v", err)
		}
		if len(users) != 1 || users["alice"].DisplayName != "Alice B." {
			t.Errorf("users = %+v", users)
		}

		empty, err := store.GetUsersByIDs(ctx, nil)
		if err != nil || len(empty) != 0 {
			t.Errorf("GetUsersByIDs(nil) = %v, %v", empty, err)
		}
	})

	t.Run("ListUserGroups", func(t *testing.T) {
		other := &models.Group{Name: "Trip", CreatedByUID: "carol", Members: []string{"carol"}}
		if err := store.CreateGroup(ctx, other); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		groups, err := store.ListUserGroups(ctx, "carol")
		if err != nil {
			t.Fatalf("ListUserGroups failed: %v", err)
		}
		if len(groups) != 2 {
			t.Errorf("carol groups = %v, want 2", groups)
		}

		none, err := store.ListUserGroups(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListUserGroups failed: %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("Expected empty non-nil slice, got %#v", none)
		}
	})

	var first models.Expense
	t.Run("CreateExpense stores splits in cents", func(t *testing.T) {
		first = models.Expense{
			GroupID:     group.ID,
			Description: "Groceries",
			AmountCents: 1001,
			PaidByUID:   "alice",
			Splits:      map[string]int64{"alice": 334, "bob": 334, "carol": 333},
			Category:    "Food",
			CreatedAt:   1_700_000_000_000,
		}
		if err := store.CreateExpense(ctx, &first); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if !strings.HasPrefix(first.ID, storage.PrefixExpense+"_") {
			t.Errorf("Expected exp_ ID, got %q", first.ID)
		}

		got, err := store.GetExpense(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if got.AmountCents != 1001 || got.Currency != models.DefaultCurrency || got.Category != "food" {
			t.Errorf("GetExpense = %+v", got)
		}
		if len(got.Splits) != 3 || got.Splits["carol"] != 333 {
			t.Errorf("Splits = %v", got.Splits)
		}
	})

	t.Run("GetExpense returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetExpense(ctx, "exp_missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListExpensesByGroup newest first", func(t *testing.T) {
		second := models.Expense{
			GroupID:     group.ID,
			Description: "Taxi",
			AmountCents: 300,
			PaidByUID:   "bob",
			Splits:      map[string]int64{"alice": 150, "bob": 150},
			CreatedAt:   first.CreatedAt + 1000,
		}
		if err := store.CreateExpense(ctx, &second); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		expenses, err := store.ListExpensesByGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListExpensesByGroup failed: %v", err)
		}
		if len(expenses) != 2 {
			t.Fatalf("Expected 2 expenses, got %d", len(expenses))
		}
		if expenses[0].ID != second.ID || expenses[1].ID != first.ID {
			t.Errorf("Unexpected order: %s, %s", expenses[0].ID, expenses[1].ID)
		}
		if expenses[0].Category != models.CategoryOther {
			t.Errorf("Expected blank category to normalize to %q, got %q", models.CategoryOther, expenses[0].Category)
		}
		if len(expenses[1].Splits) != 3 {
			t.Errorf("Splits lost in listing: %v", expenses[1].Splits)
		}

		empty, err := store.ListExpensesByGroup(ctx, "grp_missing")
		if err != nil || empty == nil || len(empty) != 0 {
			t.Errorf("ListExpensesByGroup(missing) = %#v, %v", empty, err)
		}
	})

	t.Run("Activities newest first with limit", func(t *testing.T) {
		for i, typ := range []string{models.ActivityGroupCreated, models.ActivityMemberAdded, models.ActivityExpenseAdded} {
			a := &models.ActivityItem{
				GroupID:   group.ID,
				Type:      typ,
				ActorUID:  "alice",
				CreatedAt: int64(1000 + i),
			}
			if err := store.CreateActivity(ctx, a); err != nil {
				t.Fatalf("CreateActivity failed: %v", err)
			}
			if !strings.HasPrefix(a.ID, storage.PrefixActivity+"_") {
				t.Errorf("Expected act_ ID, got %q", a.ID)
			}
		}

		activities, err := store.ListActivitiesByGroup(ctx, group.ID, 2)
		if err != nil {
			t.Fatalf("ListActivitiesByGroup failed: %v", err)
		}
		if len(activities) != 2 {
			t.Fatalf("Expected 2 activities, got %d", len(activities))
		}
		if activities[0].Type != models.ActivityExpenseAdded || activities[1].Type != models.ActivityMemberAdded {
			t.Errorf("Unexpected order: %s, %s", activities[0].Type, activities[1].Type)
		}
	})
}
