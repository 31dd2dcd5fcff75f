// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/groupsplit/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations of the ledger.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer. Every Store is also a feed.Loader.
type Store interface {
	// CreateGroup persists a group and its initial members.
	// The group ID and CreatedAt are assigned when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its member IDs.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupMembers returns the members of a group with their display
	// names, ordered by member ID.
	ListGroupMembers(ctx context.Context, groupID string) ([]models.Member, error)

	// AddMembers adds members to a group and returns the IDs that were not
	// already members. Returns ErrNotFound if the group does not exist.
	AddMembers(ctx context.Context, groupID string, memberIDs []string) ([]string, error)

	// ListUserGroups returns the IDs of the groups a user belongs to.
	ListUserGroups(ctx context.Context, userID string) ([]string, error)

	// CreateExpense persists an expense with its splits.
	// The expense ID and CreatedAt are assigned when empty.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense by ID.
	// Returns ErrNotFound if the expense does not exist.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ListExpensesByGroup returns every expense of a group, newest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]models.Expense, error)

	// CreateActivity appends a timeline entry.
	CreateActivity(ctx context.Context, activity *models.ActivityItem) error

	// ListActivitiesByGroup returns up to limit timeline entries, newest first.
	ListActivitiesByGroup(ctx context.Context, groupID string, limit int) ([]models.ActivityItem, error)

	// UpsertUser creates or updates a directory record.
	UpsertUser(ctx context.Context, user *models.User) error

	// GetUsersByIDs returns a map of user ID to User.
	// Users that don't exist are omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// Close releases any resources held by the store.
	Close() error
}
