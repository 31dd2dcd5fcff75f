package service

import (
	"github.com/mmynk/groupsplit/internal/coordinator"
	"github.com/mmynk/groupsplit/internal/models"
)

// CreateGroupRequest creates a group. CreatorID defaults to the caller.
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId,omitempty"`
	MemberIDs []string `json:"memberIds,omitempty"`
}

type CreateGroupResponse struct {
	Group models.Group `json:"group"`
}

// AddMembersRequest adds members to a group. ActorID defaults to the caller.
type AddMembersRequest struct {
	GroupID   string   `json:"groupId"`
	ActorID   string   `json:"actorId,omitempty"`
	MemberIDs []string `json:"memberIds"`
}

type AddMembersResponse struct {
	Added []string `json:"added"`
}

// CreateExpenseRequest records an expense. Without Splits the amount is
// divided equally among Participants. PaidByUID defaults to the caller.
type CreateExpenseRequest struct {
	GroupID      string           `json:"groupId"`
	Description  string           `json:"description"`
	AmountCents  int64            `json:"amountCents"`
	Currency     string           `json:"currency,omitempty"`
	PaidByUID    string           `json:"paidByUid,omitempty"`
	Participants []string         `json:"participants,omitempty"`
	Splits       map[string]int64 `json:"splits,omitempty"`
	Category     string           `json:"category,omitempty"`
}

type CreateExpenseResponse struct {
	Expense models.Expense `json:"expense"`
}

// GetGroupBalancesRequest computes a one-shot ledger for a group.
// An empty Strategy uses the server default.
type GetGroupBalancesRequest struct {
	GroupID  string `json:"groupId"`
	Strategy string `json:"strategy,omitempty"`
}

type GetGroupBalancesResponse struct {
	Balances    []models.MemberBalance `json:"balances"`
	Settlements []models.Settlement    `json:"settlements"`
	Strategy    string                 `json:"strategy"`
	Categories  []models.CategoryTotal `json:"categories"`
}

// GetProfileRequest computes lifetime totals. UserID defaults to the caller;
// TimeZone is an IANA name and defaults to the server's zone.
type GetProfileRequest struct {
	UserID   string `json:"userId,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type GetProfileResponse struct {
	Profile models.ProfileView `json:"profile"`
}

// ListGroupsRequest lists a user's groups. UserID defaults to the caller.
type ListGroupsRequest struct {
	UserID string `json:"userId,omitempty"`
}

// ListGroupsResponse holds the groups newest first.
type ListGroupsResponse struct {
	Groups []models.GroupSummary `json:"groups"`
}

type GetExpenseRequest struct {
	ExpenseID string `json:"expenseId"`
}

type GetExpenseResponse struct {
	Details models.ExpenseDetails `json:"details"`
}

type ListActivitiesRequest struct {
	GroupID string `json:"groupId"`
	Limit   int    `json:"limit,omitempty"`
}

type ListActivitiesResponse struct {
	Activities []models.ActivityItem `json:"activities"`
}

// SaveUserRequest stores the directory record used to label members.
type SaveUserRequest struct {
	User models.User `json:"user"`
}

type SaveUserResponse struct {
	User models.User `json:"user"`
}

type WatchGroupRequest struct {
	GroupID  string `json:"groupId"`
	Strategy string `json:"strategy,omitempty"`
}

type WatchGroupResponse struct {
	Group coordinator.GroupOutput `json:"group"`
}

type WatchProfileRequest struct {
	UserID   string `json:"userId,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type WatchProfileResponse struct {
	Profile models.ProfileView `json:"profile"`
}
