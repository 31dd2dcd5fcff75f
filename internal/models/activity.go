package models

// Activity types recorded on the group timeline.
const (
	ActivityGroupCreated = "group_created"
	ActivityMemberAdded  = "member_added"
	ActivityExpenseAdded = "expense_added"
)

// ActivityItem is a timeline entry for a group.
// Activities are written best-effort next to the primary write.
type ActivityItem struct {
	ID          string `json:"id"`
	GroupID     string `json:"groupId"`
	Type        string `json:"type"`
	ActorUID    string `json:"actorUid"`
	TargetUID   string `json:"targetUid,omitempty"`
	ExpenseID   string `json:"expenseId,omitempty"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}
