package models

// MemberBalance is the net position of one member across a set of expenses.
type MemberBalance struct {
	// UID is the member ID.
	UID string `json:"uid"`

	// Name is the display name resolved by the directory (may be empty).
	Name string `json:"name"`

	// BalanceCents is positive when the group owes this member and
	// negative when this member owes the group.
	BalanceCents int64 `json:"balanceCents"`
}

// Settlement is a recommended one-directional transfer between two members.
type Settlement struct {
	// FromUID is the debtor who should pay.
	FromUID string `json:"fromUid"`

	// ToUID is the creditor who should receive.
	ToUID string `json:"toUid"`

	// AmountCents is always greater than zero.
	AmountCents int64 `json:"amountCents"`
}

// BalanceView is the wholesale balance output of a group coordinator.
type BalanceView struct {
	Balances []MemberBalance `json:"balances"`
	Loading  bool            `json:"loading"`
}

// SettlementView is the wholesale settlement output of a group coordinator.
type SettlementView struct {
	Settlements []Settlement `json:"settlements"`
	Strategy    string       `json:"strategy"`
	Loading     bool         `json:"loading"`
}
