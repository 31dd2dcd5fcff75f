package models

// ProfileTotals are lifetime totals for one observer across all of their groups.
type ProfileTotals struct {
	// TotalSpentCents is the sum of amounts the observer paid.
	TotalSpentCents int64 `json:"totalSpentCents"`

	// TotalReceivedCents is the sum of others' shares in expenses the observer paid.
	TotalReceivedCents int64 `json:"totalReceivedCents"`

	// TotalIOweCents is the observer's own share in expenses paid by others.
	TotalIOweCents int64 `json:"totalIOweCents"`

	// TotalOwedToMeCents mirrors TotalReceivedCents.
	TotalOwedToMeCents int64 `json:"totalOwedToMeCents"`

	// NetBalanceCents is TotalOwedToMeCents minus TotalIOweCents.
	NetBalanceCents int64 `json:"netBalanceCents"`

	// Monthly holds the observer's spending per month, newest month first.
	Monthly []MonthlySpent `json:"monthly"`
}

// MonthlySpent is one row of the monthly spending histogram.
type MonthlySpent struct {
	// Month is a "YYYY-MM" key in the observer's calendar.
	Month string `json:"month"`

	// AmountCents is the total the observer paid that month.
	AmountCents int64 `json:"amountCents"`
}

// ProfileView is the wholesale output of a profile coordinator.
// Stale and Error are set when a feed failed after the totals were computed;
// the totals are then the last good ones.
type ProfileView struct {
	UserID  string        `json:"userId"`
	Totals  ProfileTotals `json:"totals"`
	Loading bool          `json:"loading"`
	Stale   bool          `json:"stale,omitempty"`
	Error   string        `json:"error,omitempty"`
}
