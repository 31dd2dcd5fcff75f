package models

import (
	"fmt"
	"strings"
)

// Group represents a set of members who share expenses.
// Membership is owned by the store; the engine only reads it.
type Group struct {
	// ID is the unique identifier for the group (TypeID, "grp_" prefix).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Trip").
	Name string `json:"name"`

	// CreatedByUID is the member who created the group.
	CreatedByUID string `json:"createdByUid"`

	// CreatedAt is the epoch-millisecond timestamp when the group was created.
	CreatedAt int64 `json:"createdAt"`

	// Members is the list of member IDs in this group.
	Members []string `json:"members,omitempty"`
}

// Member is one membership entry with its externally resolved display name.
// Name is empty when the directory has no record for the ID.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MemberIDs returns the IDs of the given members in order.
func MemberIDs(members []Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

// GroupSummary is one row of a user's group list.
type GroupSummary struct {
	Group Group `json:"group"`

	// MemberCount is the number of members in the group.
	MemberCount int `json:"memberCount"`

	// MemberPreview is a short list of member names (see MemberPreview).
	MemberPreview string `json:"memberPreview"`

	// MyBalanceCents is the viewer's net position in the group.
	MyBalanceCents int64 `json:"myBalanceCents"`
}

// MemberPreview names up to three members, e.g. "Ann, Bob, Cy +2".
// Blank and repeated names are skipped; with no names it falls back to
// the member count.
func MemberPreview(members []Member) string {
	seen := make(map[string]bool, len(members))
	var names []string
	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	switch {
	case len(names) == 0 && len(members) == 1:
		return "1 member"
	case len(names) == 0:
		return fmt.Sprintf("%d members", len(members))
	case len(names) <= 3:
		return strings.Join(names, ", ")
	default:
		return fmt.Sprintf("%s +%d", strings.Join(names[:3], ", "), len(names)-3)
	}
}
