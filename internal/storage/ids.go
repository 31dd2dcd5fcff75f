package storage

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// ID prefixes for stored entities.
const (
	PrefixGroup    = "grp"
	PrefixExpense  = "exp"
	PrefixActivity = "act"
)

// NewID generates a K-sortable TypeID such as "exp_01h2xcejqtf2nbrexx3vqjhp41".
// It panics if prefix is not a valid TypeID prefix (programming error).
func NewID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("storage: invalid id prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewGroupID returns a fresh group ID.
func NewGroupID() string { return NewID(PrefixGroup) }

// NewExpenseID returns a fresh expense ID.
func NewExpenseID() string { return NewID(PrefixExpense) }

// NewActivityID returns a fresh activity ID.
func NewActivityID() string { return NewID(PrefixActivity) }

