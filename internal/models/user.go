package models

import "time"

// User is a directory record. The engine only uses it to resolve display
// names for member balances; identity management lives elsewhere.
type User struct {
	// ID is the member ID referenced by groups and expenses.
	ID string `json:"id"`

	// DisplayName is the preferred label for the member.
	DisplayName string `json:"displayName"`

	// Email is used as a fallback label when DisplayName is blank.
	Email string `json:"email,omitempty"`

	// CreatedAt is the epoch-millisecond timestamp of the first save.
	CreatedAt int64 `json:"createdAt"`
}

// NewUser creates a directory record stamped with the current time.
func NewUser(id, displayName, email string) *User {
	return &User{
		ID:          id,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// Label returns the name shown for the user: the display name, else the
// local part of the email.
func (u *User) Label() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
