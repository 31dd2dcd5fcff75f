// Package notify broadcasts ledger changes between server instances over
// AMQP so each instance can refresh its own feed hub.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Change kinds.
const (
	KindMembers  = "members"
	KindExpenses = "expenses"
)

// ChangeEvent says that a group's members or expenses changed. Receivers
// reload the data themselves; the event carries no snapshot.
type ChangeEvent struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Kind      string    `json:"kind"`
	GroupID   string    `json:"groupId"`
	UserIDs   []string  `json:"userIds,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeEvent creates an event with a fresh ID.
func NewChangeEvent(kind, groupID string, userIDs ...string) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		GroupID:   groupID,
		UserIDs:   userIDs,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ChangeEventFromJSON decodes and checks an event.
func ChangeEventFromJSON(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, err
	}
	if e.GroupID == "" {
		return ChangeEvent{}, fmt.Errorf("change event %s: missing group id", e.ID)
	}
	if e.Kind != KindMembers && e.Kind != KindExpenses {
		return ChangeEvent{}, fmt.Errorf("change event %s: unknown kind %q", e.ID, e.Kind)
	}
	return e, nil
}

// Refresher is the part of the feed hub a change event drives.
type Refresher interface {
	PublishMembers(groupID string)
	PublishExpenses(groupID string)
	PublishUserGroups(userID string)
}

// Apply schedules the hub reloads an event calls for.
func Apply(r Refresher, e ChangeEvent) {
	switch e.Kind {
	case KindMembers:
		r.PublishMembers(e.GroupID)
		for _, uid := range e.UserIDs {
			r.PublishUserGroups(uid)
		}
	case KindExpenses:
		r.PublishExpenses(e.GroupID)
	}
}
