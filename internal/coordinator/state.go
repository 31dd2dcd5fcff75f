// Package coordinator drives the ledger calculators from live feeds.
//
// A coordinator owns the latest snapshot of each feed it subscribes to and
// recomputes its output in full only once every feed has delivered at least
// one snapshot. Until then it stays in Loading and emits nothing but the
// initial loading view.
//
// Coordinators do no locking. All methods and all feed callbacks for one
// instance must run on a single goroutine, such as the feed hub's dispatch
// goroutine.
package coordinator

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a coordinator.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Feed names used in FeedError and Recorder calls.
const (
	FeedMembers    = "members"
	FeedExpenses   = "expenses"
	FeedUserGroups = "user_groups"
)

// FeedError reports that a subscription failed. The coordinator keeps
// serving its last output after one.
type FeedError struct {
	Feed string
	Key  string
	Err  error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s feed for %s: %v", e.Feed, e.Key, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Recorder observes coordinator activity.
type Recorder interface {
	Recomputed(kind string, elapsed time.Duration)
	FeedFailed(kind, feed string)
	StateChanged(kind string, from, to State)
}

// Coordinator kinds passed to Recorder.
const (
	KindGroup   = "group"
	KindProfile = "profile"
)

type nopRecorder struct{}

func (nopRecorder) Recomputed(string, time.Duration) {}
func (nopRecorder) FeedFailed(string, string) {}
func (nopRecorder) StateChanged(string, State, State) {}
