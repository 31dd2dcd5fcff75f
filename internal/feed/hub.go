package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/groupsplit/internal/models"
)

// ErrHubStopped is returned by Do once the hub's Run loop has exited.
var ErrHubStopped = errors.New("feed hub stopped")

type topicKind int

const (
	topicMembers topicKind = iota
	topicExpenses
	topicUserGroups
)

func (k topicKind) String() string {
	switch k {
	case topicMembers:
		return "members"
	case topicExpenses:
		return "expenses"
	default:
		return "user_groups"
	}
}

type topic struct {
	kind topicKind
	key  string
}

type subscription struct {
	id      uint64
	topic   topic
	deliver func(snapshot any)
	onError func(error)
	active  bool
}

// Hub is an in-process implementation of every source in this package.
//
// All loads and deliveries run on the single goroutine executing Run, so the
// callbacks of one subscriber never run concurrently. Subscribing schedules
// an initial snapshot; Publish* schedules a reload for every subscriber of
// the topic.
type Hub struct {
	loader Loader

	mu     sync.Mutex
	subs   map[topic]map[uint64]*subscription
	nextID uint64
	queue  []func(ctx context.Context)
	wake   chan struct{}
	done   chan struct{}
}

var (
	_ MembershipSource = (*Hub)(nil)
	_ ExpenseSource    = (*Hub)(nil)
	_ UserGroupsSource = (*Hub)(nil)
)

// NewHub creates a hub that loads snapshots from loader.
func NewHub(loader Loader) *Hub {
	return &Hub{
		loader: loader,
		subs:   make(map[topic]map[uint64]*subscription),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run executes queued loads and deliveries until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	slog.Info("Feed hub started")

	for {
		for {
			task, ok := h.pop()
			if !ok {
				break
			}
			task(ctx)
			if ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			slog.Info("Feed hub stopped", "reason", ctx.Err())
			return nil
		case <-h.wake:
		}
	}
}

// Do runs fn on the dispatch goroutine and waits for it to return.
// Use it to drive subscribers from other goroutines.
func (h *Hub) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	h.push(func(context.Context) {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeMembers implements MembershipSource.
func (h *Hub) SubscribeMembers(groupID string, onSnapshot func([]models.Member), onError func(error)) CancelFunc {
	return h.subscribe(topic{kind: topicMembers, key: groupID}, func(v any) {
		onSnapshot(v.([]models.Member))
	}, onError)
}

// SubscribeExpenses implements ExpenseSource.
func (h *Hub) SubscribeExpenses(groupID string, onSnapshot func([]models.Expense), onError func(error)) CancelFunc {
	return h.subscribe(topic{kind: topicExpenses, key: groupID}, func(v any) {
		onSnapshot(v.([]models.Expense))
	}, onError)
}

// SubscribeUserGroups implements UserGroupsSource.
func (h *Hub) SubscribeUserGroups(userID string, onSnapshot func([]string), onError func(error)) CancelFunc {
	return h.subscribe(topic{kind: topicUserGroups, key: userID}, func(v any) {
		onSnapshot(v.([]string))
	}, onError)
}

// PublishMembers reloads and redelivers the member list of a group.
func (h *Hub) PublishMembers(groupID string) {
	h.publish(topic{kind: topicMembers, key: groupID})
}

// PublishExpenses reloads and redelivers the expense list of a group.
func (h *Hub) PublishExpenses(groupID string) {
	h.publish(topic{kind: topicExpenses, key: groupID})
}

// PublishUserGroups reloads and redelivers the group list of a user.
func (h *Hub) PublishUserGroups(userID string) {
	h.publish(topic{kind: topicUserGroups, key: userID})
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) subscribe(t topic, deliver func(any), onError func(error)) CancelFunc {
	h.mu.Lock()
	h.nextID++
	sub := &subscription{
		id:      h.nextID,
		topic:   t,
		deliver: deliver,
		onError: onError,
		active:  true,
	}
	if h.subs[t] == nil {
		h.subs[t] = make(map[uint64]*subscription)
	}
	h.subs[t][sub.id] = sub
	h.mu.Unlock()

	h.push(func(ctx context.Context) {
		h.refresh(ctx, t, []*subscription{sub})
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			sub.active = false
			delete(h.subs[t], sub.id)
			if len(h.subs[t]) == 0 {
				delete(h.subs, t)
			}
		})
	}
}

func (h *Hub) publish(t topic) {
	h.push(func(ctx context.Context) {
		h.mu.Lock()
		subs := make([]*subscription, 0, len(h.subs[t]))
		for _, sub := range h.subs[t] {
			subs = append(subs, sub)
		}
		h.mu.Unlock()

		if len(subs) == 0 {
			return
		}
		h.refresh(ctx, t, subs)
	})
}

// refresh loads one snapshot of t and hands it to each still-active subscriber.
func (h *Hub) refresh(ctx context.Context, t topic, subs []*subscription) {
	snapshot, err := h.load(ctx, t)
	if err != nil {
		slog.Warn("Feed load failed", "topic", t.kind.String(), "key", t.key, "error", err)
	}

	for _, sub := range subs {
		if !h.isActive(sub) {
			continue
		}
		if err != nil {
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		sub.deliver(snapshot)
	}
}

func (h *Hub) load(ctx context.Context, t topic) (any, error) {
	switch t.kind {
	case topicMembers:
		members, err := h.loader.ListGroupMembers(ctx, t.key)
		if err != nil {
			return nil, fmt.Errorf("load members of %s: %w", t.key, err)
		}
		return members, nil
	case topicExpenses:
		expenses, err := h.loader.ListExpensesByGroup(ctx, t.key)
		if err != nil {
			return nil, fmt.Errorf("load expenses of %s: %w", t.key, err)
		}
		return expenses, nil
	default:
		groups, err := h.loader.ListUserGroups(ctx, t.key)
		if err != nil {
			return nil, fmt.Errorf("load groups of %s: %w", t.key, err)
		}
		return groups, nil
	}
}

func (h *Hub) isActive(sub *subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return sub.active
}

func (h *Hub) push(task func(ctx context.Context)) {
	h.mu.Lock()
	h.queue = append(h.queue, task)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) pop() (func(ctx context.Context), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil, false
	}
	task := h.queue[0]
	h.queue[0] = nil
	h.queue = h.queue[1:]
	return task, true
}
