package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/groupsplit/internal/coordinator"
	"github.com/mmynk/groupsplit/internal/models"
)

// WatchGroup streams the balances, settlements and expenses of a group,
// sending a fresh output every time the group recomputes. The first message
// is the loading placeholder unless a newer output replaced it. A feed
// failure resends the last output with Stale and Error set.
func (s *LedgerService) WatchGroup(ctx context.Context, req *connect.Request[WatchGroupRequest], stream *connect.ServerStream[WatchGroupResponse]) error {
	groupID := req.Msg.GroupID
	if groupID == "" {
		return invalidArgument(errors.New("group_id is required"))
	}
	strategy, err := s.strategy(req.Msg.Strategy)
	if err != nil {
		return toConnectError("WatchGroup", err)
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return toConnectError("WatchGroup", err)
	}

	slog.Info("WatchGroup stream opened", "group_id", groupID, "strategy", strategy.Name())
	defer slog.Info("WatchGroup stream closed", "group_id", groupID)

	updates := make(chan coordinator.GroupOutput, 1)
	var c *coordinator.GroupCoordinator
	c = coordinator.NewGroupCoordinator(s.feeds, s.feeds, strategy,
		func(out coordinator.GroupOutput) { offer(updates, out) },
		coordinator.WithRecorder(s.recorder),
		coordinator.WithErrorHandler(func(err error) {
			slog.Warn("WatchGroup feed error", "group_id", groupID, "error", err)
			// The last output goes out again, marked stale.
			offer(updates, c.Output())
		}),
	)

	return serve(ctx, s.feeds, func() { c.Start(groupID) }, c.Stop, updates, func(out coordinator.GroupOutput) error {
		return stream.Send(&WatchGroupResponse{Group: out})
	})
}

// WatchProfile streams the lifetime totals of a user across all of their
// groups, following joins and leaves.
func (s *LedgerService) WatchProfile(ctx context.Context, req *connect.Request[WatchProfileRequest], stream *connect.ServerStream[WatchProfileResponse]) error {
	uid, err := observerID(ctx, req.Msg.UserID)
	if err != nil {
		return err
	}
	loc, err := s.location(req.Msg.TimeZone)
	if err != nil {
		return err
	}

	slog.Info("WatchProfile stream opened", "user_id", uid, "time_zone", loc.String())
	defer slog.Info("WatchProfile stream closed", "user_id", uid)

	updates := make(chan models.ProfileView, 1)
	var c *coordinator.ProfileCoordinator
	c = coordinator.NewProfileCoordinator(s.feeds, s.feeds,
		func(view models.ProfileView) { offer(updates, view) },
		coordinator.WithRecorder(s.recorder),
		coordinator.WithLocation(loc),
		coordinator.WithErrorHandler(func(err error) {
			slog.Warn("WatchProfile feed error", "user_id", uid, "error", err)
			offer(updates, c.Output())
		}),
	)

	return serve(ctx, s.feeds, func() { c.Start(uid) }, c.Stop, updates, func(view models.ProfileView) error {
		return stream.Send(&WatchProfileResponse{Profile: view})
	})
}

// serve starts a coordinator on the dispatch goroutine and forwards its
// outputs until the client goes away. The coordinator is always stopped on
// the dispatch goroutine, even when starting it was interrupted.
func serve[T any](ctx context.Context, feeds Feeds, start, stop func(), updates chan T, send func(T) error) error {
	defer func() {
		if err := feeds.Do(context.Background(), stop); err != nil {
			slog.Debug("Coordinator stop skipped", "error", err)
		}
	}()

	if err := feeds.Do(ctx, start); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return connect.NewError(connect.CodeUnavailable, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-updates:
			if err := send(v); err != nil {
				return err
			}
		}
	}
}

// offer replaces any unsent value in ch with v. Only the dispatch goroutine
// sends, so the send never blocks.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
