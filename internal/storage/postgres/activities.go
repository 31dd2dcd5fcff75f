package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

func (s *Store) CreateActivity(ctx context.Context, activity *models.ActivityItem) error {
	if activity.ID == "" {
		activity.ID = storage.NewActivityID()
	}
	if activity.CreatedAt == 0 {
		activity.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (id, group_id, type, actor_uid, target_uid, expense_id, description, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		activity.ID, activity.GroupID, activity.Type, activity.ActorUID, activity.TargetUID,
		activity.ExpenseID, activity.Description, activity.AmountCents, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *Store) ListActivitiesByGroup(ctx context.Context, groupID string, limit int) ([]models.ActivityItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, type, actor_uid, target_uid, expense_id, description, amount_cents, created_at
		FROM activities
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	activities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ActivityItem, error) {
		var a models.ActivityItem
		err := row.Scan(&a.ID, &a.GroupID, &a.Type, &a.ActorUID, &a.TargetUID,
			&a.ExpenseID, &a.Description, &a.AmountCents, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan activities: %w", err)
	}
	return nonNil(activities), nil
}
