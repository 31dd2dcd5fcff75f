package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

// CreateActivity appends a timeline entry for a group.
func (s *SQLiteStore) CreateActivity(ctx context.Context, activity *models.ActivityItem) error {
	if activity.ID == "" {
		activity.ID = storage.NewActivityID()
	}
	if activity.CreatedAt == 0 {
		activity.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, group_id, type, actor_uid, target_uid, expense_id, description, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activity.ID, activity.GroupID, activity.Type, activity.ActorUID, activity.TargetUID,
		activity.ExpenseID, activity.Description, activity.AmountCents, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

// ListActivitiesByGroup returns up to limit timeline entries, newest first.
func (s *SQLiteStore) ListActivitiesByGroup(ctx context.Context, groupID string, limit int) ([]models.ActivityItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, type, actor_uid, target_uid, expense_id, description, amount_cents, created_at
		FROM activities
		WHERE group_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []models.ActivityItem{}
	for rows.Next() {
		var a models.ActivityItem
		if err := rows.Scan(&a.ID, &a.GroupID, &a.Type, &a.ActorUID, &a.TargetUID,
			&a.ExpenseID, &a.Description, &a.AmountCents, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}

	return activities, nil
}
