// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface using a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Config tunes the connection pool.
type Config struct {
	DSN          string
	MaxConns     int32
	TimeZone     string
	ConnTimeout  time.Duration
	HealthPeriod time.Duration
}

// New connects to PostgreSQL and applies pending migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.HealthCheckPeriod = 15 * time.Second
	if cfg.HealthPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthPeriod
	}
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if cfg.ConnTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnTimeout
	}
	if cfg.TimeZone != "" {
		poolCfg.ConnConfig.RuntimeParams["timezone"] = cfg.TimeZone
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := runMigrations(poolCfg.ConnConfig.Copy()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = storage.NewGroupID()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().UnixMilli()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)",
			group.ID, group.Name, group.CreatedByUID, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		for _, uid := range group.Members {
			_, err = tx.Exec(ctx,
				`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, $3)
				 ON CONFLICT DO NOTHING`,
				group.ID, uid, group.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert group member: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, created_by, created_at FROM groups WHERE id = $1",
		groupID,
	).Scan(&group.ID, &group.Name, &group.CreatedByUID, &group.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("get group members: %w", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan group members: %w", err)
	}
	group.Members = members

	return group, nil
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT gm.user_id, COALESCE(u.display_name, ''), COALESCE(u.email, '')
		FROM group_members gm
		LEFT JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY gm.user_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Member, error) {
		var user models.User
		err := row.Scan(&user.ID, &user.DisplayName, &user.Email)
		return models.Member{ID: user.ID, Name: user.Label()}, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan group members: %w", err)
	}
	return nonNil(members), nil
}

func (s *Store) AddMembers(ctx context.Context, groupID string, memberIDs []string) ([]string, error) {
	added := []string{}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var exists int
		err := tx.QueryRow(ctx, "SELECT 1 FROM groups WHERE id = $1", groupID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check group existence: %w", err)
		}

		now := time.Now().UnixMilli()
		for _, uid := range memberIDs {
			uid = strings.TrimSpace(uid)
			if uid == "" {
				continue
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, $3)
				 ON CONFLICT DO NOTHING`,
				groupID, uid, now,
			)
			if err != nil {
				return fmt.Errorf("insert group member: %w", err)
			}
			if tag.RowsAffected() > 0 {
				added = append(added, uid)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (s *Store) ListUserGroups(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan user groups: %w", err)
	}
	return nonNil(groups), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
