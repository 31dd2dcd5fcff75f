package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = storage.NewExpenseID()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().UnixMilli()
	}
	if expense.Currency == "" {
		expense.Currency = models.DefaultCurrency
	}
	expense.Category = models.NormalizeCategory(expense.Category)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO expenses (id, group_id, description, amount_cents, currency, paid_by, category, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			expense.ID, expense.GroupID, expense.Description, expense.AmountCents,
			expense.Currency, expense.PaidByUID, expense.Category, expense.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}

		batch := &pgx.Batch{}
		for _, uid := range expense.Participants() {
			batch.Queue(
				"INSERT INTO expense_splits (expense_id, user_id, amount_cents) VALUES ($1, $2, $3)",
				expense.ID, uid, expense.Splits[uid],
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert expense splits: %w", err)
		}
		return nil
	})
}

func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	var e models.Expense
	err := s.pool.QueryRow(ctx, `
		SELECT id, group_id, description, amount_cents, currency, paid_by, category, created_at
		FROM expenses WHERE id = $1`,
		expenseID,
	).Scan(&e.ID, &e.GroupID, &e.Description, &e.AmountCents, &e.Currency,
		&e.PaidByUID, &e.Category, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}

	splits, err := s.splitsFor(ctx, "WHERE expense_id = $1", expenseID)
	if err != nil {
		return nil, err
	}
	e.Splits = splits[e.ID]
	if e.Splits == nil {
		e.Splits = map[string]int64{}
	}

	return &e, nil
}

func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]models.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, description, amount_cents, currency, paid_by, category, created_at
		FROM expenses
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses by group: %w", err)
	}
	expenses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Expense, error) {
		var e models.Expense
		err := row.Scan(&e.ID, &e.GroupID, &e.Description, &e.AmountCents, &e.Currency,
			&e.PaidByUID, &e.Category, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan expenses: %w", err)
	}

	splits, err := s.splitsFor(ctx,
		"WHERE expense_id IN (SELECT id FROM expenses WHERE group_id = $1)", groupID)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		expenses[i].Splits = splits[expenses[i].ID]
		if expenses[i].Splits == nil {
			expenses[i].Splits = map[string]int64{}
		}
	}

	return nonNil(expenses), nil
}

// splitsFor loads expense_splits rows matching where, keyed by expense ID.
func (s *Store) splitsFor(ctx context.Context, where string, args ...any) (map[string]map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT expense_id, user_id, amount_cents FROM expense_splits "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list expense splits: %w", err)
	}
	defer rows.Close()

	splits := make(map[string]map[string]int64)
	for rows.Next() {
		var (
			expenseID, uid string
			cents          int64
		)
		if err := rows.Scan(&expenseID, &uid, &cents); err != nil {
			return nil, fmt.Errorf("scan expense split: %w", err)
		}
		if splits[expenseID] == nil {
			splits[expenseID] = make(map[string]int64)
		}
		splits[expenseID][uid] = cents
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expense splits: %w", err)
	}
	return splits, nil
}
