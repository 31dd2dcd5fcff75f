package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/groupsplit/internal/models"
	"github.com/mmynk/groupsplit/internal/storage"
)

const expenseColumns = `e.id, e.group_id, e.description, e.amount_cents, e.currency,
	e.paid_by, e.category, e.created_at, s.user_id, s.amount_cents`

// CreateExpense persists an expense and its splits in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenses (id, group_id, description, amount_cents, currency, paid_by, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.Description, expense.AmountCents,
		expense.Currency, expense.PaidByUID, expense.Category, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for _, uid := range expense.Participants() {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, user_id, amount_cents) VALUES (?, ?, ?)",
			expense.ID, uid, expense.Splits[uid],
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetExpense retrieves an expense by ID with its splits.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN expense_splits s ON s.expense_id = e.id
		WHERE e.id = ?`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	defer rows.Close()

	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}

	return &expenses[0], nil
}

// ListExpensesByGroup returns every expense of a group, newest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses e
		LEFT JOIN expense_splits s ON s.expense_id = e.id
		WHERE e.group_id = ?
		ORDER BY e.created_at DESC, e.id DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by group: %w", err)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// scanExpenses folds joined expense/split rows into expenses, keeping the
// row order of the first occurrence of each expense.
func scanExpenses(rows *sql.Rows) ([]models.Expense, error) {
	expenses := []models.Expense{}
	index := make(map[string]int)

	for rows.Next() {
		var (
			e         models.Expense
			splitUID  sql.NullString
			splitCent sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Description, &e.AmountCents, &e.Currency,
			&e.PaidByUID, &e.Category, &e.CreatedAt, &splitUID, &splitCent); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}

		i, ok := index[e.ID]
		if !ok {
			e.Splits = make(map[string]int64)
			expenses = append(expenses, e)
			i = len(expenses) - 1
			index[e.ID] = i
		}
		if splitUID.Valid {
			expenses[i].Splits[splitUID.String] = splitCent.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	return expenses, nil
}
