package balance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository is the only code path that changes users.balance. The increment
// happens in SQL so concurrent credits never lose an update, and every
// increment writes exactly one ledger row in the same transaction.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var balance float64
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return balance, err
}

// Credit applies a deposit in its own transaction and returns the new balance.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount float64, txType TransactionType, description string) (float64, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := r.CreditTx(ctx, tx, userID, amount, txType, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit()
}

// CreditTx applies a signed balance mutation inside a caller-owned
// transaction. The payment settlement unit uses this so "mark PAID",
// "increment balance" and "append ledger row" commit or roll back together.
func (r *Repository) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount float64, txType TransactionType, description string) (float64, error) {
	var newBalance float64
	err := tx.GetContext(ctx, &newBalance, `
		UPDATE users
		SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balance_transactions (id, user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, amount, string(txType), description, time.Now())
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	var transactions []*Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM balance_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return transactions, err
}
