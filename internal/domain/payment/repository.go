package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tutorhub/tutorhub-api/internal/domain/balance"
)

// Repository defines payment data access
type Repository interface {
	Prepare(ctx context.Context, userID uuid.UUID, amount float64, paymentMethod string) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByInvoiceKey(ctx context.Context, invoiceKey string) (*Payment, error)
	AttachInvoice(ctx context.Context, id uuid.UUID, userID uuid.UUID, invoiceKey, invoiceURL string) error
	BackfillInvoiceKey(ctx context.Context, id uuid.UUID, invoiceKey string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error)
	Settle(ctx context.Context, id uuid.UUID, paymentMethod, description string) (*SettleResult, error)
}

// SettleResult reports the outcome of a settlement attempt. Settled is false
// when another path already moved the payment out of PENDING; callers treat
// that as an idempotent success, not an error.
type SettleResult struct {
	Settled    bool
	NewBalance float64
}

type repository struct {
	db       *sqlx.DB
	balances *balance.Repository
}

// NewRepository creates payment repository. The balance repository is the
// ledger owner; settlement delegates the credit to it inside its own tx.
func NewRepository(db *sqlx.DB, balances *balance.Repository) Repository {
	return &repository{db: db, balances: balances}
}

// Prepare cancels any PENDING payment for the same user+amount, then inserts
// a fresh PENDING row. The cancel step keeps repeated top-up submissions from
// leaving dangling intents that could each settle independently.
func (r *repository) Prepare(ctx context.Context, userID uuid.UUID, amount float64, paymentMethod string) (uuid.UUID, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, updated_at = now()
		WHERE user_id = $2 AND amount = $3 AND status = $4
	`, StatusCancelled, userID, amount, StatusPending)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to supersede pending payments: %w", err)
	}

	id := uuid.New()
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, amount, status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, id, userID, amount, StatusPending,
		sql.NullString{String: paymentMethod, Valid: paymentMethod != ""}, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return id, tx.Commit()
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT * FROM payments WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetByInvoiceKey(ctx context.Context, invoiceKey string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT * FROM payments WHERE fawaterak_invoice_id = $1`, invoiceKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// AttachInvoice links a payment to its gateway invoice. fawaterak_invoice_id
// is unique: when a retried invoice-creation call reuses an upstream
// idempotency key, the insert collides and we fall back to refreshing the URL
// on the row that already owns the key (same user only).
func (r *repository) AttachInvoice(ctx context.Context, id uuid.UUID, userID uuid.UUID, invoiceKey, invoiceURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET fawaterak_invoice_id = $2, fawaterak_invoice_url = $3, updated_at = now()
		WHERE id = $1
	`, id, sql.NullString{String: invoiceKey, Valid: invoiceKey != ""}, invoiceURL)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return fmt.Errorf("failed to attach invoice: %w", err)
	}

	existing, lookupErr := r.GetByInvoiceKey(ctx, invoiceKey)
	if lookupErr != nil {
		return lookupErr
	}
	if existing == nil || existing.UserID != userID {
		return fmt.Errorf("invoice key %s already attached elsewhere: %w", invoiceKey, err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE payments SET fawaterak_invoice_url = $2, updated_at = now() WHERE id = $1
	`, existing.ID, invoiceURL)
	return err
}

// BackfillInvoiceKey sets the invoice key on a payment resolved through the
// echoed payload, so later webhook retries resolve by key directly.
func (r *repository) BackfillInvoiceKey(ctx context.Context, id uuid.UUID, invoiceKey string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET fawaterak_invoice_id = $2, updated_at = now()
		WHERE id = $1 AND fawaterak_invoice_id IS NULL
	`, id, invoiceKey)
	return err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, error) {
	var payments []*Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT * FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return payments, err
}

// Settle is the single settlement unit both reconciliation paths call.
// The PENDING->PAID transition is a conditional update; its affected-row
// count decides whether the credit and ledger append run. Everything commits
// in one transaction, so a crash can never leave a PAID row without a credit
// or a credit without a PAID row. Whichever of the webhook and confirm paths
// loses the race sees zero affected rows and returns the no-op result.
func (r *repository) Settle(ctx context.Context, id uuid.UUID, paymentMethod, description string) (*SettleResult, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    payment_method = COALESCE(NULLIF($3, ''), payment_method),
		    paid_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, StatusPaid, paymentMethod, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Already settled (or cancelled) by the other path.
		var p Payment
		if err := tx.GetContext(ctx, &p, `SELECT * FROM payments WHERE id = $1`, id); err != nil {
			return nil, err
		}
		currentBalance, err := currentBalanceTx(ctx, tx, p.UserID)
		if err != nil {
			return nil, err
		}
		return &SettleResult{Settled: false, NewBalance: currentBalance}, tx.Commit()
	}

	var p Payment
	if err := tx.GetContext(ctx, &p, `SELECT * FROM payments WHERE id = $1`, id); err != nil {
		return nil, err
	}

	newBalance, err := r.balances.CreditTx(ctx, tx, p.UserID, p.Amount, balance.TransactionTypeDeposit, description)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}

	return &SettleResult{Settled: true, NewBalance: newBalance}, tx.Commit()
}

func currentBalanceTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (float64, error) {
	var b float64
	err := tx.GetContext(ctx, &b, `SELECT balance FROM users WHERE id = $1`, userID)
	return b, err
}
