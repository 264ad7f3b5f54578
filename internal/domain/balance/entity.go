package balance

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies ledger entries
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypePurchase TransactionType = "PURCHASE"
)

// Transaction is an append-only ledger entry. Signed amount: positive for
// deposits, negative for purchases. The sum of a user's transactions equals
// the user's balance; the balance itself is maintained incrementally and the
// rows are the audit trail.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      float64         `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
