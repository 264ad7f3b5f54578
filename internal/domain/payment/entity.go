package payment

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status represents payment status. Transitions are monotonic:
// pending -> paid and pending -> cancelled are the only legal moves,
// and both targets are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Payment represents a balance top-up intent. A row is created by Prepare,
// linked to a Fawaterak invoice by AttachInvoice, and settled exactly once by
// whichever of the webhook and the client-side confirm wins the race.
// Rows are never deleted.
type Payment struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	UserID              uuid.UUID      `db:"user_id" json:"user_id"`
	Amount              float64        `db:"amount" json:"amount"`
	Status              Status         `db:"status" json:"status"`
	PaymentMethod       sql.NullString `db:"payment_method" json:"payment_method,omitempty"`
	FawaterakInvoiceID  sql.NullString `db:"fawaterak_invoice_id" json:"fawaterak_invoice_id,omitempty"`
	FawaterakInvoiceURL sql.NullString `db:"fawaterak_invoice_url" json:"fawaterak_invoice_url,omitempty"`
	PaidAt              sql.NullTime   `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}
