package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so collaborators can run
// inside the caller's transaction or standalone.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CardStatus string

const (
	CardStatusActive    CardStatus = "active"
	CardStatusCompleted CardStatus = "completed"
)

// Customer-facing status written by the summary projection.
const (
	CustomerStatusNone       = "none"
	CustomerStatusInProgress = "in_progress"
	CustomerStatusCompleted  = "completed"
)

const defaultPaymentMethod = "cash"

// CardProduct is a catalog definition of a box card.
type CardProduct struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	TotalBoxes  int             `json:"total_boxes"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	IsActive    bool            `json:"is_active"`
}

// Customer is the subset of the customer record the ledger reads and projects onto.
// TotalBoxes, BoxesFilled and AmountPaid double as legacy progress fields for
// customers that predate customer_cards.
type Customer struct {
	ID            int             `json:"id"`
	BranchID      int             `json:"branch_id"`
	CompanyID     int             `json:"company_id"`
	Name          string          `json:"name"`
	CardProductID *int            `json:"card_product_id,omitempty"`
	TotalBoxes    int             `json:"total_boxes"`
	BoxesFilled   int             `json:"boxes_filled"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CustomerCard is one customer's live instance of a card product.
// BoxPrice and TotalAmount are frozen at assignment.
type CustomerCard struct {
	ID              int             `json:"id"`
	CustomerID      int             `json:"customer_id"`
	CardProductID   int             `json:"card_product_id"`
	TotalBoxes      int             `json:"total_boxes"`
	BoxPrice        decimal.Decimal `json:"box_price"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	BoxesChecked    int             `json:"boxes_checked"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	Status          CardStatus      `json:"status"`
	AssignedDate    time.Time       `json:"assigned_date"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BoxesRemaining is the number of unchecked slots.
func (c *CustomerCard) BoxesRemaining() int {
	if r := c.TotalBoxes - c.BoxesChecked; r > 0 {
		return r
	}
	return 0
}

// applyDelta shifts the progress counters and recomputes the derived fields.
// Counters never go below zero; amount_remaining is always total - paid.
func (c *CustomerCard) applyDelta(boxes int, amount decimal.Decimal, now time.Time) {
	c.BoxesChecked += boxes
	if c.BoxesChecked < 0 {
		c.BoxesChecked = 0
	}
	c.AmountPaid = c.AmountPaid.Add(amount)
	if c.AmountPaid.IsNegative() {
		c.AmountPaid = decimal.Zero
	}
	c.AmountRemaining = c.TotalAmount.Sub(c.AmountPaid)
	if c.AmountRemaining.IsNegative() {
		c.AmountRemaining = decimal.Zero
	}

	next := statusFor(c.BoxesChecked, c.TotalBoxes)
	switch {
	case next == CardStatusCompleted && c.Status != CardStatusCompleted:
		t := now
		c.CompletedAt = &t
	case next == CardStatusActive:
		c.CompletedAt = nil
	}
	c.Status = next
	c.UpdatedAt = now
}

func statusFor(boxesChecked, totalBoxes int) CardStatus {
	if boxesChecked >= totalBoxes {
		return CardStatusCompleted
	}
	return CardStatusActive
}

// customerStatusFor maps card status onto the customer list-view status.
func customerStatusFor(s CardStatus) string {
	if s == CardStatusCompleted {
		return CustomerStatusCompleted
	}
	return CustomerStatusInProgress
}

// BoxSlot is one of the fixed positions on a card.
type BoxSlot struct {
	ID             int        `json:"id"`
	CustomerCardID int        `json:"customer_card_id"`
	BoxNumber      int        `json:"box_number"`
	IsChecked      bool       `json:"is_checked"`
	CheckedDate    *time.Time `json:"checked_date,omitempty"`
	PaymentID      *int       `json:"payment_id,omitempty"`
}

// Payment is one ledger entry. Amount and box count are recorded independently:
// the amount is what the collector received, not boxes * box_price.
type Payment struct {
	ID              int                 `json:"id"`
	CustomerCardID  int                 `json:"customer_card_id"`
	WorkerID        int                 `json:"worker_id"`
	BranchID        int                 `json:"branch_id"`  // customer's branch when recorded
	CompanyID       int                 `json:"company_id"` // customer's company when recorded
	ReceiptNumber   string              `json:"receipt_number"`
	AmountPaid      decimal.Decimal     `json:"amount_paid"`
	BoxesChecked    int                 `json:"boxes_checked"`
	PaymentDate     time.Time           `json:"payment_date"`
	PaymentMethod   string              `json:"payment_method"`
	Notes           string              `json:"notes"`
	AdjustedFrom    decimal.NullDecimal `json:"adjusted_from"`
	AdjustedBy      *int                `json:"adjusted_by,omitempty"`
	AdjustedAt      *time.Time          `json:"adjusted_at,omitempty"`
	AdjustmentNotes string              `json:"adjustment_notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// AssignCardInput binds a catalog card to a customer.
type AssignCardInput struct {
	CustomerID    int
	CardProductID int
	AssignedDate  *time.Time // nil means today in the business time zone
}

// ApplyPaymentInput carries exactly one of AmountPaid or BoxesToCheck.
type ApplyPaymentInput struct {
	CardID       int
	AmountPaid   *decimal.Decimal
	BoxesToCheck *int
	Method       string
	Notes        string
	ActorID      int
	PaymentDate  *time.Time // nil means today in the business time zone
}

// AdjustPaymentInput corrects the amount of an existing payment in place.
type AdjustPaymentInput struct {
	PaymentID int
	NewAmount decimal.Decimal
	Notes     string
	ActorID   int
}

// civilDate truncates t to its calendar date in t's location, expressed as UTC midnight,
// which is how pgx round-trips DATE columns.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
