package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CustomerProgress is the list-view projection written onto the customer record.
type CustomerProgress struct {
	CardProductID int
	TotalBoxes    int
	BoxesFilled   int
	AmountPaid    decimal.Decimal
	Status        string
}

// progressOf projects a card onto its customer.
func progressOf(c *CustomerCard) CustomerProgress {
	return CustomerProgress{
		CardProductID: c.CardProductID,
		TotalBoxes:    c.TotalBoxes,
		BoxesFilled:   c.BoxesChecked,
		AmountPaid:    c.AmountPaid,
		Status:        customerStatusFor(c.Status),
	}
}

// CustomerDirectory reads customers and writes the progress projection. Both calls run
// inside the caller's transaction so a failed sync aborts the ledger write.
type CustomerDirectory interface {
	Get(ctx context.Context, q Querier, customerID int) (*Customer, error)
	LockCustomer(ctx context.Context, tx pgx.Tx, customerID int) (*Customer, error)
	SyncProgress(ctx context.Context, tx pgx.Tx, customerID int, p CustomerProgress) error
}

type pgCustomerDirectory struct{}

// NewCustomerDirectory returns a directory backed by the customers table.
func NewCustomerDirectory() CustomerDirectory {
	return pgCustomerDirectory{}
}

const customerSelect = `
	SELECT c.id, c.branch_id, b.company_id, c.name, c.card_product_id,
	       c.total_boxes, c.boxes_filled, c.amount_paid, c.status, c.created_at
	FROM customers c
	JOIN branches b ON b.id = c.branch_id
	WHERE c.id = $1
`

func (pgCustomerDirectory) Get(ctx context.Context, q Querier, customerID int) (*Customer, error) {
	return scanCustomer(q.QueryRow(ctx, customerSelect, customerID), customerID)
}

func (pgCustomerDirectory) LockCustomer(ctx context.Context, tx pgx.Tx, customerID int) (*Customer, error) {
	return scanCustomer(tx.QueryRow(ctx, customerSelect+" FOR UPDATE OF c", customerID), customerID)
}

func scanCustomer(row pgx.Row, customerID int) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.BranchID, &c.CompanyID, &c.Name, &c.CardProductID,
		&c.TotalBoxes, &c.BoxesFilled, &c.AmountPaid, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("customer %d not found", customerID)
		}
		return nil, fmt.Errorf("failed to load customer %d: %w", customerID, err)
	}
	return &c, nil
}

func (pgCustomerDirectory) SyncProgress(ctx context.Context, tx pgx.Tx, customerID int, p CustomerProgress) error {
	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET card_product_id = $2, total_boxes = $3, boxes_filled = $4,
		    amount_paid = $5, status = $6, updated_at = now()
		WHERE id = $1
	`, customerID, p.CardProductID, p.TotalBoxes, p.BoxesFilled, p.AmountPaid, p.Status)
	if err != nil {
		return fmt.Errorf("failed to sync customer %d progress: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("customer %d not found", customerID)
	}
	return nil
}
