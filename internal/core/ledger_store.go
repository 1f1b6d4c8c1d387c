package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxcard-ledger/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Row-level persistence for cards, slots and payments. Everything here runs on the
// Querier or transaction it is handed; locking and ordering belong to the callers.

const cardColumns = `
	id, customer_id, card_product_id, total_boxes, box_price, total_amount,
	boxes_checked, amount_paid, amount_remaining, status, assigned_date,
	completed_at, created_at, updated_at`

func scanCard(row pgx.Row) (*CustomerCard, error) {
	var c CustomerCard
	err := row.Scan(
		&c.ID, &c.CustomerID, &c.CardProductID, &c.TotalBoxes, &c.BoxPrice, &c.TotalAmount,
		&c.BoxesChecked, &c.AmountPaid, &c.AmountRemaining, &c.Status, &c.AssignedDate,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getCard(ctx context.Context, q Querier, cardID int) (*CustomerCard, error) {
	c, err := scanCard(q.QueryRow(ctx, "SELECT "+cardColumns+" FROM customer_cards WHERE id = $1", cardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("card %d not found", cardID)
		}
		return nil, fmt.Errorf("failed to load card %d: %w", cardID, err)
	}
	return c, nil
}

// lockCard reads the card row FOR UPDATE. Every mutation of a card's counters or
// slots starts here.
func lockCard(ctx context.Context, tx pgx.Tx, cardID int) (*CustomerCard, error) {
	c, err := scanCard(tx.QueryRow(ctx, "SELECT "+cardColumns+" FROM customer_cards WHERE id = $1 FOR UPDATE", cardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("card %d not found", cardID)
		}
		return nil, fmt.Errorf("failed to lock card %d: %w", cardID, err)
	}
	return c, nil
}

// activeCard returns the customer's active card, or nil when there is none.
func activeCard(ctx context.Context, q Querier, customerID int) (*CustomerCard, error) {
	c, err := scanCard(q.QueryRow(ctx,
		"SELECT "+cardColumns+" FROM customer_cards WHERE customer_id = $1 AND status = 'active'",
		customerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active card for customer %d: %w", customerID, err)
	}
	return c, nil
}

func hasAnyCard(ctx context.Context, q Querier, customerID int) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM customer_cards WHERE customer_id = $1)", customerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cards for customer %d: %w", customerID, err)
	}
	return exists, nil
}

// insertCard creates the card row and its slots. checked marks the first n slots
// as checked on checkedDate without an owning payment.
func insertCard(ctx context.Context, tx pgx.Tx, c *CustomerCard, checked int, checkedDate time.Time) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO customer_cards (
			customer_id, card_product_id, total_boxes, box_price, total_amount,
			boxes_checked, amount_paid, amount_remaining, status, assigned_date, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		c.CustomerID, c.CardProductID, c.TotalBoxes, c.BoxPrice, c.TotalAmount,
		c.BoxesChecked, c.AmountPaid, c.AmountRemaining, string(c.Status), c.AssignedDate, c.CompletedAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return cardWriteError(c, "insert card", err)
	}

	rows := make([][]any, 0, c.TotalBoxes)
	for n := 1; n <= c.TotalBoxes; n++ {
		if n <= checked {
			rows = append(rows, []any{c.ID, n, true, checkedDate})
		} else {
			rows = append(rows, []any{c.ID, n, false, nil})
		}
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"box_slots"},
		[]string{"customer_card_id", "box_number", "is_checked", "checked_date"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to create box slots for card %d: %w", c.ID, err)
	}
	if int(copied) != c.TotalBoxes {
		return fmt.Errorf("created %d box slots for card %d, expected %d", copied, c.ID, c.TotalBoxes)
	}
	return nil
}

// saveCardProgress writes the counters and status after applyDelta.
func saveCardProgress(ctx context.Context, tx pgx.Tx, c *CustomerCard) error {
	_, err := tx.Exec(ctx, `
		UPDATE customer_cards
		SET boxes_checked = $2, amount_paid = $3, amount_remaining = $4,
		    status = $5, completed_at = $6, updated_at = $7
		WHERE id = $1
	`, c.ID, c.BoxesChecked, c.AmountPaid, c.AmountRemaining, string(c.Status), c.CompletedAt, c.UpdatedAt)
	if err != nil {
		return cardWriteError(c, fmt.Sprintf("update card %d", c.ID), err)
	}
	return nil
}

// cardWriteError maps constraint failures on customer_cards. The partial unique
// index allows one active card per customer; the CHECKs bound the counters.
func cardWriteError(c *CustomerCard, op string, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return conflictf("customer %d already has an active card", c.CustomerID)
	case db.IsCheckViolation(err):
		return invariantf("card counters out of range (boxes %d/%d, remaining %s): %v",
			c.BoxesChecked, c.TotalBoxes, c.AmountRemaining.StringFixed(2), err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// ── Slots ─────────────────────────────────────────────────────────────────────

func loadSlots(ctx context.Context, q Querier, cardID int) ([]BoxSlot, error) {
	rows, err := q.Query(ctx, `
		SELECT id, customer_card_id, box_number, is_checked, checked_date, payment_id
		FROM box_slots
		WHERE customer_card_id = $1
		ORDER BY box_number ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query box slots for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var slots []BoxSlot
	for rows.Next() {
		var s BoxSlot
		if err := rows.Scan(&s.ID, &s.CustomerCardID, &s.BoxNumber, &s.IsChecked, &s.CheckedDate, &s.PaymentID); err != nil {
			return nil, fmt.Errorf("failed to scan box slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read box slots for card %d: %w", cardID, err)
	}
	return slots, nil
}

// checkSlots marks slots checked for a payment. The is_checked guard turns any slot
// already taken into an error instead of a silent double claim.
func checkSlots(ctx context.Context, tx pgx.Tx, slots []BoxSlot, date time.Time, paymentID int) error {
	if len(slots) == 0 {
		return nil
	}
	tag, err := tx.Exec(ctx, `
		UPDATE box_slots
		SET is_checked = true, checked_date = $2, payment_id = $3
		WHERE id = ANY($1) AND is_checked = false
	`, slotIDs(slots), date, paymentID)
	if err != nil {
		return fmt.Errorf("failed to check box slots: %w", err)
	}
	if int(tag.RowsAffected()) != len(slots) {
		return conflictf("box slots changed concurrently: checked %d of %d", tag.RowsAffected(), len(slots))
	}
	return nil
}

func uncheckSlots(ctx context.Context, tx pgx.Tx, slots []BoxSlot) error {
	if len(slots) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE box_slots
		SET is_checked = false, checked_date = NULL, payment_id = NULL
		WHERE id = ANY($1)
	`, slotIDs(slots)); err != nil {
		return fmt.Errorf("failed to uncheck box slots: %w", err)
	}
	return nil
}

// uncheckPaymentSlots releases every slot the payment owns and reports how many.
func uncheckPaymentSlots(ctx context.Context, tx pgx.Tx, paymentID int) (int, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE box_slots
		SET is_checked = false, checked_date = NULL, payment_id = NULL
		WHERE payment_id = $1
	`, paymentID)
	if err != nil {
		return 0, fmt.Errorf("failed to release box slots of payment %d: %w", paymentID, err)
	}
	return int(tag.RowsAffected()), nil
}

// ── Payments ──────────────────────────────────────────────────────────────────

const paymentColumns = `
	id, customer_card_id, worker_id, branch_id, company_id, receipt_number, amount_paid, boxes_checked,
	payment_date, payment_method, notes, adjusted_from, adjusted_by, adjusted_at,
	adjustment_notes, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.CustomerCardID, &p.WorkerID, &p.BranchID, &p.CompanyID, &p.ReceiptNumber, &p.AmountPaid, &p.BoxesChecked,
		&p.PaymentDate, &p.PaymentMethod, &p.Notes, &p.AdjustedFrom, &p.AdjustedBy, &p.AdjustedAt,
		&p.AdjustmentNotes, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// paymentCardID reads the owning card without locking so callers can lock the card
// before the payment.
func paymentCardID(ctx context.Context, q Querier, paymentID int) (int, error) {
	var cardID int
	err := q.QueryRow(ctx, "SELECT customer_card_id FROM payments WHERE id = $1", paymentID).Scan(&cardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFoundf("payment %d not found", paymentID)
		}
		return 0, fmt.Errorf("failed to load payment %d: %w", paymentID, err)
	}
	return cardID, nil
}

func lockPayment(ctx context.Context, tx pgx.Tx, paymentID int) (*Payment, error) {
	p, err := scanPayment(tx.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = $1 FOR UPDATE", paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("payment %d not found", paymentID)
		}
		return nil, fmt.Errorf("failed to lock payment %d: %w", paymentID, err)
	}
	return p, nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *Payment) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (
			customer_card_id, worker_id, branch_id, company_id, receipt_number, amount_paid,
			boxes_checked, payment_date, payment_method, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		p.CustomerCardID, p.WorkerID, p.BranchID, p.CompanyID, p.ReceiptNumber, p.AmountPaid, p.BoxesChecked,
		p.PaymentDate, p.PaymentMethod, p.Notes,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return notFoundf("worker %d not found", p.WorkerID)
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func saveAdjustedPayment(ctx context.Context, tx pgx.Tx, p *Payment) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET amount_paid = $2, boxes_checked = $3, adjusted_from = $4,
		    adjusted_by = $5, adjusted_at = $6, adjustment_notes = $7
		WHERE id = $1
	`, p.ID, p.AmountPaid, p.BoxesChecked, p.AdjustedFrom, p.AdjustedBy, p.AdjustedAt, p.AdjustmentNotes)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return notFoundf("worker %d not found", *p.AdjustedBy)
		}
		return fmt.Errorf("failed to update payment %d: %w", p.ID, err)
	}
	return nil
}

func deletePayment(ctx context.Context, tx pgx.Tx, paymentID int) error {
	if _, err := tx.Exec(ctx, "DELETE FROM payments WHERE id = $1", paymentID); err != nil {
		return fmt.Errorf("failed to delete payment %d: %w", paymentID, err)
	}
	return nil
}

func listPayments(ctx context.Context, q Querier, cardID int) ([]Payment, error) {
	rows, err := q.Query(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE customer_card_id = $1 ORDER BY payment_date DESC, id DESC",
		cardID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payments for card %d: %w", cardID, err)
	}
	return out, nil
}

func sumPaymentsOn(ctx context.Context, q Querier, cardID int, date time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_paid), 0)
		FROM payments
		WHERE customer_card_id = $1 AND payment_date = $2
	`, cardID, civilDate(date)).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments for card %d: %w", cardID, err)
	}
	return total, nil
}
