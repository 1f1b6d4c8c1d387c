package core

import (
	"context"
	"fmt"
	"time"

	"boxcard-ledger/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Reconciler rebuilds a card for customers whose progress predates customer_cards and
// lives only in the customer's own total_boxes, boxes_filled and amount_paid fields.
// It runs at most once per customer: any existing card row, active or not, turns it
// into a no-op.
type Reconciler struct {
	pool      *pgxpool.Pool
	catalog   CardCatalog
	customers CustomerDirectory
	log       *logger.Logger
	loc       *time.Location
}

func NewReconciler(pool *pgxpool.Pool, catalog CardCatalog, customers CustomerDirectory, log *logger.Logger, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{pool: pool, catalog: catalog, customers: customers, log: log, loc: loc}
}

// Reconcile rebuilds the customer's card in its own transaction. It returns nil when
// there was nothing to rebuild.
func (r *Reconciler) Reconcile(ctx context.Context, customerID int) (*CustomerCard, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := r.ReconcileTx(ctx, tx, customerID)
	if err != nil || card == nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return card, nil
}

// ReconcileTx is Reconcile inside the caller's transaction.
func (r *Reconciler) ReconcileTx(ctx context.Context, tx pgx.Tx, customerID int) (*CustomerCard, error) {
	customer, err := r.customers.LockCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	// Re-checked under the customer lock so two concurrent lookups rebuild once.
	exists, err := hasAnyCard(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if exists || customer.CardProductID == nil || customer.TotalBoxes <= 0 {
		return nil, nil
	}

	product, err := r.catalog.Lookup(ctx, tx, *customer.CardProductID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			r.log.Warn("Legacy progress references an unavailable card product",
				"customer_id", customer.ID, "card_product_id", *customer.CardProductID)
			return nil, nil
		}
		return nil, err
	}
	if !product.TotalAmount.IsPositive() {
		return nil, invariantf("card product %d has non-positive total amount", product.ID)
	}

	filled := min(max(customer.BoxesFilled, 0), customer.TotalBoxes)
	paid := decimal.Min(decimal.Max(customer.AmountPaid, decimal.Zero), product.TotalAmount)
	created := civilDate(customer.CreatedAt.In(r.loc))

	card := &CustomerCard{
		CustomerID:    customer.ID,
		CardProductID: product.ID,
		TotalBoxes:    customer.TotalBoxes,
		TotalAmount:   product.TotalAmount,
		BoxPrice:      product.TotalAmount.DivRound(decimal.NewFromInt(int64(customer.TotalBoxes)), 4),
		AmountPaid:    decimal.Zero,
		Status:        CardStatusActive,
		AssignedDate:  created,
	}
	card.applyDelta(filled, paid, customer.CreatedAt)

	if err := insertCard(ctx, tx, card, filled, created); err != nil {
		return nil, err
	}
	if err := r.customers.SyncProgress(ctx, tx, customer.ID, progressOf(card)); err != nil {
		return nil, err
	}

	r.log.Info("Reconciled legacy card",
		"customer_id", customer.ID,
		"card_id", card.ID,
		"boxes_checked", card.BoxesChecked,
		"amount_paid", card.AmountPaid.StringFixed(2),
		"status", card.Status,
	)
	return card, nil
}
