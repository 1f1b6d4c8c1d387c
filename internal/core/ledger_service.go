package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boxcard-ledger/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerService is the box-card ledger. Every mutation runs in one transaction that
// locks the card row first, then touches slots, the payment, the rollups and the
// customer projection. Any failure rolls all of it back; nothing is retried.
type LedgerService interface {
	// AssignCard binds a catalog card to a customer and creates its unchecked slots.
	AssignCard(ctx context.Context, in AssignCardInput) (*CustomerCard, error)
	// GetActiveCard returns the customer's active card, rebuilding it from legacy
	// progress fields first when the customer has never had a card row.
	GetActiveCard(ctx context.Context, customerID int) (*CustomerCard, error)
	GetCard(ctx context.Context, cardID int) (*CustomerCard, error)

	ApplyPayment(ctx context.Context, in ApplyPaymentInput) (*Payment, error)
	ReversePayment(ctx context.Context, paymentID, actorID int) (*CustomerCard, error)
	AdjustPayment(ctx context.Context, in AdjustPaymentInput) (*Payment, error)

	// GetBoxStates returns the card's slots ordered by box number.
	GetBoxStates(ctx context.Context, cardID int) ([]BoxSlot, error)
	// GetPaymentHistory returns live payments newest first.
	GetPaymentHistory(ctx context.Context, cardID int) ([]Payment, error)
	// GetDailySales sums the card's live payments dated on the given day.
	GetDailySales(ctx context.Context, cardID int, date time.Time) (decimal.Decimal, error)

	// VerifyCard checks the card's counters against its slots and payments.
	VerifyCard(ctx context.Context, cardID int) ([]InvariantBreach, error)
}

type ledgerService struct {
	pool       *pgxpool.Pool
	catalog    CardCatalog
	customers  CustomerDirectory
	rollups    RollupAggregator
	reconciler *Reconciler
	log        *logger.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewLedgerService wires the ledger. loc is the business time zone used to decide
// "today" for assignment and payment dates.
func NewLedgerService(
	pool *pgxpool.Pool,
	catalog CardCatalog,
	customers CustomerDirectory,
	rollups RollupAggregator,
	log *logger.Logger,
	loc *time.Location,
) LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	log = log.With("component", "ledger")
	return &ledgerService{
		pool:       pool,
		catalog:    catalog,
		customers:  customers,
		rollups:    rollups,
		reconciler: NewReconciler(pool, catalog, customers, log, loc),
		log:        log,
		loc:        loc,
		now:        time.Now,
	}
}

func (s *ledgerService) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *ledgerService) dateOrToday(d *time.Time) time.Time {
	if d != nil {
		return civilDate(*d)
	}
	return civilDate(s.clock())
}

// ── Assignment ────────────────────────────────────────────────────────────────

func (s *ledgerService) AssignCard(ctx context.Context, in AssignCardInput) (*CustomerCard, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	customer, err := s.customers.LockCustomer(ctx, tx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	// Legacy progress is rebuilt before it would be overwritten by the new card's sync.
	if _, err := s.reconciler.ReconcileTx(ctx, tx, customer.ID); err != nil {
		return nil, err
	}
	existing, err := activeCard(ctx, tx, customer.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictf("customer %d already has active card %d", customer.ID, existing.ID)
	}

	product, err := s.catalog.Lookup(ctx, tx, in.CardProductID)
	if err != nil {
		return nil, err
	}
	if product.TotalBoxes <= 0 || !product.TotalAmount.IsPositive() {
		return nil, invariantf("card product %d has non-positive box price", product.ID)
	}

	card := &CustomerCard{
		CustomerID:      customer.ID,
		CardProductID:   product.ID,
		TotalBoxes:      product.TotalBoxes,
		TotalAmount:     product.TotalAmount,
		BoxPrice:        product.TotalAmount.DivRound(decimal.NewFromInt(int64(product.TotalBoxes)), 4),
		AmountPaid:      decimal.Zero,
		AmountRemaining: product.TotalAmount,
		Status:          CardStatusActive,
		AssignedDate:    s.dateOrToday(in.AssignedDate),
	}
	if err := insertCard(ctx, tx, card, 0, time.Time{}); err != nil {
		return nil, err
	}
	if err := s.customers.SyncProgress(ctx, tx, customer.ID, progressOf(card)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("Card assigned",
		"customer_id", customer.ID,
		"card_id", card.ID,
		"card_product_id", product.ID,
		"total_boxes", card.TotalBoxes,
		"box_price", card.BoxPrice.String(),
	)
	return card, nil
}

func (s *ledgerService) GetActiveCard(ctx context.Context, customerID int) (*CustomerCard, error) {
	card, err := activeCard(ctx, s.pool, customerID)
	if err != nil {
		return nil, err
	}
	if card != nil {
		return card, nil
	}

	if _, err := s.customers.Get(ctx, s.pool, customerID); err != nil {
		return nil, err
	}
	card, err = s.reconciler.Reconcile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if card == nil || card.Status != CardStatusActive {
		return nil, notFoundf("customer %d has no active card", customerID)
	}
	return card, nil
}

func (s *ledgerService) GetCard(ctx context.Context, cardID int) (*CustomerCard, error) {
	return getCard(ctx, s.pool, cardID)
}

// ── Apply ─────────────────────────────────────────────────────────────────────

func (s *ledgerService) ApplyPayment(ctx context.Context, in ApplyPaymentInput) (*Payment, error) {
	if in.ActorID <= 0 {
		return nil, validationf("actor is required")
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = defaultPaymentMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := lockCard(ctx, tx, in.CardID)
	if err != nil {
		return nil, err
	}
	if card.Status != CardStatusActive {
		return nil, conflictf("card %d is %s", card.ID, card.Status)
	}
	res, err := ResolveBoxCount(card, in.AmountPaid, in.BoxesToCheck)
	if err != nil {
		return nil, err
	}

	slots, err := loadSlots(ctx, tx, card.ID)
	if err != nil {
		return nil, err
	}
	picked, err := LowestUnchecked(slots, res.Boxes)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.Get(ctx, tx, card.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	payDate := s.dateOrToday(in.PaymentDate)
	receipt, err := nextReceiptNumber(ctx, tx, customer.BranchID, payDate.Year())
	if err != nil {
		return nil, err
	}

	p := &Payment{
		CustomerCardID: card.ID,
		WorkerID:       in.ActorID,
		BranchID:       customer.BranchID,
		CompanyID:      customer.CompanyID,
		ReceiptNumber:  receipt,
		AmountPaid:     res.Amount,
		BoxesChecked:   res.Boxes,
		PaymentDate:    payDate,
		PaymentMethod:  method,
		Notes:          in.Notes,
	}
	if err := insertPayment(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := checkSlots(ctx, tx, picked, payDate, p.ID); err != nil {
		return nil, err
	}

	card.applyDelta(res.Boxes, res.Amount, now)
	if err := saveCardProgress(ctx, tx, card); err != nil {
		return nil, err
	}
	if err := s.rollups.RecordTx(ctx, tx, RollupEvent{
		WorkerID:     p.WorkerID,
		BranchID:     customer.BranchID,
		CompanyID:    customer.CompanyID,
		Date:         payDate,
		Amount:       res.Amount,
		PaymentDelta: 1,
	}); err != nil {
		return nil, err
	}
	if err := s.customers.SyncProgress(ctx, tx, customer.ID, progressOf(card)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("Payment applied",
		"card_id", card.ID,
		"payment_id", p.ID,
		"receipt", p.ReceiptNumber,
		"actor_id", in.ActorID,
		"amount", p.AmountPaid.StringFixed(2),
		"boxes", p.BoxesChecked,
		"card_status", card.Status,
	)
	return p, nil
}

// ── Reverse ───────────────────────────────────────────────────────────────────

func (s *ledgerService) ReversePayment(ctx context.Context, paymentID, actorID int) (*CustomerCard, error) {
	if actorID <= 0 {
		return nil, validationf("actor is required")
	}

	// Card before payment, the same order apply and adjust lock in.
	cardID, err := paymentCardID(ctx, s.pool, paymentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return nil, err
	}
	p, err := lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.Get(ctx, tx, card.CustomerID)
	if err != nil {
		return nil, err
	}

	released, err := uncheckPaymentSlots(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	if released != p.BoxesChecked {
		s.log.Warn("Reversed payment owned a different number of slots than it recorded",
			"payment_id", p.ID, "recorded", p.BoxesChecked, "released", released)
	}

	card.applyDelta(-p.BoxesChecked, p.AmountPaid.Neg(), s.clock())
	if err := saveCardProgress(ctx, tx, card); err != nil {
		return nil, err
	}
	if err := s.rollups.RecordTx(ctx, tx, RollupEvent{
		WorkerID:     p.WorkerID,
		BranchID:     p.BranchID,
		CompanyID:    p.CompanyID,
		Date:         p.PaymentDate,
		Amount:       p.AmountPaid.Neg(),
		PaymentDelta: -1,
	}); err != nil {
		return nil, err
	}
	if err := deletePayment(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	if err := s.customers.SyncProgress(ctx, tx, customer.ID, progressOf(card)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("Payment reversed",
		"card_id", card.ID,
		"payment_id", p.ID,
		"receipt", p.ReceiptNumber,
		"actor_id", actorID,
		"amount", p.AmountPaid.StringFixed(2),
		"boxes", p.BoxesChecked,
		"card_status", card.Status,
	)
	return card, nil
}

// ── Adjust ────────────────────────────────────────────────────────────────────

// AdjustPayment changes a payment's amount in place. An increase checks the lowest
// unchecked slots on the whole card; a decrease releases the highest slots owned by
// this payment. The two rules differ on purpose and are pinned by tests.
func (s *ledgerService) AdjustPayment(ctx context.Context, in AdjustPaymentInput) (*Payment, error) {
	if in.ActorID <= 0 {
		return nil, validationf("actor is required")
	}

	cardID, err := paymentCardID(ctx, s.pool, in.PaymentID)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := lockCard(ctx, tx, cardID)
	if err != nil {
		return nil, err
	}
	p, err := lockPayment(ctx, tx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	adj, err := ResolveAdjustment(card, p, in.NewAmount)
	if err != nil {
		return nil, err
	}

	slots, err := loadSlots(ctx, tx, card.ID)
	if err != nil {
		return nil, err
	}
	boxDelta := adj.BoxDiff
	if adj.Increase {
		picked, err := LowestUnchecked(slots, adj.BoxDiff)
		if err != nil {
			return nil, err
		}
		if err := checkSlots(ctx, tx, picked, p.PaymentDate, p.ID); err != nil {
			return nil, err
		}
	} else {
		picked, err := HighestOwnedBy(slots, p.ID, adj.BoxDiff)
		if err != nil {
			return nil, err
		}
		if err := uncheckSlots(ctx, tx, picked); err != nil {
			return nil, err
		}
		boxDelta = -adj.BoxDiff
	}

	customer, err := s.customers.Get(ctx, tx, card.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	oldAmount := p.AmountPaid
	actor := in.ActorID
	p.AmountPaid = in.NewAmount
	p.BoxesChecked += boxDelta
	p.AdjustedFrom = decimal.NullDecimal{Decimal: oldAmount, Valid: true}
	p.AdjustedBy = &actor
	p.AdjustedAt = &now
	p.AdjustmentNotes = in.Notes
	if err := saveAdjustedPayment(ctx, tx, p); err != nil {
		return nil, err
	}

	card.applyDelta(boxDelta, adj.Diff, now)
	if err := saveCardProgress(ctx, tx, card); err != nil {
		return nil, err
	}
	if err := s.rollups.RecordTx(ctx, tx, RollupEvent{
		WorkerID:  p.WorkerID,
		BranchID:  p.BranchID,
		CompanyID: p.CompanyID,
		Date:      p.PaymentDate,
		Amount:    adj.Diff,
	}); err != nil {
		return nil, err
	}
	if err := s.customers.SyncProgress(ctx, tx, customer.ID, progressOf(card)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("Payment adjusted",
		"card_id", card.ID,
		"payment_id", p.ID,
		"actor_id", actor,
		"from", oldAmount.StringFixed(2),
		"to", p.AmountPaid.StringFixed(2),
		"box_delta", boxDelta,
		"card_status", card.Status,
	)
	return p, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *ledgerService) GetBoxStates(ctx context.Context, cardID int) ([]BoxSlot, error) {
	if _, err := getCard(ctx, s.pool, cardID); err != nil {
		return nil, err
	}
	return loadSlots(ctx, s.pool, cardID)
}

func (s *ledgerService) GetPaymentHistory(ctx context.Context, cardID int) ([]Payment, error) {
	if _, err := getCard(ctx, s.pool, cardID); err != nil {
		return nil, err
	}
	return listPayments(ctx, s.pool, cardID)
}

func (s *ledgerService) GetDailySales(ctx context.Context, cardID int, date time.Time) (decimal.Decimal, error) {
	if _, err := getCard(ctx, s.pool, cardID); err != nil {
		return decimal.Zero, err
	}
	return sumPaymentsOn(ctx, s.pool, cardID, date)
}
