package app

import (
	"context"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from the ledger. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// Ping reports whether the database is reachable.
	Ping(ctx context.Context) error

	// AuthenticateWorker verifies credentials and returns a session on success.
	AuthenticateWorker(ctx context.Context, username, password string) (*WorkerSession, error)

	// GetWorker returns a worker profile by ID.
	GetWorker(ctx context.Context, workerID int) (*WorkerResult, error)

	// AssignCard binds a catalog card to a customer. Fails with a conflict if the
	// customer already has an active card.
	AssignCard(ctx context.Context, req AssignCardRequest) (*CardResult, error)

	// GetActiveCard returns the customer's active card, rebuilding it from legacy
	// progress when the customer predates card tracking.
	GetActiveCard(ctx context.Context, customerID int) (*CardResult, error)

	// GetCard returns a card by ID regardless of status.
	GetCard(ctx context.Context, cardID int) (*CardResult, error)

	// ApplyPayment records a payment by amount or by box count.
	ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*PaymentResult, error)

	// ReversePayment deletes a payment and releases the boxes it checked.
	ReversePayment(ctx context.Context, req ReversePaymentRequest) (*CardResult, error)

	// AdjustPayment changes the amount of an existing payment in place.
	AdjustPayment(ctx context.Context, req AdjustPaymentRequest) (*PaymentResult, error)

	// GetBoxStates returns the card's boxes in box-number order.
	GetBoxStates(ctx context.Context, cardID int) (*BoxStatesResult, error)

	// GetPaymentHistory returns the card's live payments, newest first.
	GetPaymentHistory(ctx context.Context, cardID int) (*PaymentHistoryResult, error)

	// GetDailySales sums a card's payments on one date (YYYY-MM-DD, empty for today).
	GetDailySales(ctx context.Context, cardID int, date string) (*DailySalesResult, error)

	// VerifyCard re-derives the card's counters from its boxes and payments.
	VerifyCard(ctx context.Context, cardID int) (*VerifyResult, error)

	// GetWorkerTotals returns per-collector totals for a branch and date.
	GetWorkerTotals(ctx context.Context, branchID int, date string) (*WorkerTotalsResult, error)

	// GetBranchTotals returns per-branch totals for a company and date.
	GetBranchTotals(ctx context.Context, companyID int, date string) (*BranchTotalsResult, error)

	// GetCompanyTotals returns the company's totals for a date.
	GetCompanyTotals(ctx context.Context, companyID int, date string) (*CompanyTotalsResult, error)
}
