package app

import (
	"boxcard-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// WorkerSession is returned by AuthenticateWorker and carried in the auth token.
type WorkerSession struct {
	WorkerID  int    `json:"worker_id"`
	BranchID  int    `json:"branch_id"`
	CompanyID int    `json:"company_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// WorkerResult is returned by GetWorker.
type WorkerResult struct {
	WorkerID int    `json:"worker_id"`
	BranchID int    `json:"branch_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CardResult is returned by card lookups and by reversal.
type CardResult struct {
	Card *core.CustomerCard `json:"card"`
}

// PaymentResult is returned by apply and adjust, with the card state after the change.
type PaymentResult struct {
	Payment *core.Payment      `json:"payment"`
	Card    *core.CustomerCard `json:"card"`
}

// BoxStatesResult is returned by GetBoxStates.
type BoxStatesResult struct {
	CardID int            `json:"card_id"`
	Boxes  []core.BoxSlot `json:"boxes"`
}

// PaymentHistoryResult is returned by GetPaymentHistory.
type PaymentHistoryResult struct {
	CardID   int            `json:"card_id"`
	Payments []core.Payment `json:"payments"`
}

// DailySalesResult is returned by GetDailySales.
type DailySalesResult struct {
	CardID int             `json:"card_id"`
	Date   string          `json:"date"`
	Total  decimal.Decimal `json:"total"`
}

// VerifyResult is returned by VerifyCard. Consistent is true when no breach was found.
type VerifyResult struct {
	CardID     int                    `json:"card_id"`
	Consistent bool                   `json:"consistent"`
	Breaches   []core.InvariantBreach `json:"breaches"`
}

// WorkerTotalsResult is returned by GetWorkerTotals.
type WorkerTotalsResult struct {
	BranchID int                     `json:"branch_id"`
	Date     string                  `json:"date"`
	Workers  []core.DailyWorkerTotal `json:"workers"`
}

// BranchTotalsResult is returned by GetBranchTotals.
type BranchTotalsResult struct {
	CompanyID int                     `json:"company_id"`
	Date      string                  `json:"date"`
	Branches  []core.DailyBranchTotal `json:"branches"`
}

// CompanyTotalsResult is returned by GetCompanyTotals.
type CompanyTotalsResult struct {
	Totals *core.DailyCompanyTotal `json:"totals"`
}
