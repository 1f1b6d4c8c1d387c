package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Types ─────────────────────────────────────────────────────────────────────

// RollupEvent is one change to the date-bucketed totals. Apply records a positive
// amount with PaymentDelta +1, reversal the negation, adjustment the raw amount
// difference with PaymentDelta 0.
type RollupEvent struct {
	WorkerID     int
	BranchID     int
	CompanyID    int
	Date         time.Time
	Amount       decimal.Decimal
	PaymentDelta int
}

type DailyWorkerTotal struct {
	WorkerID         int             `json:"worker_id"`
	BranchID         int             `json:"branch_id"`
	Date             time.Time       `json:"collection_date"`
	TotalCollections decimal.Decimal `json:"total_collections"`
	TotalPayments    int             `json:"total_payments"`
}

type DailyBranchTotal struct {
	BranchID         int             `json:"branch_id"`
	CompanyID        int             `json:"company_id"`
	Date             time.Time       `json:"collection_date"`
	TotalCollections decimal.Decimal `json:"total_collections"`
	CustomersPaid    int             `json:"customers_paid"`
	ActiveWorkers    int             `json:"active_workers"`
}

type DailyCompanyTotal struct {
	CompanyID        int             `json:"company_id"`
	Date             time.Time       `json:"collection_date"`
	TotalCollections decimal.Decimal `json:"total_collections"`
	CustomersPaid    int             `json:"customers_paid"`
	ActiveBranches   int             `json:"active_branches"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// RollupAggregator maintains the worker, branch and company daily totals.
//
// Sum fields (collections, payment counts) are running accumulators floored at zero.
// Cardinality fields (active workers per branch, active branches per company) are
// recounted from the sibling rows of the bucket on every event and never
// incremented, so several events in one bucket cannot skew them on reversal.
type RollupAggregator interface {
	// RecordTx applies one event inside the caller's transaction.
	RecordTx(ctx context.Context, tx pgx.Tx, ev RollupEvent) error

	WorkerTotals(ctx context.Context, branchID int, date time.Time) ([]DailyWorkerTotal, error)
	BranchTotals(ctx context.Context, companyID int, date time.Time) ([]DailyBranchTotal, error)
	// CompanyTotals returns a zero row when nothing was collected that day.
	CompanyTotals(ctx context.Context, companyID int, date time.Time) (*DailyCompanyTotal, error)
}

// ── Implementation ────────────────────────────────────────────────────────────

type rollupAggregator struct {
	pool *pgxpool.Pool
}

// NewRollupAggregator constructs a RollupAggregator backed by the given pool.
func NewRollupAggregator(pool *pgxpool.Pool) RollupAggregator {
	return &rollupAggregator{pool: pool}
}

func (r *rollupAggregator) RecordTx(ctx context.Context, tx pgx.Tx, ev RollupEvent) error {
	date := civilDate(ev.Date)

	_, err := tx.Exec(ctx, `
		INSERT INTO daily_worker_totals (worker_id, branch_id, collection_date, total_collections, total_payments)
		VALUES ($1, $2, $3, GREATEST($4::numeric, 0), GREATEST($5::int, 0))
		ON CONFLICT (worker_id, branch_id, collection_date) DO UPDATE
		SET total_collections = GREATEST(daily_worker_totals.total_collections + $4::numeric, 0),
		    total_payments    = GREATEST(daily_worker_totals.total_payments + $5::int, 0),
		    updated_at        = now()
	`, ev.WorkerID, ev.BranchID, date, ev.Amount, ev.PaymentDelta)
	if err != nil {
		return fmt.Errorf("failed to update worker totals: %w", err)
	}

	// The upsert holds the branch bucket row lock, so the recount below sees every
	// committed sibling and concurrent events on the bucket serialize behind it.
	_, err = tx.Exec(ctx, `
		INSERT INTO daily_branch_totals (branch_id, company_id, collection_date, total_collections, customers_paid)
		VALUES ($1, $2, $3, GREATEST($4::numeric, 0), GREATEST($5::int, 0))
		ON CONFLICT (branch_id, collection_date) DO UPDATE
		SET total_collections = GREATEST(daily_branch_totals.total_collections + $4::numeric, 0),
		    customers_paid    = GREATEST(daily_branch_totals.customers_paid + $5::int, 0),
		    updated_at        = now()
	`, ev.BranchID, ev.CompanyID, date, ev.Amount, ev.PaymentDelta)
	if err != nil {
		return fmt.Errorf("failed to update branch totals: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE daily_branch_totals
		SET active_workers = (
			SELECT COUNT(DISTINCT worker_id)
			FROM daily_worker_totals
			WHERE branch_id = $1 AND collection_date = $2 AND total_payments > 0
		)
		WHERE branch_id = $1 AND collection_date = $2
	`, ev.BranchID, date)
	if err != nil {
		return fmt.Errorf("failed to recount branch active workers: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_company_totals (company_id, collection_date, total_collections, customers_paid)
		VALUES ($1, $2, GREATEST($3::numeric, 0), GREATEST($4::int, 0))
		ON CONFLICT (company_id, collection_date) DO UPDATE
		SET total_collections = GREATEST(daily_company_totals.total_collections + $3::numeric, 0),
		    customers_paid    = GREATEST(daily_company_totals.customers_paid + $4::int, 0),
		    updated_at        = now()
	`, ev.CompanyID, date, ev.Amount, ev.PaymentDelta)
	if err != nil {
		return fmt.Errorf("failed to update company totals: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE daily_company_totals
		SET active_branches = (
			SELECT COUNT(DISTINCT branch_id)
			FROM daily_branch_totals
			WHERE company_id = $1 AND collection_date = $2 AND customers_paid > 0
		)
		WHERE company_id = $1 AND collection_date = $2
	`, ev.CompanyID, date)
	if err != nil {
		return fmt.Errorf("failed to recount company active branches: %w", err)
	}
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (r *rollupAggregator) WorkerTotals(ctx context.Context, branchID int, date time.Time) ([]DailyWorkerTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT worker_id, branch_id, collection_date, total_collections, total_payments
		FROM daily_worker_totals
		WHERE branch_id = $1 AND collection_date = $2
		ORDER BY worker_id
	`, branchID, civilDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query worker totals: %w", err)
	}
	defer rows.Close()

	var out []DailyWorkerTotal
	for rows.Next() {
		var t DailyWorkerTotal
		if err := rows.Scan(&t.WorkerID, &t.BranchID, &t.Date, &t.TotalCollections, &t.TotalPayments); err != nil {
			return nil, fmt.Errorf("failed to scan worker total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *rollupAggregator) BranchTotals(ctx context.Context, companyID int, date time.Time) ([]DailyBranchTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT branch_id, company_id, collection_date, total_collections, customers_paid, active_workers
		FROM daily_branch_totals
		WHERE company_id = $1 AND collection_date = $2
		ORDER BY branch_id
	`, companyID, civilDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query branch totals: %w", err)
	}
	defer rows.Close()

	var out []DailyBranchTotal
	for rows.Next() {
		var t DailyBranchTotal
		if err := rows.Scan(&t.BranchID, &t.CompanyID, &t.Date, &t.TotalCollections, &t.CustomersPaid, &t.ActiveWorkers); err != nil {
			return nil, fmt.Errorf("failed to scan branch total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *rollupAggregator) CompanyTotals(ctx context.Context, companyID int, date time.Time) (*DailyCompanyTotal, error) {
	day := civilDate(date)
	t := DailyCompanyTotal{CompanyID: companyID, Date: day}
	err := r.pool.QueryRow(ctx, `
		SELECT total_collections, customers_paid, active_branches
		FROM daily_company_totals
		WHERE company_id = $1 AND collection_date = $2
	`, companyID, day).Scan(&t.TotalCollections, &t.CustomersPaid, &t.ActiveBranches)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to query company totals: %w", err)
	}
	return &t, nil
}
