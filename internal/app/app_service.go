package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxcard-ledger/internal/core"
	"boxcard-ledger/internal/logger"
	"boxcard-ledger/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const dateLayout = "2006-01-02"

// ErrInvalidCredentials is returned for any failed login, whatever the cause.
var ErrInvalidCredentials = errors.New("invalid username or password")

type appService struct {
	pool    *pgxpool.Pool
	ledger  core.LedgerService
	rollups core.RollupAggregator
	workers core.WorkerService
	metrics *metrics.Ledger
	log     *logger.Logger
	loc     *time.Location
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	ledger core.LedgerService,
	rollups core.RollupAggregator,
	workers core.WorkerService,
	m *metrics.Ledger,
	log *logger.Logger,
	loc *time.Location,
) ApplicationService {
	if loc == nil {
		loc = time.UTC
	}
	return &appService{
		pool:    pool,
		ledger:  ledger,
		rollups: rollups,
		workers: workers,
		metrics: m,
		log:     log,
		loc:     loc,
	}
}

func (s *appService) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// observe records the outcome of a mutation. Rejections carry a ledger error kind;
// anything else is an infrastructure failure.
func (s *appService) observe(op string, started time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case core.KindOf(err) != "":
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
		s.log.Error("Ledger operation failed", "operation", op, "error", err)
	}
	s.metrics.Observe(op, outcome, started)
}

// parseDate reads a YYYY-MM-DD date, or returns today in the business time zone
// when s is empty.
func (s *appService) parseDate(value string) (time.Time, error) {
	if value == "" {
		y, m, d := time.Now().In(s.loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, core.NewError(core.KindValidation, "invalid date %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

// optionalDate is parseDate for fields where empty means "let the ledger decide".
func (s *appService) optionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := s.parseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ── Workers ───────────────────────────────────────────────────────────────────

func (s *appService) AuthenticateWorker(ctx context.Context, username, password string) (*WorkerSession, error) {
	w, err := s.workers.GetByUsername(ctx, username)
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if w.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(w.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &WorkerSession{
		WorkerID:  w.ID,
		BranchID:  w.BranchID,
		CompanyID: w.CompanyID,
		Username:  w.Username,
		Role:      w.Role,
	}, nil
}

func (s *appService) GetWorker(ctx context.Context, workerID int) (*WorkerResult, error) {
	w, err := s.workers.GetByID(ctx, workerID)
	if err != nil {
		return nil, err
	}
	return &WorkerResult{WorkerID: w.ID, BranchID: w.BranchID, Username: w.Username, Role: w.Role}, nil
}

// ── Cards ─────────────────────────────────────────────────────────────────────

func (s *appService) AssignCard(ctx context.Context, req AssignCardRequest) (res *CardResult, err error) {
	defer func(started time.Time) { s.observe("assign_card", started, err) }(time.Now())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	assigned, err := s.optionalDate(req.AssignedDate)
	if err != nil {
		return nil, err
	}
	card, err := s.ledger.AssignCard(ctx, core.AssignCardInput{
		CustomerID:    req.CustomerID,
		CardProductID: req.CardProductID,
		AssignedDate:  assigned,
	})
	if err != nil {
		return nil, err
	}
	return &CardResult{Card: card}, nil
}

func (s *appService) GetActiveCard(ctx context.Context, customerID int) (*CardResult, error) {
	card, err := s.ledger.GetActiveCard(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &CardResult{Card: card}, nil
}

func (s *appService) GetCard(ctx context.Context, cardID int) (*CardResult, error) {
	card, err := s.ledger.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return &CardResult{Card: card}, nil
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *appService) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (res *PaymentResult, err error) {
	defer func(started time.Time) { s.observe("apply_payment", started, err) }(time.Now())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	payDate, err := s.optionalDate(req.PaymentDate)
	if err != nil {
		return nil, err
	}
	p, err := s.ledger.ApplyPayment(ctx, core.ApplyPaymentInput{
		CardID:       req.CardID,
		AmountPaid:   req.AmountPaid,
		BoxesToCheck: req.BoxesToCheck,
		Method:       req.Method,
		Notes:        req.Notes,
		ActorID:      req.ActorID,
		PaymentDate:  payDate,
	})
	if err != nil {
		return nil, err
	}
	card, err := s.ledger.GetCard(ctx, p.CustomerCardID)
	if err != nil {
		return nil, fmt.Errorf("payment %d recorded but card reload failed: %w", p.ID, err)
	}
	return &PaymentResult{Payment: p, Card: card}, nil
}

func (s *appService) ReversePayment(ctx context.Context, req ReversePaymentRequest) (res *CardResult, err error) {
	defer func(started time.Time) { s.observe("reverse_payment", started, err) }(time.Now())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	card, err := s.ledger.ReversePayment(ctx, req.PaymentID, req.ActorID)
	if err != nil {
		return nil, err
	}
	return &CardResult{Card: card}, nil
}

func (s *appService) AdjustPayment(ctx context.Context, req AdjustPaymentRequest) (res *PaymentResult, err error) {
	defer func(started time.Time) { s.observe("adjust_payment", started, err) }(time.Now())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p, err := s.ledger.AdjustPayment(ctx, core.AdjustPaymentInput{
		PaymentID: req.PaymentID,
		NewAmount: req.NewAmount,
		Notes:     req.Notes,
		ActorID:   req.ActorID,
	})
	if err != nil {
		return nil, err
	}
	card, err := s.ledger.GetCard(ctx, p.CustomerCardID)
	if err != nil {
		return nil, fmt.Errorf("payment %d adjusted but card reload failed: %w", p.ID, err)
	}
	return &PaymentResult{Payment: p, Card: card}, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *appService) GetBoxStates(ctx context.Context, cardID int) (*BoxStatesResult, error) {
	boxes, err := s.ledger.GetBoxStates(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return &BoxStatesResult{CardID: cardID, Boxes: boxes}, nil
}

func (s *appService) GetPaymentHistory(ctx context.Context, cardID int) (*PaymentHistoryResult, error) {
	payments, err := s.ledger.GetPaymentHistory(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return &PaymentHistoryResult{CardID: cardID, Payments: payments}, nil
}

func (s *appService) GetDailySales(ctx context.Context, cardID int, date string) (*DailySalesResult, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	total, err := s.ledger.GetDailySales(ctx, cardID, day)
	if err != nil {
		return nil, err
	}
	return &DailySalesResult{CardID: cardID, Date: day.Format(dateLayout), Total: total}, nil
}

func (s *appService) VerifyCard(ctx context.Context, cardID int) (*VerifyResult, error) {
	breaches, err := s.ledger.VerifyCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if len(breaches) > 0 {
		s.log.Warn("Card failed verification", "card_id", cardID, "breaches", len(breaches))
	}
	return &VerifyResult{CardID: cardID, Consistent: len(breaches) == 0, Breaches: breaches}, nil
}

// ── Rollups ───────────────────────────────────────────────────────────────────

func (s *appService) GetWorkerTotals(ctx context.Context, branchID int, date string) (*WorkerTotalsResult, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := s.rollups.WorkerTotals(ctx, branchID, day)
	if err != nil {
		return nil, err
	}
	return &WorkerTotalsResult{BranchID: branchID, Date: day.Format(dateLayout), Workers: rows}, nil
}

func (s *appService) GetBranchTotals(ctx context.Context, companyID int, date string) (*BranchTotalsResult, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := s.rollups.BranchTotals(ctx, companyID, day)
	if err != nil {
		return nil, err
	}
	return &BranchTotalsResult{CompanyID: companyID, Date: day.Format(dateLayout), Branches: rows}, nil
}

func (s *appService) GetCompanyTotals(ctx context.Context, companyID int, date string) (*CompanyTotalsResult, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	totals, err := s.rollups.CompanyTotals(ctx, companyID, day)
	if err != nil {
		return nil, err
	}
	return &CompanyTotalsResult{Totals: totals}, nil
}
