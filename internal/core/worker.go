package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker is a collector. Its ID is the actor recorded on payments.
type Worker struct {
	ID           int
	BranchID     int
	CompanyID    int
	Username     string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// WorkerService provides worker lookup operations.
type WorkerService interface {
	// GetByUsername finds an active worker by username.
	GetByUsername(ctx context.Context, username string) (*Worker, error)

	// GetByID returns a worker by primary key.
	GetByID(ctx context.Context, workerID int) (*Worker, error)
}

type workerService struct {
	pool *pgxpool.Pool
}

// NewWorkerService constructs a WorkerService backed by PostgreSQL.
func NewWorkerService(pool *pgxpool.Pool) WorkerService {
	return &workerService{pool: pool}
}

const workerSelect = `
	SELECT w.id, w.branch_id, b.company_id, w.username, w.password_hash, w.role, w.is_active, w.created_at
	FROM workers w
	JOIN branches b ON b.id = w.branch_id`

func (s *workerService) GetByUsername(ctx context.Context, username string) (*Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, workerSelect+" WHERE w.username = $1 AND w.is_active = true", username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("worker %q not found", username)
		}
		return nil, fmt.Errorf("failed to load worker %q: %w", username, err)
	}
	return w, nil
}

func (s *workerService) GetByID(ctx context.Context, workerID int) (*Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, workerSelect+" WHERE w.id = $1", workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("worker id=%d not found", workerID)
		}
		return nil, fmt.Errorf("failed to load worker id=%d: %w", workerID, err)
	}
	return w, nil
}

func scanWorker(row pgx.Row) (*Worker, error) {
	w := &Worker{}
	err := row.Scan(&w.ID, &w.BranchID, &w.CompanyID, &w.Username, &w.PasswordHash, &w.Role, &w.IsActive, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}
