package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const receiptPrefix = "RC"

// nextReceiptNumber allocates the next gapless receipt number for a branch and year.
// The sequence row stays locked until the caller's transaction ends, so a rolled back
// payment releases its number.
func nextReceiptNumber(ctx context.Context, tx pgx.Tx, branchID, year int) (string, error) {
	var last int64
	err := tx.QueryRow(ctx, `
		INSERT INTO receipt_sequences (branch_id, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_id, year)
		DO UPDATE SET last_number = receipt_sequences.last_number + 1
		RETURNING last_number
	`, branchID, year).Scan(&last)
	if err != nil {
		return "", fmt.Errorf("failed to generate receipt number: %w", err)
	}
	return formatReceiptNumber(branchID, year, last), nil
}

func formatReceiptNumber(branchID, year int, seq int64) string {
	return fmt.Sprintf("%s-B%d-%d-%05d", receiptPrefix, branchID, year, seq)
}
