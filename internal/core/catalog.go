package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CardCatalog is the read-only source of card product definitions.
type CardCatalog interface {
	Lookup(ctx context.Context, q Querier, cardProductID int) (*CardProduct, error)
}

type pgCardCatalog struct{}

// NewCardCatalog returns a catalog backed by the card_products table.
func NewCardCatalog() CardCatalog {
	return pgCardCatalog{}
}

func (pgCardCatalog) Lookup(ctx context.Context, q Querier, cardProductID int) (*CardProduct, error) {
	var p CardProduct
	err := q.QueryRow(ctx, `
		SELECT id, name, total_boxes, total_amount, is_active
		FROM card_products
		WHERE id = $1
	`, cardProductID).Scan(&p.ID, &p.Name, &p.TotalBoxes, &p.TotalAmount, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundf("card product %d not found", cardProductID)
		}
		return nil, fmt.Errorf("failed to look up card product %d: %w", cardProductID, err)
	}
	if !p.IsActive {
		return nil, notFoundf("card product %d is not available", cardProductID)
	}
	return &p, nil
}
