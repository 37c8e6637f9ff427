package service

import (
	"context"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// adjustStock is the only code that changes a product's stock counter. It
// locks the product, refuses a negative result with the given error
// (ErrStockUnderflow for ledger edits, ErrInsufficientStock for sales) and
// returns the product as it stands after the change.
func adjustStock(ctx context.Context, tx store.Tx, productID int64, delta int, underflow error) (*domain.Product, error) {
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	next := p.Stock + delta
	if next < 0 {
		return nil, entityf(underflow, "product", productID, "stock %d, change %+d", p.Stock, delta)
	}
	if delta == 0 {
		return p, nil
	}
	if err := tx.SetProductStock(ctx, productID, next); err != nil {
		return nil, err
	}
	p.Stock = next
	return p, nil
}
