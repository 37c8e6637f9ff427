package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// CheckCart prices a cart against current stock without committing it. It is
// the add-time check; CommitSale validates again.
func (s *Service) CheckCart(ctx context.Context, cart *domain.Cart) (domain.CartCheck, error) {
	lines, err := cartLines(cart)
	if err != nil {
		return domain.CartCheck{}, err
	}

	check := domain.CartCheck{Lines: make([]domain.CartCheckLine, 0, len(lines)), Total: decimal.Zero}
	for _, line := range lines {
		p, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.CartCheck{}, err
		}
		if line.Quantity > p.Stock {
			return domain.CartCheck{}, entityf(store.ErrInsufficientStock, "product", p.ID, "%s: requested %d, available %d", p.Name, line.Quantity, p.Stock)
		}
		subtotal := domain.LineSubtotal(p.SalePrice, line.Quantity)
		check.Lines = append(check.Lines, domain.CartCheckLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			Available:   p.Stock,
			UnitPrice:   p.SalePrice,
			Subtotal:    subtotal,
		})
		check.Total = check.Total.Add(subtotal)
	}
	return check, nil
}

// CommitSale turns the cart into a sale on the open session. Stock and prices
// are read inside the transaction; either the whole sale commits or nothing
// does. The caller clears its cart on success.
func (s *Service) CommitSale(ctx context.Context, cart *domain.Cart) (domain.Sale, error) {
	keys := []string{sessionKey}
	for _, line := range cart.Lines() {
		keys = append(keys, productKey(line.ProductID))
	}

	var committed *domain.Sale
	err := s.mutate(ctx, keys, func(ctx context.Context, tx store.Tx) error {
		session, err := lockOpenSession(ctx, tx)
		if err != nil {
			return err
		}
		lines, err := cartLines(cart)
		if err != nil {
			return err
		}

		sale := domain.Sale{
			CreatedAt: s.now(),
			Total:     decimal.Zero,
			SessionID: &session.ID,
			Lines:     make([]domain.SaleLine, 0, len(lines)),
		}
		for _, line := range lines {
			p, err := adjustStock(ctx, tx, line.ProductID, -line.Quantity, store.ErrInsufficientStock)
			if err != nil {
				return err
			}
			subtotal := domain.LineSubtotal(p.SalePrice, line.Quantity)
			sale.Lines = append(sale.Lines, domain.SaleLine{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    line.Quantity,
				UnitPrice:   p.SalePrice,
				Subtotal:    subtotal,
			})
			sale.Total = sale.Total.Add(subtotal)
		}

		committed, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		session.SalesTotal = session.SalesTotal.Add(sale.Total)
		return tx.UpdateSession(ctx, *session)
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit("sale_commit", "sale", committed.ID, fmt.Sprintf("%d lines, total %s", len(committed.Lines), committed.Total.StringFixed(domain.MoneyPlaces)))
	return *committed, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, invalid("to must not be before from")
	}
	return s.repo.ListSales(ctx, filter)
}

// cartLines merges the cart and rejects empty carts and non-positive quantities.
func cartLines(cart *domain.Cart) ([]domain.CartLine, error) {
	if cart.Len() == 0 {
		return nil, store.ErrEmptyCart
	}
	lines := domain.MergeLines(cart.Lines())
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, invalid("product_id must be greater than 0")
		}
		if line.Quantity <= 0 {
			return nil, entityf(store.ErrValidation, "product", line.ProductID, "quantity must be greater than 0")
		}
	}
	return lines, nil
}
