package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

// SearchProducts matches a case-insensitive substring of the product name.
func (s *Service) SearchProducts(ctx context.Context, substring string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, domain.ProductFilter{Query: substring})
}

func (s *Service) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	in = normalizeInput(in)
	if err := validateCommand(in); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:          in.Name,
		Description:   in.Description,
		PurchasePrice: domain.RoundMoney(in.PurchasePrice),
		SalePrice:     domain.RoundMoney(in.SalePrice),
		Category:      in.Category,
		ExpiryDate:    in.ExpiryDate,
		Barcode:       in.Barcode,
	}

	var keys []string
	if product.Barcode != "" {
		keys = append(keys, barcodeKey(product.Barcode))
	}
	var created *domain.Product
	err := s.mutate(ctx, keys, func(ctx context.Context, tx store.Tx) error {
		if err := ensureBarcodeFree(ctx, tx, product.Barcode, 0); err != nil {
			return err
		}
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return barcodeErr(err, product.Barcode)
		}
		created, err = adjustStock(ctx, tx, id, in.Stock, store.ErrStockUnderflow)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit("product_create", "product", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	if err := validateCommand(patch); err != nil {
		return domain.Product{}, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Product{}, invalid("name is required")
	}

	keys := []string{productKey(id)}
	if patch.Barcode != nil && strings.TrimSpace(*patch.Barcode) != "" {
		keys = append(keys, barcodeKey(strings.TrimSpace(*patch.Barcode)))
	}

	var updated *domain.Product
	err := s.mutate(ctx, keys, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		next := applyPatch(*current, patch)
		if err := ensureBarcodeFree(ctx, tx, next.Barcode, id); err != nil {
			return err
		}
		if err := tx.UpdateProduct(ctx, next); err != nil {
			return barcodeErr(err, next.Barcode)
		}

		delta := 0
		if patch.Stock != nil {
			delta = *patch.Stock - current.Stock
		}
		updated, err = adjustStock(ctx, tx, id, delta, store.ErrStockUnderflow)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit("product_update", "product", id, updated.Name)
	return *updated, nil
}

// DeleteProduct refuses products that inventory entries or sale lines still
// point at. ForceDeleteProduct is the way past that.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	err := s.mutate(ctx, []string{productKey(id)}, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return err
		}
		refs, err := tx.CountProductReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs.Any() {
			return entityf(store.ErrReferentialConflict, "product", id, "%d inventory entries, %d sale lines", refs.Entries, refs.SaleLines)
		}
		if err := tx.DeleteProduct(ctx, id); err != nil {
			if errors.Is(err, store.ErrReferentialConflict) {
				return store.NewEntityError(store.ErrReferentialConflict, "product", id, "")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logAudit("product_delete", "product", id, "")
	return nil
}

// ForceDeleteProduct removes the product with every inventory entry and sale
// line that references it. The sales owning those lines stay as they are.
// Callers must have confirmed the request.
func (s *Service) ForceDeleteProduct(ctx context.Context, id int64) (domain.ForceDeleteResult, error) {
	result := domain.ForceDeleteResult{ProductID: id}
	err := s.mutate(ctx, []string{productKey(id)}, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return err
		}
		removed, err := tx.DeleteProductReferences(ctx, id)
		if err != nil {
			return err
		}
		result.Removed = removed
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return domain.ForceDeleteResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"action":     "product_force_delete",
		"entity":     "product",
		"entity_id":  id,
		"entries":    result.Removed.Entries,
		"sale_lines": result.Removed.SaleLines,
	}).Warn("product force deleted with its ledger history")
	return result, nil
}

func ensureBarcodeFree(ctx context.Context, tx store.Tx, barcode string, selfID int64) error {
	if barcode == "" {
		return nil
	}
	other, err := tx.FindProductByBarcode(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != selfID {
		return entityf(store.ErrDuplicateBarcode, "product", other.ID, "barcode %q", barcode)
	}
	return nil
}

// barcodeErr names the barcode when the store's unique index fired first.
func barcodeErr(err error, barcode string) error {
	var entityErr *store.EntityError
	if errors.Is(err, store.ErrDuplicateBarcode) && !errors.As(err, &entityErr) {
		return fmt.Errorf("%w: barcode %q", store.ErrDuplicateBarcode, barcode)
	}
	return err
}

func normalizeInput(in domain.ProductInput) domain.ProductInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Barcode = strings.TrimSpace(in.Barcode)
	return in
}

func applyPatch(p domain.Product, patch domain.ProductPatch) domain.Product {
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.PurchasePrice != nil {
		p.PurchasePrice = domain.RoundMoney(*patch.PurchasePrice)
	}
	if patch.SalePrice != nil {
		p.SalePrice = domain.RoundMoney(*patch.SalePrice)
	}
	if patch.Category != nil {
		p.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.ClearExpiry {
		p.ExpiryDate = nil
	} else if patch.ExpiryDate != nil {
		expiry := *patch.ExpiryDate
		p.ExpiryDate = &expiry
	}
	if patch.Barcode != nil {
		p.Barcode = strings.TrimSpace(*patch.Barcode)
	}
	return p
}

// InventoryValuation prices the stock on hand at purchase price.
func (s *Service) InventoryValuation(ctx context.Context) (domain.InventoryValuation, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.InventoryValuation{}, err
	}

	out := domain.InventoryValuation{Lines: make([]domain.ValuationLine, 0, len(products)), Total: decimal.Zero}
	for _, p := range products {
		value := domain.LineSubtotal(p.PurchasePrice, p.Stock)
		out.Lines = append(out.Lines, domain.ValuationLine{
			ProductID:     p.ID,
			Name:          p.Name,
			Stock:         p.Stock,
			PurchasePrice: p.PurchasePrice,
			Value:         value,
		})
		out.Total = out.Total.Add(value)
	}
	return out, nil
}
