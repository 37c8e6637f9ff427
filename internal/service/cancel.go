package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// CancelSale reverses a committed sale: stock goes back to the products that
// still exist, the owning session's total drops by the sale total (never below
// zero), and the sale is removed. A CancellationRecord keeps the sale id, total
// and reason. There is no undo; callers must have confirmed.
func (s *Service) CancelSale(ctx context.Context, cmd domain.CancelSaleCommand) (domain.CancellationRecord, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.CancellationRecord{}, err
	}

	before, err := s.repo.GetSale(ctx, cmd.SaleID)
	if err != nil {
		return domain.CancellationRecord{}, err
	}
	keys := []string{sessionKey}
	for _, line := range before.Lines {
		keys = append(keys, productKey(line.ProductID))
	}

	var (
		record        domain.CancellationRecord
		closedSession bool
	)
	err = s.mutate(ctx, keys, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, cmd.SaleID)
		if err != nil {
			return err
		}

		for _, line := range sale.Lines {
			_, err := adjustStock(ctx, tx, line.ProductID, line.Quantity, store.ErrStockUnderflow)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
		}

		if sale.SessionID != nil {
			session, err := tx.LockSession(ctx, *sale.SessionID)
			if err != nil {
				return err
			}
			session.SalesTotal = session.SalesTotal.Sub(sale.Total)
			if session.SalesTotal.IsNegative() {
				session.SalesTotal = decimal.Zero
			}
			if err := tx.UpdateSession(ctx, *session); err != nil {
				return err
			}
			closedSession = !session.IsOpen()
		}

		record = domain.CancellationRecord{
			SaleID:      sale.ID,
			SessionID:   sale.SessionID,
			SaleTotal:   sale.Total,
			Reason:      cmd.Reason,
			CancelledAt: s.now(),
		}
		id, err := tx.InsertCancellation(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		return tx.DeleteSale(ctx, sale.ID)
	})
	if err != nil {
		return domain.CancellationRecord{}, err
	}

	if closedSession {
		if err := s.reports.Delete(ctx, *record.SessionID); err != nil {
			s.log.WithError(err).WithField("session_id", *record.SessionID).Warn("session report cache invalidation failed")
		}
	}
	s.logAudit("sale_cancel", "sale", record.SaleID, record.Reason)
	return record, nil
}

func (s *Service) ListCancellations(ctx context.Context, filter domain.CancellationFilter) ([]domain.CancellationRecord, error) {
	return s.repo.ListCancellations(ctx, filter)
}
