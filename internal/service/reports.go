package service

import (
	"context"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// SessionReport gathers a session's sales with line detail and per-product
// totals. Reports of closed sessions are cached until a cancellation touches
// them.
func (s *Service) SessionReport(ctx context.Context, sessionID int64) (domain.SessionReport, error) {
	if cached, ok, err := s.reports.Get(ctx, sessionID); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("session report cache read failed")
	} else if ok {
		return *cached, nil
	}

	var report domain.SessionReport
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		sales, err := tx.ListSales(ctx, domain.SaleFilter{SessionID: sessionID})
		if err != nil {
			return err
		}

		lines := domain.DetailLines(sales)
		report = domain.SessionReport{
			Session:       *session,
			SaleCount:     len(sales),
			FinalBalance:  session.OpeningFloat.Add(session.SalesTotal),
			Lines:         lines,
			ProductTotals: domain.TotalsByProduct(lines),
			GeneratedAt:   s.now(),
		}
		return nil
	})
	if err != nil {
		return domain.SessionReport{}, err
	}

	if !report.Session.IsOpen() {
		if err := s.reports.Set(ctx, sessionID, &report, s.reportTTL); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("session report cache write failed")
		}
	}
	return report, nil
}

func (s *Service) SaleReport(ctx context.Context, saleID int64) (domain.SaleReport, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.SaleReport{}, err
	}
	lines := domain.DetailLines([]domain.Sale{*sale})
	return domain.SaleReport{
		Sale:          *sale,
		Lines:         lines,
		ProductTotals: domain.TotalsByProduct(lines),
	}, nil
}

// Snapshot copies every ledger table inside one transaction.
func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if snap.Products, err = tx.ListProducts(ctx, domain.ProductFilter{}); err != nil {
			return err
		}
		if snap.Entries, err = tx.ListEntries(ctx, domain.EntryFilter{}); err != nil {
			return err
		}
		if snap.Sessions, err = tx.ListSessions(ctx, domain.SessionFilter{}); err != nil {
			return err
		}
		if snap.Sales, err = tx.ListSales(ctx, domain.SaleFilter{}); err != nil {
			return err
		}
		if snap.Cancellations, err = tx.ListCancellations(ctx, domain.CancellationFilter{}); err != nil {
			return err
		}

		snap.SaleLines = make([]domain.SaleLine, 0, len(snap.Sales))
		for i := range snap.Sales {
			snap.SaleLines = append(snap.SaleLines, snap.Sales[i].Lines...)
			snap.Sales[i].Lines = nil
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.ExportedAt = s.now()
	return snap, nil
}
