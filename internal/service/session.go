package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// CurrentSession returns the open session, or nil when the register is closed.
func (s *Service) CurrentSession(ctx context.Context) (*domain.CashSession, error) {
	session, err := s.repo.GetOpenSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id int64) (domain.CashSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return domain.CashSession{}, err
	}
	return *session, nil
}

func (s *Service) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CashSession, error) {
	switch filter.Status {
	case "", domain.SessionStatusOpen, domain.SessionStatusClosed:
	default:
		return nil, invalid("status must be %q or %q", domain.SessionStatusOpen, domain.SessionStatusClosed)
	}
	return s.repo.ListSessions(ctx, filter)
}

func (s *Service) OpenSession(ctx context.Context, cmd domain.OpenSessionCommand) (domain.CashSession, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.CashSession{}, err
	}

	session := domain.CashSession{
		OpenedAt:     s.now(),
		OpeningFloat: domain.RoundMoney(cmd.OpeningFloat),
		SalesTotal:   decimal.Zero,
	}
	err := s.mutate(ctx, []string{sessionKey}, func(ctx context.Context, tx store.Tx) error {
		open, err := tx.LockOpenSession(ctx)
		switch {
		case err == nil:
			return store.NewEntityError(store.ErrSessionAlreadyOpen, "cash session", open.ID, "")
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		id, err := tx.InsertSession(ctx, session)
		if err != nil {
			return err
		}
		session.ID = id
		return nil
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit("session_open", "cash_session", session.ID, "opening float "+session.OpeningFloat.StringFixed(domain.MoneyPlaces))
	return session, nil
}

// CloseSession closes the open session. Without an explicit balance the
// closing balance is the opening float plus the totals of the sales that
// belong to the session.
func (s *Service) CloseSession(ctx context.Context, cmd domain.CloseSessionCommand) (domain.CashSession, error) {
	if err := validateCommand(cmd); err != nil {
		return domain.CashSession{}, err
	}

	var closed domain.CashSession
	err := s.mutate(ctx, []string{sessionKey}, func(ctx context.Context, tx store.Tx) error {
		session, err := lockOpenSession(ctx, tx)
		if err != nil {
			return err
		}
		salesTotal, err := tx.SessionSalesTotal(ctx, session.ID)
		if err != nil {
			return err
		}

		balance := session.OpeningFloat.Add(salesTotal)
		if cmd.ClosingBalance != nil {
			balance = domain.RoundMoney(*cmd.ClosingBalance)
		}
		closedAt := s.now()
		session.ClosedAt = &closedAt
		session.ClosingBalance = decimal.NewNullDecimal(balance)
		session.SalesTotal = salesTotal
		if err := tx.UpdateSession(ctx, *session); err != nil {
			return err
		}
		closed = *session
		return nil
	})
	if err != nil {
		return domain.CashSession{}, err
	}

	s.logAudit("session_close", "cash_session", closed.ID, "closing balance "+closed.ClosingBalance.Decimal.StringFixed(domain.MoneyPlaces))
	return closed, nil
}

func lockOpenSession(ctx context.Context, tx store.Tx) (*domain.CashSession, error) {
	session, err := tx.LockOpenSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrNoOpenSession
	}
	return session, err
}
