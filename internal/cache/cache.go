package cache

import (
	"context"
	"time"

	"retailledger/internal/domain"
)

// ReportCache keeps rendered reports of closed sessions, which only change
// when one of their sales is cancelled.
type ReportCache interface {
	Get(ctx context.Context, sessionID int64) (*domain.SessionReport, bool, error)
	Set(ctx context.Context, sessionID int64, value *domain.SessionReport, ttl time.Duration) error
	Delete(ctx context.Context, sessionID int64) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ int64) (*domain.SessionReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ int64, _ *domain.SessionReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ int64) error {
	return nil
}
