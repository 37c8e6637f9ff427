package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"retailledger/internal/cache"
	"retailledger/internal/lock"
	"retailledger/internal/store"
)

const defaultReportTTL = 10 * time.Minute

type Options struct {
	Logger    logrus.FieldLogger
	Locker    lock.Locker
	Reports   cache.ReportCache
	ReportTTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service is the ledger core. It holds no per-caller state; every mutating
// call runs in its own transaction.
type Service struct {
	repo      store.Repository
	log       logrus.FieldLogger
	locker    lock.Locker
	reports   cache.ReportCache
	reportTTL time.Duration
	now       func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:      repo,
		log:       opts.Logger,
		locker:    opts.Locker,
		reports:   opts.Reports,
		reportTTL: opts.ReportTTL,
		now:       opts.Now,
	}
	if s.log == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		s.log = quiet
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.reports == nil {
		s.reports = cache.NoopReportCache{}
	}
	if s.reportTTL <= 0 {
		s.reportTTL = defaultReportTTL
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// mutate takes the named locks, then runs fn in one transaction.
func (s *Service) mutate(ctx context.Context, keys []string, fn func(ctx context.Context, tx store.Tx) error) error {
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()

	return s.repo.WithinTx(ctx, fn)
}

func (s *Service) logAudit(action string, entity string, id int64, detail string) {
	s.log.WithFields(logrus.Fields{
		"action":    action,
		"entity":    entity,
		"entity_id": id,
	}).Info(detail)
}

const sessionKey = "session"

func productKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

func barcodeKey(code string) string {
	return "barcode:" + code
}

func entityf(err error, entity string, id int64, format string, args ...any) error {
	return store.NewEntityError(err, entity, id, fmt.Sprintf(format, args...))
}
