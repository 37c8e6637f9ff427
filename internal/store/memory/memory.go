package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// Store keeps the ledger in process memory. Transactions run one at a time on
// a private copy of the tables that replaces the live copy on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	products      map[int64]domain.Product
	entries       map[int64]domain.InventoryEntry
	sessions      map[int64]domain.CashSession
	sales         map[int64]domain.Sale
	saleLines     map[int64]domain.SaleLine
	cancellations map[int64]domain.CancellationRecord
	seq           sequences
}

type sequences struct {
	product, entry, session, sale, saleLine, cancellation int64
}

func New() *Store {
	return &Store{state: &state{
		products:      map[int64]domain.Product{},
		entries:       map[int64]domain.InventoryEntry{},
		sessions:      map[int64]domain.CashSession{},
		sales:         map[int64]domain.Sale{},
		saleLines:     map[int64]domain.SaleLine{},
		cancellations: map[int64]domain.CancellationRecord{},
	}}
}

// NewSeeded returns a store with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Name: "Instant Noodles", PurchasePrice: decimal.RequireFromString("0.45"), SalePrice: decimal.RequireFromString("0.80"), Stock: 120, Category: "grocery", Barcode: "7501000000011"},
		{Name: "Eggs (12)", PurchasePrice: decimal.RequireFromString("2.10"), SalePrice: decimal.RequireFromString("3.20"), Stock: 40, Category: "grocery", Barcode: "7501000000028"},
		{Name: "UHT Milk 1L", PurchasePrice: decimal.RequireFromString("0.95"), SalePrice: decimal.RequireFromString("1.40"), Stock: 60, Category: "dairy", Barcode: "7501000000035"},
		{Name: "Sliced Bread", PurchasePrice: decimal.RequireFromString("1.30"), SalePrice: decimal.RequireFromString("2.10"), Stock: 25, Category: "bakery"},
		{Name: "Ground Coffee 250g", PurchasePrice: decimal.RequireFromString("3.40"), SalePrice: decimal.RequireFromString("5.25"), Stock: 18, Category: "beverage", Barcode: "7501000000059"},
		{Name: "Bar Soap", PurchasePrice: decimal.RequireFromString("0.60"), SalePrice: decimal.RequireFromString("1.10"), Stock: 50, Category: "household"},
	} {
		s.state.seq.product++
		p.ID = s.state.seq.product
		s.state.products[p.ID] = p
		if p.Stock > 0 {
			s.state.seq.entry++
			s.state.entries[s.state.seq.entry] = domain.InventoryEntry{ID: s.state.seq.entry, ProductID: p.ID, Quantity: p.Stock, ReceivedAt: now}
		}
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// The live state is replaced, never mutated, once a transaction commits, so a
// reader may keep using the pointer it took under the read lock.

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.read().GetProduct(ctx, id)
}

func (s *Store) FindProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.read().FindProductByBarcode(ctx, barcode)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.read().ListProducts(ctx, filter)
}

func (s *Store) CountProductReferences(ctx context.Context, productID int64) (domain.ProductReferences, error) {
	return s.read().CountProductReferences(ctx, productID)
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*domain.InventoryEntry, error) {
	return s.read().GetEntry(ctx, id)
}

func (s *Store) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.InventoryEntry, error) {
	return s.read().ListEntries(ctx, filter)
}

func (s *Store) GetOpenSession(ctx context.Context) (*domain.CashSession, error) {
	return s.read().GetOpenSession(ctx)
}

func (s *Store) GetSession(ctx context.Context, id int64) (*domain.CashSession, error) {
	return s.read().GetSession(ctx, id)
}

func (s *Store) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CashSession, error) {
	return s.read().ListSessions(ctx, filter)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.read().GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return s.read().ListSales(ctx, filter)
}

func (s *Store) ListCancellations(ctx context.Context, filter domain.CancellationFilter) ([]domain.CancellationRecord, error) {
	return s.read().ListCancellations(ctx, filter)
}

func (st *state) clone() *state {
	return &state{
		products:      maps.Clone(st.products),
		entries:       maps.Clone(st.entries),
		sessions:      maps.Clone(st.sessions),
		sales:         maps.Clone(st.sales),
		saleLines:     maps.Clone(st.saleLines),
		cancellations: maps.Clone(st.cancellations),
		seq:           st.seq,
	}
}

func (st *state) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (st *state) FindProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	for _, p := range st.products {
		if p.Barcode == barcode {
			dup := cloneProduct(p)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Barcode != "" && p.Barcode != filter.Barcode {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (st *state) CountProductReferences(_ context.Context, productID int64) (domain.ProductReferences, error) {
	var refs domain.ProductReferences
	for _, e := range st.entries {
		if e.ProductID == productID {
			refs.Entries++
		}
	}
	for _, l := range st.saleLines {
		if l.ProductID == productID {
			refs.SaleLines++
		}
	}
	return refs, nil
}

func (st *state) GetEntry(_ context.Context, id int64) (*domain.InventoryEntry, error) {
	e, ok := st.entries[id]
	if !ok {
		return nil, store.NotFound("inventory entry", id)
	}
	return &e, nil
}

func (st *state) ListEntries(_ context.Context, filter domain.EntryFilter) ([]domain.InventoryEntry, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]domain.InventoryEntry, 0, len(st.entries))
	for _, e := range st.entries {
		if filter.ProductID > 0 && e.ProductID != filter.ProductID {
			continue
		}
		if query != "" {
			p, ok := st.products[e.ProductID]
			if !ok || !strings.Contains(strings.ToLower(p.Name), query) {
				continue
			}
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.InventoryEntry) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (st *state) GetOpenSession(_ context.Context) (*domain.CashSession, error) {
	for _, cs := range st.sessions {
		if cs.IsOpen() {
			dup := cloneSession(cs)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (st *state) GetSession(_ context.Context, id int64) (*domain.CashSession, error) {
	cs, ok := st.sessions[id]
	if !ok {
		return nil, store.NotFound("cash session", id)
	}
	dup := cloneSession(cs)
	return &dup, nil
}

func (st *state) ListSessions(_ context.Context, filter domain.SessionFilter) ([]domain.CashSession, error) {
	out := make([]domain.CashSession, 0, len(st.sessions))
	for _, cs := range st.sessions {
		if filter.Status != "" && cs.Status() != filter.Status {
			continue
		}
		out = append(out, cloneSession(cs))
	}
	slices.SortFunc(out, func(a, b domain.CashSession) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (st *state) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	sale, ok := st.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}
	dup := st.withLines(sale)
	return &dup, nil
}

func (st *state) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0, len(st.sales))
	for _, sale := range st.sales {
		if filter.SessionID > 0 && (sale.SessionID == nil || *sale.SessionID != filter.SessionID) {
			continue
		}
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, st.withLines(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (st *state) ListCancellations(_ context.Context, filter domain.CancellationFilter) ([]domain.CancellationRecord, error) {
	out := make([]domain.CancellationRecord, 0, len(st.cancellations))
	for _, rec := range st.cancellations {
		if filter.SessionID > 0 && (rec.SessionID == nil || *rec.SessionID != filter.SessionID) {
			continue
		}
		out = append(out, cloneCancellation(rec))
	}
	slices.SortFunc(out, func(a, b domain.CancellationRecord) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (st *state) withLines(sale domain.Sale) domain.Sale {
	dup := sale
	dup.SessionID = cloneID(sale.SessionID)
	dup.Lines = make([]domain.SaleLine, 0, 4)
	for _, line := range st.saleLines {
		if line.SaleID == sale.ID {
			dup.Lines = append(dup.Lines, line)
		}
	}
	slices.SortFunc(dup.Lines, func(a, b domain.SaleLine) int { return cmpID(a.ID, b.ID) })
	return dup
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.ExpiryDate != nil {
		expiry := *src.ExpiryDate
		dup.ExpiryDate = &expiry
	}
	return dup
}

func cloneSession(src domain.CashSession) domain.CashSession {
	dup := src
	if src.ClosedAt != nil {
		closedAt := *src.ClosedAt
		dup.ClosedAt = &closedAt
	}
	return dup
}

func cloneCancellation(src domain.CancellationRecord) domain.CancellationRecord {
	dup := src
	dup.SessionID = cloneID(src.SessionID)
	return dup
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
