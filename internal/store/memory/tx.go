package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

// tx writes to a private copy of the state. The store's write lock is held for
// its whole life, so LockProduct and friends are plain reads.
type tx struct {
	*state
}

func (t *tx) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *tx) InsertProduct(_ context.Context, product domain.Product) (int64, error) {
	if err := t.checkBarcode(product); err != nil {
		return 0, err
	}
	t.seq.product++
	product.ID = t.seq.product
	t.products[product.ID] = cloneProduct(product)
	return product.ID, nil
}

func (t *tx) UpdateProduct(_ context.Context, product domain.Product) error {
	current, ok := t.products[product.ID]
	if !ok {
		return store.NotFound("product", product.ID)
	}
	if err := t.checkBarcode(product); err != nil {
		return err
	}
	product.Stock = current.Stock
	t.products[product.ID] = cloneProduct(product)
	return nil
}

// checkBarcode mirrors the unique index the SQL stores carry.
func (t *tx) checkBarcode(product domain.Product) error {
	if product.Barcode == "" {
		return nil
	}
	for _, other := range t.products {
		if other.ID != product.ID && other.Barcode == product.Barcode {
			return store.ErrDuplicateBarcode
		}
	}
	return nil
}

func (t *tx) SetProductStock(_ context.Context, id int64, stock int) error {
	p, ok := t.products[id]
	if !ok {
		return store.NotFound("product", id)
	}
	p.Stock = stock
	t.products[id] = p
	return nil
}

func (t *tx) DeleteProduct(_ context.Context, id int64) error {
	if _, ok := t.products[id]; !ok {
		return store.NotFound("product", id)
	}
	for _, e := range t.entries {
		if e.ProductID == id {
			return store.ErrReferentialConflict
		}
	}
	for _, l := range t.saleLines {
		if l.ProductID == id {
			return store.ErrReferentialConflict
		}
	}
	delete(t.products, id)
	return nil
}

func (t *tx) DeleteProductReferences(_ context.Context, productID int64) (domain.ProductReferences, error) {
	var removed domain.ProductReferences
	for id, e := range t.entries {
		if e.ProductID == productID {
			delete(t.entries, id)
			removed.Entries++
		}
	}
	for id, l := range t.saleLines {
		if l.ProductID == productID {
			delete(t.saleLines, id)
			removed.SaleLines++
		}
	}
	return removed, nil
}

func (t *tx) InsertEntry(_ context.Context, entry domain.InventoryEntry) (int64, error) {
	if _, ok := t.products[entry.ProductID]; !ok {
		return 0, store.NotFound("product", entry.ProductID)
	}
	t.seq.entry++
	entry.ID = t.seq.entry
	t.entries[entry.ID] = entry
	return entry.ID, nil
}

func (t *tx) UpdateEntryQuantity(_ context.Context, id int64, qty int) error {
	e, ok := t.entries[id]
	if !ok {
		return store.NotFound("inventory entry", id)
	}
	e.Quantity = qty
	t.entries[id] = e
	return nil
}

func (t *tx) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := t.entries[id]; !ok {
		return store.NotFound("inventory entry", id)
	}
	delete(t.entries, id)
	return nil
}

func (t *tx) LockOpenSession(ctx context.Context) (*domain.CashSession, error) {
	return t.GetOpenSession(ctx)
}

func (t *tx) LockSession(ctx context.Context, id int64) (*domain.CashSession, error) {
	return t.GetSession(ctx, id)
}

func (t *tx) InsertSession(_ context.Context, session domain.CashSession) (int64, error) {
	if session.IsOpen() {
		for _, other := range t.sessions {
			if other.IsOpen() {
				return 0, store.ErrSessionAlreadyOpen
			}
		}
	}
	t.seq.session++
	session.ID = t.seq.session
	t.sessions[session.ID] = cloneSession(session)
	return session.ID, nil
}

func (t *tx) UpdateSession(_ context.Context, session domain.CashSession) error {
	if _, ok := t.sessions[session.ID]; !ok {
		return store.NotFound("cash session", session.ID)
	}
	t.sessions[session.ID] = cloneSession(session)
	return nil
}

func (t *tx) SessionSalesTotal(_ context.Context, sessionID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, sale := range t.sales {
		if sale.SessionID != nil && *sale.SessionID == sessionID {
			total = total.Add(sale.Total)
		}
	}
	return total, nil
}

func (t *tx) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.SessionID != nil {
		if _, ok := t.sessions[*sale.SessionID]; !ok {
			return nil, store.NotFound("cash session", *sale.SessionID)
		}
	}
	for _, line := range sale.Lines {
		if _, ok := t.products[line.ProductID]; !ok {
			return nil, store.NotFound("product", line.ProductID)
		}
	}

	t.seq.sale++
	sale.ID = t.seq.sale
	sale.SessionID = cloneID(sale.SessionID)
	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		t.seq.saleLine++
		line.ID = t.seq.saleLine
		line.SaleID = sale.ID
		t.saleLines[line.ID] = line
		lines = append(lines, line)
	}
	stored := sale
	stored.Lines = nil
	t.sales[sale.ID] = stored

	sale.Lines = lines
	return &sale, nil
}

func (t *tx) DeleteSale(_ context.Context, id int64) error {
	if _, ok := t.sales[id]; !ok {
		return store.NotFound("sale", id)
	}
	for lineID, line := range t.saleLines {
		if line.SaleID == id {
			delete(t.saleLines, lineID)
		}
	}
	delete(t.sales, id)
	return nil
}

func (t *tx) InsertCancellation(_ context.Context, record domain.CancellationRecord) (int64, error) {
	t.seq.cancellation++
	record.ID = t.seq.cancellation
	t.cancellations[record.ID] = cloneCancellation(record)
	return record.ID, nil
}
