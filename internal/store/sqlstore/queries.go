package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements store.Reader over either the pool or an open transaction.
// Rows are always drained and closed before the next statement runs; a
// transaction owns a single connection.
type queries struct {
	q querier
	d Dialect
}

const (
	productColumns      = `id, name, description, purchase_price, sale_price, stock, category, expiry_date, barcode`
	entryColumns        = `id, product_id, quantity, received_at`
	sessionColumns      = `id, opened_at, opening_float, closed_at, closing_balance, sales_total`
	saleColumns         = `id, created_at, total, session_id`
	saleLineColumns     = `id, sale_id, product_id, product_name, quantity, unit_price, subtotal`
	cancellationColumns = `id, sale_id, session_id, sale_total, reason, cancelled_at`
)

func (r queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.d.rebind(query), args...)
}

func (r queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.rebind(query), args...)
}

func (r queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.rebind(query), args...)
}

func (r queries) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (r queries) getProduct(ctx context.Context, query string, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("product", id)
		}
		return nil, storageErr("get product", err)
	}
	return &p, nil
}

func (r queries) FindProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	p, err := scanProduct(r.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = ?`, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("find product by barcode", err)
	}
	return &p, nil
}

func (r queries) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var w where
	if q := strings.TrimSpace(filter.Query); q != "" {
		w.add(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(q))
	}
	if filter.Category != "" {
		w.add(`category = ?`, filter.Category)
	}
	if filter.Barcode != "" {
		w.add(`barcode = ?`, filter.Barcode)
	}

	rows, err := r.query(ctx, `SELECT `+productColumns+` FROM products`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return products, nil
}

func (r queries) CountProductReferences(ctx context.Context, productID int64) (domain.ProductReferences, error) {
	var refs domain.ProductReferences
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM inventory_entries WHERE product_id = ?`, productID).Scan(&refs.Entries); err != nil {
		return refs, storageErr("count entries", err)
	}
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM sale_lines WHERE product_id = ?`, productID).Scan(&refs.SaleLines); err != nil {
		return refs, storageErr("count sale lines", err)
	}
	return refs, nil
}

func (r queries) GetEntry(ctx context.Context, id int64) (*domain.InventoryEntry, error) {
	var e domain.InventoryEntry
	err := r.queryRow(ctx, `SELECT `+entryColumns+` FROM inventory_entries WHERE id = ?`, id).
		Scan(&e.ID, &e.ProductID, &e.Quantity, &e.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("inventory entry", id)
		}
		return nil, storageErr("get inventory entry", err)
	}
	e.ReceivedAt = e.ReceivedAt.UTC()
	return &e, nil
}

func (r queries) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.InventoryEntry, error) {
	var w where
	if filter.ProductID > 0 {
		w.add(`product_id = ?`, filter.ProductID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		w.add(`product_id IN (SELECT id FROM products WHERE LOWER(name) LIKE ? ESCAPE '\')`, likePattern(q))
	}

	rows, err := r.query(ctx, `SELECT `+entryColumns+` FROM inventory_entries`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list inventory entries", err)
	}
	defer rows.Close()

	entries := make([]domain.InventoryEntry, 0, 64)
	for rows.Next() {
		var e domain.InventoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.ReceivedAt); err != nil {
			return nil, storageErr("list inventory entries", err)
		}
		e.ReceivedAt = e.ReceivedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list inventory entries", err)
	}
	return entries, nil
}

func (r queries) GetOpenSession(ctx context.Context) (*domain.CashSession, error) {
	return r.openSession(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE closed_at IS NULL ORDER BY id LIMIT 1`)
}

func (r queries) openSession(ctx context.Context, query string) (*domain.CashSession, error) {
	cs, err := scanSession(r.queryRow(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, storageErr("get open session", err)
	}
	return &cs, nil
}

func (r queries) GetSession(ctx context.Context, id int64) (*domain.CashSession, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM cash_sessions WHERE id = ?`, id)
}

func (r queries) getSession(ctx context.Context, query string, id int64) (*domain.CashSession, error) {
	cs, err := scanSession(r.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("cash session", id)
		}
		return nil, storageErr("get session", err)
	}
	return &cs, nil
}

func (r queries) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CashSession, error) {
	var w where
	switch filter.Status {
	case domain.SessionStatusOpen:
		w.add(`closed_at IS NULL`)
	case domain.SessionStatusClosed:
		w.add(`closed_at IS NOT NULL`)
	}

	rows, err := r.query(ctx, `SELECT `+sessionColumns+` FROM cash_sessions`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	defer rows.Close()

	sessions := make([]domain.CashSession, 0, 16)
	for rows.Next() {
		cs, err := scanSession(rows)
		if err != nil {
			return nil, storageErr("list sessions", err)
		}
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list sessions", err)
	}
	return sessions, nil
}

func (r queries) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sales, err := r.loadSales(ctx, where{clauses: []string{`id = ?`}, args: []any{id}})
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.NotFound("sale", id)
	}
	return &sales[0], nil
}

func (r queries) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var w where
	if filter.SessionID > 0 {
		w.add(`session_id = ?`, filter.SessionID)
	}
	if filter.From != nil {
		w.add(`created_at >= ?`, filter.From.UTC())
	}
	if filter.To != nil {
		w.add(`created_at <= ?`, filter.To.UTC())
	}
	return r.loadSales(ctx, w)
}

// loadSales reads the matching sales, then their lines in a second statement.
func (r queries) loadSales(ctx context.Context, w where) ([]domain.Sale, error) {
	rows, err := r.query(ctx, `SELECT `+saleColumns+` FROM sales`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list sales", err)
	}
	sales := make([]domain.Sale, 0, 32)
	index := make(map[int64]int)
	for rows.Next() {
		var sale domain.Sale
		var sessionID sql.NullInt64
		if err := rows.Scan(&sale.ID, &sale.CreatedAt, &sale.Total, &sessionID); err != nil {
			_ = rows.Close()
			return nil, storageErr("list sales", err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.SessionID = nullID(sessionID)
		sale.Lines = []domain.SaleLine{}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, storageErr("list sales", err)
	}
	_ = rows.Close()
	if len(sales) == 0 {
		return sales, nil
	}

	lineRows, err := r.query(ctx, `
		SELECT `+saleLineColumns+`
		FROM sale_lines
		WHERE sale_id IN (SELECT id FROM sales`+w.String()+`)
		ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list sale lines", err)
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var line domain.SaleLine
		if err := lineRows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, storageErr("list sale lines", err)
		}
		if i, ok := index[line.SaleID]; ok {
			sales[i].Lines = append(sales[i].Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, storageErr("list sale lines", err)
	}
	return sales, nil
}

func (r queries) ListCancellations(ctx context.Context, filter domain.CancellationFilter) ([]domain.CancellationRecord, error) {
	var w where
	if filter.SessionID > 0 {
		w.add(`session_id = ?`, filter.SessionID)
	}

	rows, err := r.query(ctx, `SELECT `+cancellationColumns+` FROM sale_cancellations`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, storageErr("list cancellations", err)
	}
	defer rows.Close()

	records := make([]domain.CancellationRecord, 0, 16)
	for rows.Next() {
		var rec domain.CancellationRecord
		var sessionID sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.SaleID, &sessionID, &rec.SaleTotal, &rec.Reason, &rec.CancelledAt); err != nil {
			return nil, storageErr("list cancellations", err)
		}
		rec.SessionID = nullID(sessionID)
		rec.CancelledAt = rec.CancelledAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list cancellations", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var description, category, barcode sql.NullString
	var expiry sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &description, &p.PurchasePrice, &p.SalePrice, &p.Stock, &category, &expiry, &barcode); err != nil {
		return p, err
	}
	p.Description = description.String
	p.Category = category.String
	p.Barcode = barcode.String
	if expiry.Valid {
		e := expiry.Time.UTC()
		p.ExpiryDate = &e
	}
	return p, nil
}

func scanSession(row scanner) (domain.CashSession, error) {
	var cs domain.CashSession
	var closedAt sql.NullTime
	if err := row.Scan(&cs.ID, &cs.OpenedAt, &cs.OpeningFloat, &closedAt, &cs.ClosingBalance, &cs.SalesTotal); err != nil {
		return cs, err
	}
	cs.OpenedAt = cs.OpenedAt.UTC()
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		cs.ClosedAt = &t
	}
	return cs, nil
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func likePattern(q string) string {
	q = strings.ToLower(q)
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + q + "%"
}

func nullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

// money renders an amount with exactly two decimals so both NUMERIC and TEXT
// columns hold the canonical form.
func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

func nullMoney(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return money(d.Decimal)
}
