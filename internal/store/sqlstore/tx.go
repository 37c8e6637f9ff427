package sqlstore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/store"
)

type tx struct {
	queries
}

func (t *tx) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return t.getProduct(ctx, t.d.lock(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
}

func (t *tx) InsertProduct(ctx context.Context, p domain.Product) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO products (name, description, purchase_price, sale_price, stock, category, expiry_date, barcode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.Name, nullIfEmpty(p.Description), money(p.PurchasePrice), money(p.SalePrice), p.Stock,
		nullIfEmpty(p.Category), nullTime(p.ExpiryDate), nullIfEmpty(p.Barcode), now, now,
	).Scan(&id)
	if err != nil {
		if t.d.unique(err) {
			return 0, store.ErrDuplicateBarcode
		}
		return 0, storageErr("insert product", err)
	}
	return id, nil
}

func (t *tx) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := t.exec(ctx, `
		UPDATE products
		SET name = ?, description = ?, purchase_price = ?, sale_price = ?, category = ?, expiry_date = ?, barcode = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, nullIfEmpty(p.Description), money(p.PurchasePrice), money(p.SalePrice),
		nullIfEmpty(p.Category), nullTime(p.ExpiryDate), nullIfEmpty(p.Barcode), time.Now().UTC(), p.ID,
	)
	if err != nil {
		if t.d.unique(err) {
			return store.ErrDuplicateBarcode
		}
		return storageErr("update product", err)
	}
	return expectOne(res, "product", p.ID)
}

func (t *tx) SetProductStock(ctx context.Context, id int64, stock int) error {
	res, err := t.exec(ctx, `UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`, stock, time.Now().UTC(), id)
	if err != nil {
		return storageErr("set stock", err)
	}
	return expectOne(res, "product", id)
}

func (t *tx) DeleteProduct(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		if t.d.foreignKey(err) {
			return store.ErrReferentialConflict
		}
		return storageErr("delete product", err)
	}
	return expectOne(res, "product", id)
}

func (t *tx) DeleteProductReferences(ctx context.Context, productID int64) (domain.ProductReferences, error) {
	var removed domain.ProductReferences
	res, err := t.exec(ctx, `DELETE FROM inventory_entries WHERE product_id = ?`, productID)
	if err != nil {
		return removed, storageErr("delete product entries", err)
	}
	removed.Entries = affected(res)

	res, err = t.exec(ctx, `DELETE FROM sale_lines WHERE product_id = ?`, productID)
	if err != nil {
		return removed, storageErr("delete product sale lines", err)
	}
	removed.SaleLines = affected(res)
	return removed, nil
}

func (t *tx) InsertEntry(ctx context.Context, e domain.InventoryEntry) (int64, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO inventory_entries (product_id, quantity, received_at)
		VALUES (?, ?, ?)
		RETURNING id`, e.ProductID, e.Quantity, e.ReceivedAt.UTC()).Scan(&id)
	if err != nil {
		if t.d.foreignKey(err) {
			return 0, store.NotFound("product", e.ProductID)
		}
		return 0, storageErr("insert inventory entry", err)
	}
	return id, nil
}

func (t *tx) UpdateEntryQuantity(ctx context.Context, id int64, qty int) error {
	res, err := t.exec(ctx, `UPDATE inventory_entries SET quantity = ? WHERE id = ?`, qty, id)
	if err != nil {
		return storageErr("update inventory entry", err)
	}
	return expectOne(res, "inventory entry", id)
}

func (t *tx) DeleteEntry(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, `DELETE FROM inventory_entries WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete inventory entry", err)
	}
	return expectOne(res, "inventory entry", id)
}

func (t *tx) LockOpenSession(ctx context.Context) (*domain.CashSession, error) {
	return t.openSession(ctx, t.d.lock(`SELECT `+sessionColumns+` FROM cash_sessions WHERE closed_at IS NULL ORDER BY id LIMIT 1`))
}

func (t *tx) LockSession(ctx context.Context, id int64) (*domain.CashSession, error) {
	return t.getSession(ctx, t.d.lock(`SELECT `+sessionColumns+` FROM cash_sessions WHERE id = ?`), id)
}

func (t *tx) InsertSession(ctx context.Context, cs domain.CashSession) (int64, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO cash_sessions (opened_at, opening_float, closed_at, closing_balance, sales_total)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		cs.OpenedAt.UTC(), money(cs.OpeningFloat), nullTime(cs.ClosedAt), nullMoney(cs.ClosingBalance), money(cs.SalesTotal),
	).Scan(&id)
	if err != nil {
		if t.d.unique(err) {
			return 0, store.ErrSessionAlreadyOpen
		}
		return 0, storageErr("insert session", err)
	}
	return id, nil
}

func (t *tx) UpdateSession(ctx context.Context, cs domain.CashSession) error {
	res, err := t.exec(ctx, `
		UPDATE cash_sessions
		SET closed_at = ?, closing_balance = ?, sales_total = ?
		WHERE id = ?`,
		nullTime(cs.ClosedAt), nullMoney(cs.ClosingBalance), money(cs.SalesTotal), cs.ID,
	)
	if err != nil {
		return storageErr("update session", err)
	}
	return expectOne(res, "cash session", cs.ID)
}

// SessionSalesTotal adds the totals in Go so TEXT and NUMERIC columns sum the
// same way.
func (t *tx) SessionSalesTotal(ctx context.Context, sessionID int64) (decimal.Decimal, error) {
	rows, err := t.query(ctx, `SELECT total FROM sales WHERE session_id = ?`, sessionID)
	if err != nil {
		return decimal.Zero, storageErr("sum session sales", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, storageErr("sum session sales", err)
		}
		total = total.Add(v)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, storageErr("sum session sales", err)
	}
	return total, nil
}

func (t *tx) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	err := t.queryRow(ctx, `
		INSERT INTO sales (created_at, total, session_id)
		VALUES (?, ?, ?)
		RETURNING id`, sale.CreatedAt.UTC(), money(sale.Total), nullableID(sale.SessionID)).Scan(&sale.ID)
	if err != nil {
		return nil, storageErr("insert sale", err)
	}

	lines := make([]domain.SaleLine, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		line.SaleID = sale.ID
		err := t.queryRow(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, product_name, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			line.SaleID, line.ProductID, line.ProductName, line.Quantity, money(line.UnitPrice), money(line.Subtotal),
		).Scan(&line.ID)
		if err != nil {
			if t.d.foreignKey(err) {
				return nil, store.NotFound("product", line.ProductID)
			}
			return nil, storageErr("insert sale line", err)
		}
		lines = append(lines, line)
	}
	sale.Lines = lines
	return &sale, nil
}

func (t *tx) DeleteSale(ctx context.Context, id int64) error {
	if _, err := t.exec(ctx, `DELETE FROM sale_lines WHERE sale_id = ?`, id); err != nil {
		return storageErr("delete sale lines", err)
	}
	res, err := t.exec(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete sale", err)
	}
	return expectOne(res, "sale", id)
}

func (t *tx) InsertCancellation(ctx context.Context, rec domain.CancellationRecord) (int64, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO sale_cancellations (sale_id, session_id, sale_total, reason, cancelled_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		rec.SaleID, nullableID(rec.SessionID), money(rec.SaleTotal), rec.Reason, rec.CancelledAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, storageErr("insert cancellation", err)
	}
	return id, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffecter) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

func expectOne(res rowsAffecter, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}
