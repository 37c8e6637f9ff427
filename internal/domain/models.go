package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Stock         int             `json:"stock"`
	Category      string          `json:"category,omitempty"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	Barcode       string          `json:"barcode,omitempty"`
}

// InventoryEntry is one stock receipt. Quantity is the delta it contributed to
// the product's stock counter.
type InventoryEntry struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	ReceivedAt time.Time `json:"received_at"`
}

type Sale struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Total     decimal.Decimal `json:"total"`
	SessionID *int64          `json:"session_id"`
	Lines     []SaleLine      `json:"lines"`
}

// SaleLine keeps the name and unit price the product had when the sale was
// committed. ProductID is a lookup key only; the product may be gone.
type SaleLine struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

type CashSession struct {
	ID             int64               `json:"id"`
	OpenedAt       time.Time           `json:"opened_at"`
	OpeningFloat   decimal.Decimal     `json:"opening_float"`
	ClosedAt       *time.Time          `json:"closed_at"`
	ClosingBalance decimal.NullDecimal `json:"closing_balance"`
	SalesTotal     decimal.Decimal     `json:"sales_total"`
}

func (s CashSession) IsOpen() bool {
	return s.ClosedAt == nil
}

func (s CashSession) Status() string {
	if s.IsOpen() {
		return SessionStatusOpen
	}
	return SessionStatusClosed
}

// CancellationRecord survives the sale it describes, so it carries the sale's
// total and session instead of referencing the deleted row.
type CancellationRecord struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	SessionID   *int64          `json:"session_id"`
	SaleTotal   decimal.Decimal `json:"sale_total"`
	Reason      string          `json:"reason"`
	CancelledAt time.Time       `json:"cancelled_at"`
}

// ProductReferences counts the ledger rows that block a plain delete.
type ProductReferences struct {
	Entries   int `json:"entries"`
	SaleLines int `json:"sale_lines"`
}

func (r ProductReferences) Any() bool {
	return r.Entries > 0 || r.SaleLines > 0
}
