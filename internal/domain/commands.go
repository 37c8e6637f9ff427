package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=2000"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	SalePrice     decimal.Decimal `json:"sale_price" validate:"gte=0"`
	Stock         int             `json:"stock" validate:"gte=0"`
	Category      string          `json:"category" validate:"max=100"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	Barcode       string          `json:"barcode" validate:"max=64"`
}

// ProductPatch updates only the fields that are set. An empty string clears
// the optional text fields; ClearExpiry removes the expiry date.
type ProductPatch struct {
	Name          *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	PurchasePrice *decimal.Decimal `json:"purchase_price" validate:"omitempty,gte=0"`
	SalePrice     *decimal.Decimal `json:"sale_price" validate:"omitempty,gte=0"`
	Stock         *int             `json:"stock" validate:"omitempty,gte=0"`
	Category      *string          `json:"category" validate:"omitempty,max=100"`
	ExpiryDate    *time.Time       `json:"expiry_date"`
	ClearExpiry   bool             `json:"clear_expiry"`
	Barcode       *string          `json:"barcode" validate:"omitempty,max=64"`
}

type ReceiveStockCommand struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
}

type AmendEntryCommand struct {
	EntryID  int64 `json:"entry_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"gte=0"`
}

type OpenSessionCommand struct {
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"gte=0"`
}

type CloseSessionCommand struct {
	// ClosingBalance is computed from the session's sales when nil.
	ClosingBalance *decimal.Decimal `json:"closing_balance" validate:"omitempty,gte=0"`
}

type CancelSaleCommand struct {
	SaleID int64  `json:"sale_id" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"max=500"`
}

type ProductFilter struct {
	Query    string
	Category string
	Barcode  string
}

type EntryFilter struct {
	ProductID int64
	Query     string
}

type SessionFilter struct {
	Status string
}

type SaleFilter struct {
	SessionID int64
	From      *time.Time
	To        *time.Time
}

type CancellationFilter struct {
	SessionID int64
}

type ForceDeleteResult struct {
	ProductID int64             `json:"product_id"`
	Removed   ProductReferences `json:"removed"`
}

type CartCheck struct {
	Lines []CartCheckLine `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type CartCheckLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Available   int             `json:"available"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}
