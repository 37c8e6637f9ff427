package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleLineDetail struct {
	SaleID      int64           `json:"sale_id"`
	SoldAt      time.Time       `json:"sold_at"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type ProductTotal struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

type SessionReport struct {
	Session       CashSession      `json:"session"`
	SaleCount     int              `json:"sale_count"`
	FinalBalance  decimal.Decimal  `json:"final_balance"`
	Lines         []SaleLineDetail `json:"lines"`
	ProductTotals []ProductTotal   `json:"product_totals"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

type SaleReport struct {
	Sale          Sale             `json:"sale"`
	Lines         []SaleLineDetail `json:"lines"`
	ProductTotals []ProductTotal   `json:"product_totals"`
}

type ValuationLine struct {
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	Stock         int             `json:"stock"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Value         decimal.Decimal `json:"value"`
}

type InventoryValuation struct {
	Lines []ValuationLine `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Snapshot is a consistent copy of every ledger table.
type Snapshot struct {
	ExportedAt    time.Time            `json:"exported_at"`
	Products      []Product            `json:"products"`
	Entries       []InventoryEntry     `json:"inventory_entries"`
	Sessions      []CashSession        `json:"cash_sessions"`
	Sales         []Sale               `json:"sales"`
	SaleLines     []SaleLine           `json:"sale_lines"`
	Cancellations []CancellationRecord `json:"sale_cancellations"`
}

// DetailLines flattens the lines of the given sales in sale order.
func DetailLines(sales []Sale) []SaleLineDetail {
	out := make([]SaleLineDetail, 0, len(sales))
	for _, sale := range sales {
		for _, line := range sale.Lines {
			out = append(out, SaleLineDetail{
				SaleID:      sale.ID,
				SoldAt:      sale.CreatedAt,
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				Subtotal:    line.Subtotal,
			})
		}
	}
	return out
}

// TotalsByProduct aggregates quantity and subtotal per product, keeping the
// order in which products first appear.
func TotalsByProduct(lines []SaleLineDetail) []ProductTotal {
	index := make(map[int64]int, len(lines))
	out := make([]ProductTotal, 0, len(lines))
	for _, line := range lines {
		i, ok := index[line.ProductID]
		if !ok {
			index[line.ProductID] = len(out)
			out = append(out, ProductTotal{ProductID: line.ProductID, ProductName: line.ProductName, Total: decimal.Zero})
			i = len(out) - 1
		}
		out[i].Quantity += line.Quantity
		out[i].Total = out[i].Total.Add(line.Subtotal)
	}
	return out
}
