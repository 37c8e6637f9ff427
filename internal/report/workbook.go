// Package report renders ledger reports as workbooks and JSON dumps and hands
// them to a Sink.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"retailledger/internal/domain"
)

const (
	SheetSessionSummary = "Session Summary"
	SheetSale           = "Sale"
	SheetSaleLines      = "Sale Lines"
	SheetProductTotals  = "Product Totals"

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout      = "2006-01-02 15:04:05"
)

var (
	lineHeader  = []any{"Sale ID", "Sold At", "Product ID", "Product", "Quantity", "Unit Price", "Subtotal"}
	totalHeader = []any{"Product ID", "Product", "Quantity", "Total"}
)

// WriteSessionWorkbook writes the session summary, its sale lines and the
// per-product totals as three sheets.
func WriteSessionWorkbook(w io.Writer, r domain.SessionReport) error {
	closedAt, closingBalance := "", any("")
	if r.Session.ClosedAt != nil {
		closedAt = r.Session.ClosedAt.Format(timeLayout)
	}
	if r.Session.ClosingBalance.Valid {
		closingBalance = amount(r.Session.ClosingBalance.Decimal)
	}

	summary := [][]any{
		{"Session ID", r.Session.ID},
		{"Status", r.Session.Status()},
		{"Opened At", r.Session.OpenedAt.Format(timeLayout)},
		{"Opening Float", amount(r.Session.OpeningFloat)},
		{"Closed At", closedAt},
		{"Closing Balance", closingBalance},
		{"Sales Total", amount(r.Session.SalesTotal)},
		{"Sale Count", r.SaleCount},
		{"Final Balance", amount(r.FinalBalance)},
		{"Generated At", r.GeneratedAt.Format(timeLayout)},
	}
	return writeWorkbook(w, SheetSessionSummary, summary, r.Lines, r.ProductTotals)
}

func WriteSaleWorkbook(w io.Writer, r domain.SaleReport) error {
	session := any("")
	if r.Sale.SessionID != nil {
		session = *r.Sale.SessionID
	}
	header := [][]any{
		{"Sale ID", r.Sale.ID},
		{"Sold At", r.Sale.CreatedAt.Format(timeLayout)},
		{"Session ID", session},
		{"Lines", len(r.Sale.Lines)},
		{"Total", amount(r.Sale.Total)},
	}
	return writeWorkbook(w, SheetSale, header, r.Lines, r.ProductTotals)
}

func writeWorkbook(w io.Writer, first string, pairs [][]any, lines []domain.SaleLineDetail, totals []domain.ProductTotal) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", first); err != nil {
		return err
	}
	if err := writeRows(f, first, pairs); err != nil {
		return err
	}

	lineRows := make([][]any, 0, len(lines)+1)
	lineRows = append(lineRows, lineHeader)
	for _, l := range lines {
		lineRows = append(lineRows, []any{
			l.SaleID, l.SoldAt.Format(timeLayout), l.ProductID, l.ProductName,
			l.Quantity, amount(l.UnitPrice), amount(l.Subtotal),
		})
	}
	if err := newSheet(f, SheetSaleLines, lineRows); err != nil {
		return err
	}

	totalRows := make([][]any, 0, len(totals)+1)
	totalRows = append(totalRows, totalHeader)
	for _, t := range totals {
		totalRows = append(totalRows, []any{t.ProductID, t.ProductName, t.Quantity, amount(t.Total)})
	}
	if err := newSheet(f, SheetProductTotals, totalRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	_, err = f.WriteTo(w)
	return err
}

func newSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// amount keeps money numeric in the sheet.
func amount(d decimal.Decimal) float64 {
	return domain.RoundMoney(d).InexactFloat64()
}

// ObjectName builds a unique export name such as
// "session-3-20260302T090000Z-1b4e28ba.xlsx".
func ObjectName(kind string, id int64, at time.Time, ext string) string {
	stamp := at.UTC().Format("20060102T150405Z")
	suffix := newSuffix()
	if id > 0 {
		return fmt.Sprintf("%s-%d-%s-%s.%s", kind, id, stamp, suffix, ext)
	}
	return fmt.Sprintf("%s-%s-%s.%s", kind, stamp, suffix, ext)
}
