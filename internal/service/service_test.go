package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retailledger/internal/domain"
	"retailledger/internal/store"
	"retailledger/internal/store/memory"
)

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	if opts.Now == nil {
		clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		opts.Now = func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}
	}
	return New(repo, opts), repo
}

func money(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func mustProduct(t *testing.T, svc *Service, name string, price string, stock int) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), domain.ProductInput{
		Name:          name,
		PurchasePrice: money(price).Div(decimal.NewFromInt(2)),
		SalePrice:     money(price),
		Stock:         stock,
	})
	require.NoError(t, err)
	return p
}

func mustOpen(t *testing.T, svc *Service, float string) domain.CashSession {
	t.Helper()
	session, err := svc.OpenSession(context.Background(), domain.OpenSessionCommand{OpeningFloat: money(float)})
	require.NoError(t, err)
	return session
}

func stockOf(t *testing.T, svc *Service, id int64) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestSaleAndCancelScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Widget", "10.00", 10)
	session := mustOpen(t, svc, "100.00")

	sale, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 3}))
	require.NoError(t, err)
	require.True(t, sale.Total.Equal(money("30.00")), "total %s", sale.Total)
	require.Equal(t, session.ID, *sale.SessionID)
	require.Len(t, sale.Lines, 1)
	require.Equal(t, "Widget", sale.Lines[0].ProductName)
	require.Equal(t, 7, stockOf(t, svc, product.ID))

	current, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, current.SalesTotal.Equal(money("30.00")))

	record, err := svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: sale.ID, Reason: "customer changed mind"})
	require.NoError(t, err)
	require.Equal(t, sale.ID, record.SaleID)
	require.True(t, record.SaleTotal.Equal(money("30.00")))
	require.Equal(t, 10, stockOf(t, svc, product.ID))

	current, err = svc.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, current.SalesTotal.IsZero(), "sales total %s", current.SalesTotal)

	_, err = svc.GetSale(ctx, sale.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	cancellations, err := svc.ListCancellations(ctx, domain.CancellationFilter{SessionID: session.ID})
	require.NoError(t, err)
	require.Len(t, cancellations, 1)
	require.Equal(t, "customer changed mind", cancellations[0].Reason)
}

func TestCommitSaleInsufficientStockWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	plenty := mustProduct(t, svc, "Plenty", "1.00", 50)
	scarce := mustProduct(t, svc, "Scarce", "4.00", 2)
	mustOpen(t, svc, "0")

	cart := domain.NewCart(
		domain.CartLine{ProductID: plenty.ID, Quantity: 5},
		domain.CartLine{ProductID: scarce.ID, Quantity: 5},
	)
	_, err := svc.CommitSale(ctx, cart)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var entityErr *store.EntityError
	require.True(t, errors.As(err, &entityErr))
	require.Equal(t, scarce.ID, entityErr.ID)

	require.Equal(t, 2, stockOf(t, svc, scarce.ID))
	require.Equal(t, 50, stockOf(t, svc, plenty.ID))
	sales, err := svc.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	require.Empty(t, sales)
}

func TestCommitSaleChecksOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Widget", "2.50", 4)

	_, err := svc.CommitSale(ctx, domain.NewCart())
	require.ErrorIs(t, err, store.ErrNoOpenSession)

	mustOpen(t, svc, "20")
	_, err = svc.CommitSale(ctx, domain.NewCart())
	require.ErrorIs(t, err, store.ErrEmptyCart)

	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 0}))
	require.ErrorIs(t, err, store.ErrValidation)

	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: 999, Quantity: 1}))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitSaleMergesCartAndUsesCommitTimePrice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Soda", "1.20", 10)
	mustOpen(t, svc, "0")

	cart := domain.NewCart()
	cart.Add(product.ID, 2)
	cart.Add(product.ID, 1)

	check, err := svc.CheckCart(ctx, cart)
	require.NoError(t, err)
	require.Len(t, check.Lines, 1)
	require.Equal(t, 3, check.Lines[0].Quantity)
	require.True(t, check.Total.Equal(money("3.60")))

	newPrice := money("1.50")
	_, err = svc.UpdateProduct(ctx, product.ID, domain.ProductPatch{SalePrice: &newPrice})
	require.NoError(t, err)

	sale, err := svc.CommitSale(ctx, cart)
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	require.Equal(t, 3, sale.Lines[0].Quantity)
	require.True(t, sale.Lines[0].UnitPrice.Equal(newPrice))
	require.True(t, sale.Total.Equal(money("4.50")))
}

func TestCommitSaleRevalidatesStockAfterCheck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Bread", "2.00", 3)
	mustOpen(t, svc, "0")

	cart := domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 3})
	_, err := svc.CheckCart(ctx, cart)
	require.NoError(t, err)

	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 2}))
	require.NoError(t, err)

	_, err = svc.CommitSale(ctx, cart)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.Equal(t, 1, stockOf(t, svc, product.ID))
}

func TestInventoryLedgerKeepsStockInStep(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Rice", "3.00", 5)

	first, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: 10})
	require.NoError(t, err)
	second, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: 4})
	require.NoError(t, err)
	require.Equal(t, 19, stockOf(t, svc, product.ID))

	amended, err := svc.AmendEntry(ctx, domain.AmendEntryCommand{EntryID: first.ID, Quantity: 6})
	require.NoError(t, err)
	require.Equal(t, 6, amended.Quantity)
	require.Equal(t, 15, stockOf(t, svc, product.ID))

	require.NoError(t, svc.RevokeEntry(ctx, second.ID))
	require.Equal(t, 11, stockOf(t, svc, product.ID))

	entries, err := svc.ListEntries(ctx, domain.EntryFilter{ProductID: product.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, first.ID, entries[0].ID)
	require.Equal(t, 6, entries[0].Quantity)
}

func TestInventoryLedgerRejectsUnderflow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Oil", "6.00", 0)
	mustOpen(t, svc, "0")

	entry, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 4}))
	require.NoError(t, err)

	_, err = svc.AmendEntry(ctx, domain.AmendEntryCommand{EntryID: entry.ID, Quantity: 2})
	require.ErrorIs(t, err, store.ErrStockUnderflow)
	err = svc.RevokeEntry(ctx, entry.ID)
	require.ErrorIs(t, err, store.ErrStockUnderflow)

	require.Equal(t, 1, stockOf(t, svc, product.ID))
	got, err := svc.ListEntries(ctx, domain.EntryFilter{ProductID: product.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 5, got[0].Quantity)
}

func TestInventoryLedgerValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Salt", "0.50", 1)

	_, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: 0})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: -3})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: 404, Quantity: 1})
	require.ErrorIs(t, err, store.ErrNotFound)

	entry, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AmendEntry(ctx, domain.AmendEntryCommand{EntryID: entry.ID, Quantity: -1})
	require.ErrorIs(t, err, store.ErrValidation)
	require.ErrorIs(t, svc.RevokeEntry(ctx, 404), store.ErrNotFound)
	require.Equal(t, 3, stockOf(t, svc, product.ID))
}

func TestStockEqualsOpeningPlusAppliedDeltas(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Tea", "2.00", 3)

	expected := 3
	var entries []domain.InventoryEntry
	for i, qty := range []int{5, 1, 7, 2} {
		entry, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: product.ID, Quantity: qty})
		require.NoError(t, err, "receipt %d", i)
		entries = append(entries, entry)
		expected += qty
	}
	for i, amendTo := range []int{0, 4} {
		_, err := svc.AmendEntry(ctx, domain.AmendEntryCommand{EntryID: entries[i].ID, Quantity: amendTo})
		require.NoError(t, err)
		expected += amendTo - entries[i].Quantity
		entries[i].Quantity = amendTo
	}
	require.NoError(t, svc.RevokeEntry(ctx, entries[2].ID))
	expected -= entries[2].Quantity

	require.Equal(t, expected, stockOf(t, svc, product.ID))
	require.GreaterOrEqual(t, expected, 0)
}

func TestSessionStateMachine(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})

	current, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, current)

	_, err = svc.CloseSession(ctx, domain.CloseSessionCommand{})
	require.ErrorIs(t, err, store.ErrNoOpenSession)

	first := mustOpen(t, svc, "50.00")
	_, err = svc.OpenSession(ctx, domain.OpenSessionCommand{OpeningFloat: money("10")})
	require.ErrorIs(t, err, store.ErrSessionAlreadyOpen)

	_, err = svc.OpenSession(ctx, domain.OpenSessionCommand{OpeningFloat: money("-1")})
	require.ErrorIs(t, err, store.ErrValidation)

	balance := money("42.10")
	closed, err := svc.CloseSession(ctx, domain.CloseSessionCommand{ClosingBalance: &balance})
	require.NoError(t, err)
	require.Equal(t, first.ID, closed.ID)
	require.False(t, closed.IsOpen())
	require.True(t, closed.ClosingBalance.Valid)
	require.True(t, closed.ClosingBalance.Decimal.Equal(balance))

	second := mustOpen(t, svc, "0")
	require.NotEqual(t, first.ID, second.ID)

	open, err := svc.ListSessions(ctx, domain.SessionFilter{Status: domain.SessionStatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, second.ID, open[0].ID)

	_, err = svc.ListSessions(ctx, domain.SessionFilter{Status: "paused"})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestCloseSessionComputesBalanceFromSessionSales(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Cake", "7.25", 20)

	mustOpen(t, svc, "100.00")
	for _, qty := range []int{1, 2, 4} {
		_, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: qty}))
		require.NoError(t, err)
	}
	closed, err := svc.CloseSession(ctx, domain.CloseSessionCommand{})
	require.NoError(t, err)
	require.True(t, closed.SalesTotal.Equal(money("50.75")), "sales total %s", closed.SalesTotal)
	require.True(t, closed.ClosingBalance.Decimal.Equal(money("150.75")))

	// A later session does not pick up the earlier sales.
	mustOpen(t, svc, "10.00")
	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 1}))
	require.NoError(t, err)
	closed, err = svc.CloseSession(ctx, domain.CloseSessionCommand{})
	require.NoError(t, err)
	require.True(t, closed.ClosingBalance.Decimal.Equal(money("17.25")))
}

func TestCancelSaleInClosedSessionClampsAndInvalidatesReport(t *testing.T) {
	ctx := context.Background()
	reports := newMapReportCache()
	svc, repo := newTestService(t, Options{Reports: reports})
	product := mustProduct(t, svc, "Juice", "5.00", 10)

	mustOpen(t, svc, "0")
	sale, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 2}))
	require.NoError(t, err)
	closed, err := svc.CloseSession(ctx, domain.CloseSessionCommand{})
	require.NoError(t, err)

	report, err := svc.SessionReport(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, report.SaleCount)
	require.Contains(t, reports.items, closed.ID)

	// Force the stored total under the sale total to exercise the clamp.
	require.NoError(t, repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		session, err := tx.LockSession(ctx, closed.ID)
		if err != nil {
			return err
		}
		session.SalesTotal = money("4.00")
		return tx.UpdateSession(ctx, *session)
	}))

	_, err = svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: sale.ID})
	require.NoError(t, err)
	require.NotContains(t, reports.items, closed.ID)

	after, err := svc.GetSession(ctx, closed.ID)
	require.NoError(t, err)
	require.True(t, after.SalesTotal.IsZero())
	require.True(t, after.ClosingBalance.Decimal.Equal(money("10.00")))
	require.Equal(t, 10, stockOf(t, svc, product.ID))
}

func TestCancelSaleUnknownAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})

	_, err := svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: 77})
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.CancelSale(ctx, domain.CancelSaleCommand{})
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestDeleteProductWithHistoryThenForceDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	doomed := mustProduct(t, svc, "Doomed", "3.00", 10)
	survivor := mustProduct(t, svc, "Survivor", "2.00", 10)
	mustOpen(t, svc, "0")

	_, err := svc.ReceiveStock(ctx, domain.ReceiveStockCommand{ProductID: doomed.ID, Quantity: 2})
	require.NoError(t, err)
	sale, err := svc.CommitSale(ctx, domain.NewCart(
		domain.CartLine{ProductID: doomed.ID, Quantity: 1},
		domain.CartLine{ProductID: survivor.ID, Quantity: 3},
	))
	require.NoError(t, err)

	err = svc.DeleteProduct(ctx, doomed.ID)
	require.ErrorIs(t, err, store.ErrReferentialConflict)
	var entityErr *store.EntityError
	require.True(t, errors.As(err, &entityErr))
	require.Equal(t, doomed.ID, entityErr.ID)

	result, err := svc.ForceDeleteProduct(ctx, doomed.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductReferences{Entries: 1, SaleLines: 1}, result.Removed)

	_, err = svc.GetProduct(ctx, doomed.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Equal(t, 7, stockOf(t, svc, survivor.ID))

	kept, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, kept.Lines, 1)
	require.Equal(t, survivor.ID, kept.Lines[0].ProductID)

	// Cancelling the surviving sale only restores the product that still exists.
	_, err = svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: sale.ID})
	require.NoError(t, err)
	require.Equal(t, 10, stockOf(t, svc, survivor.ID))
}

func TestDeleteProductWithoutHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Lonely", "1.00", 3)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))
	require.ErrorIs(t, svc.DeleteProduct(ctx, product.ID), store.ErrNotFound)
}

func TestProductBarcodeAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})

	first, err := svc.CreateProduct(ctx, domain.ProductInput{Name: "Cola", SalePrice: money("1.00"), Barcode: "ABC-1"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, domain.ProductInput{Name: "Other Cola", SalePrice: money("1.00"), Barcode: "ABC-1"})
	require.ErrorIs(t, err, store.ErrDuplicateBarcode)

	// Barcodes match case-sensitively.
	second, err := svc.CreateProduct(ctx, domain.ProductInput{Name: "Lemonade", SalePrice: money("1.00"), Barcode: "abc-1"})
	require.NoError(t, err)

	taken := "ABC-1"
	_, err = svc.UpdateProduct(ctx, second.ID, domain.ProductPatch{Barcode: &taken})
	require.ErrorIs(t, err, store.ErrDuplicateBarcode)
	_, err = svc.UpdateProduct(ctx, first.ID, domain.ProductPatch{Barcode: &taken})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, domain.ProductInput{Name: "", SalePrice: money("1.00")})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.CreateProduct(ctx, domain.ProductInput{Name: "Bad", SalePrice: money("-0.01")})
	require.ErrorIs(t, err, store.ErrValidation)
	_, err = svc.CreateProduct(ctx, domain.ProductInput{Name: "Bad", SalePrice: money("1"), Stock: -1})
	require.ErrorIs(t, err, store.ErrValidation)

	products, err := svc.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func TestCreateProductRoundsPrices(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	p, err := svc.CreateProduct(context.Background(), domain.ProductInput{
		Name:          "  Spaced  ",
		PurchasePrice: money("1.005"),
		SalePrice:     money("2.994"),
		Stock:         4,
	})
	require.NoError(t, err)
	require.Equal(t, "Spaced", p.Name)
	require.Equal(t, "1.01", p.PurchasePrice.StringFixed(2))
	require.Equal(t, "2.99", p.SalePrice.StringFixed(2))
	require.Equal(t, 4, p.Stock)
}

func TestUpdateProductStockGoesThroughLedgerCheck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	product := mustProduct(t, svc, "Pens", "0.90", 8)

	negative := -2
	_, err := svc.UpdateProduct(ctx, product.ID, domain.ProductPatch{Stock: &negative})
	require.ErrorIs(t, err, store.ErrValidation)

	three := 3
	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductPatch{Stock: &three, ClearExpiry: true})
	require.NoError(t, err)
	require.Equal(t, 3, updated.Stock)

	_, err = svc.UpdateProduct(ctx, 999, domain.ProductPatch{Stock: &three})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchProductsIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	mustProduct(t, svc, "Green Apple", "1.00", 1)
	mustProduct(t, svc, "Pineapple Juice", "2.00", 1)
	mustProduct(t, svc, "Banana", "0.50", 1)

	found, err := svc.SearchProducts(ctx, "APPLE")
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestInventoryValuation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	mustProduct(t, svc, "A", "4.00", 3)  // purchase 2.00
	mustProduct(t, svc, "B", "1.00", 10) // purchase 0.50

	valuation, err := svc.InventoryValuation(context.Background())
	require.NoError(t, err)
	require.Len(t, valuation.Lines, 2)
	require.True(t, valuation.Total.Equal(money("11.00")), "total %s", valuation.Total)
}

func TestReportsAndSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{})
	tea := mustProduct(t, svc, "Tea", "2.00", 10)
	cake := mustProduct(t, svc, "Cake", "3.50", 10)
	session := mustOpen(t, svc, "20.00")

	first, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: tea.ID, Quantity: 2}))
	require.NoError(t, err)
	_, err = svc.CommitSale(ctx, domain.NewCart(
		domain.CartLine{ProductID: tea.ID, Quantity: 1},
		domain.CartLine{ProductID: cake.ID, Quantity: 2},
	))
	require.NoError(t, err)

	report, err := svc.SessionReport(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 2, report.SaleCount)
	require.Len(t, report.Lines, 3)
	require.True(t, report.FinalBalance.Equal(money("33.00")), "final %s", report.FinalBalance)
	require.Len(t, report.ProductTotals, 2)
	require.Equal(t, tea.ID, report.ProductTotals[0].ProductID)
	require.Equal(t, 3, report.ProductTotals[0].Quantity)
	require.True(t, report.ProductTotals[0].Total.Equal(money("6.00")))

	saleReport, err := svc.SaleReport(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, saleReport.Lines, 1)

	_, err = svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: first.ID, Reason: "duplicate"})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 2)
	require.Len(t, snap.Sessions, 1)
	require.Len(t, snap.Sales, 1)
	require.Len(t, snap.SaleLines, 2)
	require.Len(t, snap.Cancellations, 1)
	require.False(t, snap.ExportedAt.IsZero())
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Options{Now: func() time.Time { return time.Now().UTC() }})
	product := mustProduct(t, svc, "Limited", "9.99", 5)
	mustOpen(t, svc, "0")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, sold)
	require.Equal(t, 7, rejected)
	require.Equal(t, 0, stockOf(t, svc, product.ID))

	current, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, current.SalesTotal.Equal(money("49.95")))
}

type mapReportCache struct {
	mu    sync.Mutex
	items map[int64]domain.SessionReport
}

func newMapReportCache() *mapReportCache {
	return &mapReportCache{items: map[int64]domain.SessionReport{}}
}

func (c *mapReportCache) Get(_ context.Context, id int64) (*domain.SessionReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.items[id]
	if !ok {
		return nil, false, nil
	}
	return &report, true, nil
}

func (c *mapReportCache) Set(_ context.Context, id int64, value *domain.SessionReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = *value
	return nil
}

func (c *mapReportCache) Delete(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	return nil
}
