package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
	"retailledger/internal/service"
	"retailledger/internal/store"
)

func TestMigrateURLSwitchesScheme(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/ledger?sslmode=disable": "pgx5://u:p@db:5432/ledger?sslmode=disable",
		"postgresql://db/ledger":                        "pgx5://db/ledger",
		"pgx5://db/ledger":                              "pgx5://db/ledger",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactHidesCredentials(t *testing.T) {
	got := Redact("postgres://cashier:hunter2@db:5432/ledger")
	if got != "postgres://***@db:5432/ledger" {
		t.Fatalf("unexpected redaction %q", got)
	}
	if Redact("host=db") != "postgres" {
		t.Fatalf("expected bare driver name for DSNs without credentials")
	}
}

func TestDialectClassifiesErrorCodes(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !Dialect.IsUniqueViolation(wrapped) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if Dialect.IsForeignKeyViolation(wrapped) {
		t.Fatalf("23505 is not a foreign key violation")
	}
	if !Dialect.IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if Dialect.IsRetryable(errors.New("40001")) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestSaleAndCancelOnPostgres(t *testing.T) {
	databaseURL := os.Getenv("RETAILLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	repo, err := New(ctx, databaseURL, Options{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := service.New(repo, service.Options{})
	if current, err := svc.CurrentSession(ctx); err != nil {
		t.Fatalf("current session: %v", err)
	} else if current != nil {
		t.Skip("database already has an open cash session")
	}

	barcode := fmt.Sprintf("IT-%d", time.Now().UnixNano())
	product, err := svc.CreateProduct(ctx, domain.ProductInput{
		Name:      "Integration Widget",
		SalePrice: decimal.RequireFromString("2.50"),
		Stock:     6,
		Barcode:   barcode,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() { _, _ = svc.ForceDeleteProduct(ctx, product.ID) })

	if _, err := svc.OpenSession(ctx, domain.OpenSessionCommand{OpeningFloat: decimal.NewFromInt(20)}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _, _ = svc.CloseSession(ctx, domain.CloseSessionCommand{}) })

	sale, err := svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 4}))
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected total 10, got %s", sale.Total)
	}

	_, err = svc.CommitSale(ctx, domain.NewCart(domain.CartLine{ProductID: product.ID, Quantity: 3}))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if _, err := svc.CancelSale(ctx, domain.CancelSaleCommand{SaleID: sale.ID}); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	restored, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if restored.Stock != 6 {
		t.Fatalf("expected stock 6 after cancel, got %d", restored.Stock)
	}

	closed, err := svc.CloseSession(ctx, domain.CloseSessionCommand{})
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if !closed.ClosingBalance.Decimal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected closing balance 20, got %s", closed.ClosingBalance.Decimal)
	}
}
