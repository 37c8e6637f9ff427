package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"retailledger/internal/domain"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateBarcode    = errors.New("duplicate barcode")
	ErrReferentialConflict = errors.New("referential conflict")
	ErrStockUnderflow      = errors.New("stock underflow")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNoOpenSession       = errors.New("no open cash session")
	ErrSessionAlreadyOpen  = errors.New("cash session already open")
	ErrEmptyCart           = errors.New("empty cart")
	ErrStorage             = errors.New("storage failure")
)

// EntityError ties a ledger error to the record that caused it.
type EntityError struct {
	Err    error
	Entity string
	ID     int64
	Detail string
}

func NewEntityError(err error, entity string, id int64, detail string) *EntityError {
	return &EntityError{Err: err, Entity: entity, ID: id, Detail: detail}
}

func (e *EntityError) Error() string {
	msg := e.Err.Error()
	if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s %d", msg, e.Entity, e.ID)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// StorageError wraps a driver failure. It matches ErrStorage.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NotFound returns an ErrNotFound for the given record.
func NotFound(entity string, id int64) error {
	return NewEntityError(ErrNotFound, entity, id, "")
}

// Reader is the read side shared by the repository and its transactions.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	FindProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CountProductReferences(ctx context.Context, productID int64) (domain.ProductReferences, error)
	GetEntry(ctx context.Context, id int64) (*domain.InventoryEntry, error)
	ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.InventoryEntry, error)
	GetOpenSession(ctx context.Context) (*domain.CashSession, error)
	GetSession(ctx context.Context, id int64) (*domain.CashSession, error)
	ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.CashSession, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListCancellations(ctx context.Context, filter domain.CancellationFilter) ([]domain.CancellationRecord, error)
}

// Tx is a unit of work. Every write made through it commits or rolls back
// together.
type Tx interface {
	Reader
	// LockProduct reads a product and holds it until the transaction ends.
	LockProduct(ctx context.Context, id int64) (*domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) (int64, error)
	// UpdateProduct writes every field except stock.
	UpdateProduct(ctx context.Context, product domain.Product) error
	SetProductStock(ctx context.Context, id int64, stock int) error
	DeleteProduct(ctx context.Context, id int64) error
	DeleteProductReferences(ctx context.Context, productID int64) (domain.ProductReferences, error)

	InsertEntry(ctx context.Context, entry domain.InventoryEntry) (int64, error)
	UpdateEntryQuantity(ctx context.Context, id int64, qty int) error
	DeleteEntry(ctx context.Context, id int64) error

	// LockOpenSession returns ErrNotFound when every session is closed.
	LockOpenSession(ctx context.Context) (*domain.CashSession, error)
	LockSession(ctx context.Context, id int64) (*domain.CashSession, error)
	InsertSession(ctx context.Context, session domain.CashSession) (int64, error)
	UpdateSession(ctx context.Context, session domain.CashSession) error
	SessionSalesTotal(ctx context.Context, sessionID int64) (decimal.Decimal, error)

	// InsertSale stores the sale and its lines and returns it with ids assigned.
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	InsertCancellation(ctx context.Context, record domain.CancellationRecord) (int64, error)
}

type Repository interface {
	Reader
	// WithinTx runs fn in one transaction. A non-nil error from fn rolls back.
	// fn may be invoked more than once when the backend retries a conflict.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
