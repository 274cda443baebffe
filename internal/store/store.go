package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caixaforte/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError carries the availability detail the POS front end
// shows to the operator. It matches ErrInsufficientStock via errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CheckoutItem is one validated cart line handed to CreateCheckout.
// UnitPriceCents 0 means "use the product's current selling price".
type CheckoutItem struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

type CheckoutCommand struct {
	IdempotencyKey string
	Items          []CheckoutItem
	PaymentMethod  string
	DiscountCents  int64
	Notes          string
	CreatedBy      string
}

type CheckoutResult struct {
	Order       domain.Order
	Transaction domain.Transaction
	Replayed    bool
}

// Repository is the persistence boundary. The postgres implementation backs
// production; the memory implementation backs unit tests and demo mode.
//
// CreateCheckout and AdjustStock are atomic: either every write they describe
// lands or none does.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product, initialStock int) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSearchResult, error)

	ListStockRows(ctx context.Context, productID string) ([]domain.Stock, error)
	AdjustStock(ctx context.Context, productID string, newQuantity int, reason, reference, userID string) (*domain.StockAdjustResponse, error)
	ListStockMovements(ctx context.Context, filter domain.StockMovementFilter) ([]domain.StockMovement, int, error)
	ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error)

	CreateCheckout(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	ListCompletedTransactions(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
	CreateCashClosing(ctx context.Context, closing domain.CashClosing) (*domain.CashClosing, error)
	ListCashClosings(ctx context.Context, limit int) ([]domain.CashClosing, error)

	DashboardKPI(ctx context.Context, from, to time.Time) (*domain.DashboardKPI, error)
	// SalesTotalsByDay returns order totals grouped by UTC day ("2006-01-02"),
	// cancelled orders excluded.
	SalesTotalsByDay(ctx context.Context, from, to time.Time) (map[string]int64, error)
	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
