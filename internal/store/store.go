package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventaris/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInUse             = errors.New("record in use")
	ErrConflict          = errors.New("concurrent update conflict")
)

// InsufficientStockError reports a rejected stock decrease together with the
// quantity the caller asked for and the stock that was actually available, so
// handlers can echo both back for display.
type InsufficientStockError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InUseError reports a refused deletion together with the number of dependent
// records that still reference the entity.
type InUseError struct {
	Entity     string
	Dependents int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("cannot delete %s: %d dependent record(s) exist", e.Entity, e.Dependents)
}

func (e *InUseError) Is(target error) bool {
	return target == ErrInUse
}

// Repository is the persistence contract for the reconciliation engine.
// Every method that touches stock or order totals executes as one atomic
// unit against the backing store: a mid-sequence rejection (for example an
// insufficient-stock check on a line edit) leaves no partial write.
type Repository interface {
	CreateItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error)
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	UpdateItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	DeleteItem(ctx context.Context, itemID string) error
	AdjustStock(ctx context.Context, itemID string, delta int) (int, error)
	ListLowStockItems(ctx context.Context) ([]domain.InventoryItem, error)

	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	UpdateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	DeleteBrand(ctx context.Context, brandID string) error
	CreateItemType(ctx context.Context, itemType domain.ItemType) (*domain.ItemType, error)
	ListItemTypes(ctx context.Context) ([]domain.ItemType, error)
	UpdateItemType(ctx context.Context, itemType domain.ItemType) (*domain.ItemType, error)
	DeleteItemType(ctx context.Context, typeID string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, supplierID string) error

	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context, supplierID string) ([]domain.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, methodID string) error

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	UpdateOrderHeader(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (*domain.Order, error)

	AddOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error)
	UpdateOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error)
	DeleteOrderLine(ctx context.Context, lineID string) (*domain.Order, error)
	GetOrderLine(ctx context.Context, lineID string) (*domain.OrderLine, error)
	ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error)

	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error)
	UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error)
	DeletePayment(ctx context.Context, paymentID string) (*domain.Order, error)
	ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error)

	CreateUsage(ctx context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error)
	UpdateUsage(ctx context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error)
	DeleteUsage(ctx context.Context, usageID string) (int, error)
	ListUsages(ctx context.Context, itemID string, limit int) ([]domain.UsageRecord, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
