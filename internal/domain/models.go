package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusIncomplete = "INCOMPLETE"
	OrderStatusCompleted  = "COMPLETED"
)

type InventoryItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	MinimumStock int       `json:"minimum_stock"`
	Stock        int       `json:"stock"`
	BrandID      string    `json:"brand_id"`
	TypeID       string    `json:"type_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type ItemCreateRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	MinimumStock int    `json:"minimum_stock"`
	BrandID      string `json:"brand_id"`
	TypeID       string `json:"type_id"`
}

type ItemUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	MinimumStock *int    `json:"minimum_stock,omitempty"`
	BrandID      *string `json:"brand_id,omitempty"`
	TypeID       *string `json:"type_id,omitempty"`
}

type Brand struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ItemType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type LookupCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type PaymentMethod struct {
	ID         string    `json:"id"`
	SupplierID string    `json:"supplier_id"`
	Name       string    `json:"name"`
	Account    string    `json:"account"`
	CreatedAt  time.Time `json:"created_at"`
}

type PaymentMethodCreateRequest struct {
	Name    string `json:"name"`
	Account string `json:"account"`
}

// Order is a purchase order placed with a supplier. Total and TotalPaid are
// derived fields: Total is recomputed from the authoritative line set on every
// line or tax/discount mutation, TotalPaid is a running sum maintained by
// payment mutations. Status is always a pure function of TotalPaid vs Total.
type Order struct {
	ID         string          `json:"id"`
	SupplierID string          `json:"supplier_id"`
	Invoice    string          `json:"invoice"`
	Timestamp  time.Time       `json:"timestamp"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

type OrderCreateRequest struct {
	SupplierID string    `json:"supplier_id"`
	Invoice    string    `json:"invoice"`
	Timestamp  time.Time `json:"timestamp"`
}

type OrderUpdateRequest struct {
	SupplierID *string          `json:"supplier_id,omitempty"`
	Invoice    *string          `json:"invoice,omitempty"`
	Timestamp  *time.Time       `json:"timestamp,omitempty"`
	Tax        *decimal.Decimal `json:"tax,omitempty"`
	Discount   *decimal.Decimal `json:"discount,omitempty"`
}

type OrderLine struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

type OrderLineRequest struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderLineResponse struct {
	Line  OrderLine `json:"line"`
	Order Order     `json:"order"`
}

type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	MethodID  string          `json:"method_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}

type PaymentRequest struct {
	OrderID   string          `json:"order_id"`
	MethodID  string          `json:"method_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
	Order   Order   `json:"order"`
}

type UsageRecord struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	UserID    string    `json:"user_id"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

type UsageRequest struct {
	ItemID    string    `json:"item_id"`
	UserID    string    `json:"user_id"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

type UsageResponse struct {
	Usage UsageRecord `json:"usage"`
	Stock int         `json:"stock"`
}

type OrderResponse struct {
	Order           Order `json:"order"`
	ProgressPercent int   `json:"progress_percent"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type LowStockAlert struct {
	ItemID       string `json:"item_id"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	MinimumStock int    `json:"minimum_stock"`
}

type LowStockReport struct {
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
