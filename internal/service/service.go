package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"inventaris/backend/internal/cache"
	"inventaris/backend/internal/domain"
	"inventaris/backend/internal/store"
)

// ErrForbidden is returned when the acting user lacks the role an operation
// requires.
var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	lowStock    cache.LowStockCache
	lowStockTTL time.Duration
}

func New(repo store.Repository, lowStock cache.LowStockCache, lowStockTTL time.Duration) *Service {
	if lowStock == nil {
		lowStock = cache.NoopLowStockCache{}
	}
	if lowStockTTL <= 0 {
		lowStockTTL = time.Minute
	}

	return &Service{
		repo:        repo,
		lowStock:    lowStock,
		lowStockTTL: lowStockTTL,
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != "admin" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	entry := domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// invalidateLowStock drops the cached low-stock report after any stock
// mutation. Failures only delay freshness until the TTL expires.
func (s *Service) invalidateLowStock(ctx context.Context) {
	if err := s.lowStock.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate low-stock cache: %v", err)
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetItem(ctx, itemID)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (*domain.InventoryItem, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.BrandID = strings.TrimSpace(req.BrandID)
	req.TypeID = strings.TrimSpace(req.TypeID)

	if req.Name == "" || req.BrandID == "" || req.TypeID == "" {
		return nil, store.ErrInvalidInput
	}
	if req.MinimumStock < 0 {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateItem(ctx, domain.InventoryItem{
		Name:         req.Name,
		Description:  req.Description,
		MinimumStock: req.MinimumStock,
		BrandID:      req.BrandID,
		TypeID:       req.TypeID,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "item_create", "item", created.ID, fmt.Sprintf("name=%s,min_stock=%d", created.Name, created.MinimumStock))
	s.invalidateLowStock(ctx)
	return created, nil
}

func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.ItemUpdateRequest) (*domain.InventoryItem, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.MinimumStock != nil {
		if *req.MinimumStock < 0 {
			return nil, store.ErrInvalidInput
		}
		updated.MinimumStock = *req.MinimumStock
	}
	if req.BrandID != nil {
		if strings.TrimSpace(*req.BrandID) == "" {
			return nil, store.ErrInvalidInput
		}
		updated.BrandID = strings.TrimSpace(*req.BrandID)
	}
	if req.TypeID != nil {
		if strings.TrimSpace(*req.TypeID) == "" {
			return nil, store.ErrInvalidInput
		}
		updated.TypeID = strings.TrimSpace(*req.TypeID)
	}

	result, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "item_update", "item", result.ID, fmt.Sprintf("name=%s,min_stock=%d", result.Name, result.MinimumStock))
	s.invalidateLowStock(ctx)
	return result, nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return err
	}

	s.logAudit(ctx, "item_delete", "item", itemID, "")
	s.invalidateLowStock(ctx)
	return nil
}

// LowStockReport returns every item at or below its minimum stock level,
// served from cache between stock mutations.
func (s *Service) LowStockReport(ctx context.Context) (*domain.LowStockReport, error) {
	if cached, ok, err := s.lowStock.Get(ctx); err != nil {
		log.Printf("[service] WARN: low-stock cache read failed: %v", err)
	} else if ok {
		return cached, nil
	}

	items, err := s.repo.ListLowStockItems(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.LowStockReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      make([]domain.LowStockAlert, 0, len(items)),
	}
	for _, item := range items {
		report.Alerts = append(report.Alerts, domain.LowStockAlert{
			ItemID:       item.ID,
			Name:         item.Name,
			Stock:        item.Stock,
			MinimumStock: item.MinimumStock,
		})
	}

	if err := s.lowStock.Set(ctx, report, s.lowStockTTL); err != nil {
		log.Printf("[service] WARN: low-stock cache write failed: %v", err)
	}
	return report, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) CreateBrand(ctx context.Context, req domain.LookupCreateRequest) (*domain.Brand, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBrand(ctx, domain.Brand{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "brand_create", "brand", created.ID, "name="+created.Name)
	return created, nil
}

func (s *Service) UpdateBrand(ctx context.Context, brandID string, req domain.LookupCreateRequest) (*domain.Brand, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	brandID = strings.TrimSpace(brandID)
	req.Name = strings.TrimSpace(req.Name)
	if brandID == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateBrand(ctx, domain.Brand{
		ID:          brandID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "brand_update", "brand", updated.ID, "name="+updated.Name)
	return updated, nil
}

func (s *Service) DeleteBrand(ctx context.Context, brandID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	brandID = strings.TrimSpace(brandID)
	if brandID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteBrand(ctx, brandID); err != nil {
		return err
	}

	s.logAudit(ctx, "brand_delete", "brand", brandID, "")
	return nil
}

func (s *Service) ListItemTypes(ctx context.Context) ([]domain.ItemType, error) {
	return s.repo.ListItemTypes(ctx)
}

func (s *Service) CreateItemType(ctx context.Context, req domain.LookupCreateRequest) (*domain.ItemType, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateItemType(ctx, domain.ItemType{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "type_create", "item_type", created.ID, "name="+created.Name)
	return created, nil
}

func (s *Service) UpdateItemType(ctx context.Context, typeID string, req domain.LookupCreateRequest) (*domain.ItemType, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	typeID = strings.TrimSpace(typeID)
	req.Name = strings.TrimSpace(req.Name)
	if typeID == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateItemType(ctx, domain.ItemType{
		ID:          typeID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "type_update", "item_type", updated.ID, "name="+updated.Name)
	return updated, nil
}

func (s *Service) DeleteItemType(ctx context.Context, typeID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	typeID = strings.TrimSpace(typeID)
	if typeID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteItemType(ctx, typeID); err != nil {
		return err
	}

	s.logAudit(ctx, "type_delete", "item_type", typeID, "")
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplierID string, req domain.SupplierCreateRequest) (*domain.Supplier, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	supplierID = strings.TrimSpace(supplierID)
	req.Name = strings.TrimSpace(req.Name)
	if supplierID == "" || req.Name == "" {
		return nil, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSupplier(ctx, domain.Supplier{
		ID:      supplierID,
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "supplier_update", "supplier", updated.ID, "name="+updated.Name)
	return updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, supplierID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	supplierID = strings.TrimSpace(supplierID)
	if supplierID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteSupplier(ctx, supplierID); err != nil {
		return err
	}

	s.logAudit(ctx, "supplier_delete", "supplier", supplierID, "")
	return nil
}

func (s *Service) ListPaymentMethods(ctx context.Context, supplierID string) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, strings.TrimSpace(supplierID))
}

func (s *Service) CreatePaymentMethod(ctx context.Context, supplierID string, req domain.PaymentMethodCreateRequest) (*domain.PaymentMethod, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	supplierID = strings.TrimSpace(supplierID)
	req.Name = strings.TrimSpace(req.Name)
	req.Account = strings.TrimSpace(req.Account)
	if supplierID == "" || req.Name == "" || req.Account == "" {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreatePaymentMethod(ctx, domain.PaymentMethod{
		SupplierID: supplierID,
		Name:       req.Name,
		Account:    req.Account,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "payment_method_create", "payment_method", created.ID, fmt.Sprintf("supplier=%s,name=%s", supplierID, created.Name))
	return created, nil
}

func (s *Service) UpdatePaymentMethod(ctx context.Context, methodID string, req domain.PaymentMethodCreateRequest) (*domain.PaymentMethod, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	methodID = strings.TrimSpace(methodID)
	req.Name = strings.TrimSpace(req.Name)
	req.Account = strings.TrimSpace(req.Account)
	if methodID == "" || req.Name == "" || req.Account == "" {
		return nil, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdatePaymentMethod(ctx, domain.PaymentMethod{
		ID:      methodID,
		Name:    req.Name,
		Account: req.Account,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "payment_method_update", "payment_method", updated.ID, "name="+updated.Name)
	return updated, nil
}

func (s *Service) DeletePaymentMethod(ctx context.Context, methodID string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}

	methodID = strings.TrimSpace(methodID)
	if methodID == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeletePaymentMethod(ctx, methodID); err != nil {
		return err
	}

	s.logAudit(ctx, "payment_method_delete", "payment_method", methodID, "")
	return nil
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.OrderResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.SupplierID = strings.TrimSpace(req.SupplierID)
	req.Invoice = strings.TrimSpace(req.Invoice)
	if req.SupplierID == "" || req.Invoice == "" {
		return nil, store.ErrInvalidInput
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		SupplierID: req.SupplierID,
		Invoice:    req.Invoice,
		Timestamp:  req.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("supplier=%s,invoice=%s", created.SupplierID, created.Invoice))
	return orderResponse(created), nil
}

func orderResponse(order *domain.Order) *domain.OrderResponse {
	return &domain.OrderResponse{
		Order:           *order,
		ProgressPercent: domain.PaymentProgress(order.Total, order.TotalPaid),
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidInput
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return orderResponse(order), nil
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.OrderResponse, error) {
	orders, err := s.repo.ListOrders(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, *orderResponse(&orders[i]))
	}
	return out, nil
}

func (s *Service) UpdateOrder(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (*domain.OrderResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidInput
	}
	if req.SupplierID != nil && strings.TrimSpace(*req.SupplierID) == "" {
		return nil, store.ErrInvalidInput
	}
	if req.Invoice != nil && strings.TrimSpace(*req.Invoice) == "" {
		return nil, store.ErrInvalidInput
	}
	if req.Tax != nil && req.Tax.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if req.Discount != nil && req.Discount.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateOrderHeader(ctx, orderID, req)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "order_update", "order", updated.ID, fmt.Sprintf("total=%s,status=%s", updated.Total.String(), updated.Status))
	return orderResponse(updated), nil
}

func (s *Service) ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListOrderLines(ctx, orderID)
}

func (s *Service) AddOrderLine(ctx context.Context, orderID string, req domain.OrderLineRequest) (*domain.OrderLineResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	orderID = strings.TrimSpace(orderID)
	req.ItemID = strings.TrimSpace(req.ItemID)
	if orderID == "" || req.ItemID == "" {
		return nil, store.ErrInvalidInput
	}
	if req.Quantity < 1 || req.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	line, order, err := s.repo.AddOrderLine(ctx, domain.OrderLine{
		OrderID:  orderID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "order_line_add", "order_line", line.ID, fmt.Sprintf("order=%s,item=%s,qty=%d", orderID, line.ItemID, line.Quantity))
	s.invalidateLowStock(ctx)
	return &domain.OrderLineResponse{Line: *line, Order: *order}, nil
}

func (s *Service) UpdateOrderLine(ctx context.Context, lineID string, req domain.OrderLineRequest) (*domain.OrderLineResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	lineID = strings.TrimSpace(lineID)
	req.ItemID = strings.TrimSpace(req.ItemID)
	if lineID == "" || req.ItemID == "" {
		return nil, store.ErrInvalidInput
	}
	if req.Quantity < 1 || req.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	line, order, err := s.repo.UpdateOrderLine(ctx, domain.OrderLine{
		ID:       lineID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "order_line_update", "order_line", line.ID, fmt.Sprintf("order=%s,item=%s,qty=%d", line.OrderID, line.ItemID, line.Quantity))
	s.invalidateLowStock(ctx)
	return &domain.OrderLineResponse{Line: *line, Order: *order}, nil
}

func (s *Service) DeleteOrderLine(ctx context.Context, lineID string) (*domain.OrderResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return nil, store.ErrInvalidInput
	}

	order, err := s.repo.DeleteOrderLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "order_line_delete", "order_line", lineID, "order="+order.ID)
	s.invalidateLowStock(ctx)
	return orderResponse(order), nil
}

func (s *Service) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, orderID)
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	req.OrderID = strings.TrimSpace(req.OrderID)
	req.MethodID = strings.TrimSpace(req.MethodID)
	if req.OrderID == "" || req.MethodID == "" {
		return nil, store.ErrInvalidInput
	}
	if !req.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	payment, order, err := s.repo.CreatePayment(ctx, domain.Payment{
		OrderID:   req.OrderID,
		MethodID:  req.MethodID,
		Amount:    req.Amount,
		Timestamp: req.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "payment_create", "payment", payment.ID, fmt.Sprintf("order=%s,amount=%s,status=%s", order.ID, payment.Amount.String(), order.Status))
	return &domain.PaymentResponse{Payment: *payment, Order: *order}, nil
}

func (s *Service) UpdatePayment(ctx context.Context, paymentID string, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	paymentID = strings.TrimSpace(paymentID)
	req.MethodID = strings.TrimSpace(req.MethodID)
	if paymentID == "" || req.MethodID == "" {
		return nil, store.ErrInvalidInput
	}
	if !req.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	payment, order, err := s.repo.UpdatePayment(ctx, domain.Payment{
		ID:        paymentID,
		MethodID:  req.MethodID,
		Amount:    req.Amount,
		Timestamp: req.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "payment_update", "payment", payment.ID, fmt.Sprintf("order=%s,amount=%s,status=%s", order.ID, payment.Amount.String(), order.Status))
	return &domain.PaymentResponse{Payment: *payment, Order: *order}, nil
}

func (s *Service) DeletePayment(ctx context.Context, paymentID string) (*domain.OrderResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, store.ErrInvalidInput
	}

	order, err := s.repo.DeletePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "payment_delete", "payment", paymentID, fmt.Sprintf("order=%s,status=%s", order.ID, order.Status))
	return orderResponse(order), nil
}

func (s *Service) ListUsages(ctx context.Context, itemID string, limit int) ([]domain.UsageRecord, error) {
	return s.repo.ListUsages(ctx, strings.TrimSpace(itemID), limit)
}

func (s *Service) CreateUsage(ctx context.Context, req domain.UsageRequest) (*domain.UsageResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	req.ItemID = strings.TrimSpace(req.ItemID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = actor.Username
	}
	if req.ItemID == "" || req.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	usage, stock, err := s.repo.CreateUsage(ctx, domain.UsageRecord{
		ItemID:    req.ItemID,
		UserID:    req.UserID,
		Quantity:  req.Quantity,
		Timestamp: req.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "usage_create", "usage", usage.ID, fmt.Sprintf("item=%s,qty=%d,stock=%d", usage.ItemID, usage.Quantity, stock))
	s.invalidateLowStock(ctx)
	return &domain.UsageResponse{Usage: *usage, Stock: stock}, nil
}

func (s *Service) UpdateUsage(ctx context.Context, usageID string, req domain.UsageRequest) (*domain.UsageResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}

	usageID = strings.TrimSpace(usageID)
	req.ItemID = strings.TrimSpace(req.ItemID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = actor.Username
	}
	if usageID == "" || req.ItemID == "" || req.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	usage, stock, err := s.repo.UpdateUsage(ctx, domain.UsageRecord{
		ID:        usageID,
		ItemID:    req.ItemID,
		UserID:    req.UserID,
		Quantity:  req.Quantity,
		Timestamp: req.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "usage_update", "usage", usage.ID, fmt.Sprintf("item=%s,qty=%d,stock=%d", usage.ItemID, usage.Quantity, stock))
	s.invalidateLowStock(ctx)
	return &domain.UsageResponse{Usage: *usage, Stock: stock}, nil
}

func (s *Service) DeleteUsage(ctx context.Context, usageID string) (*domain.DeleteResponse, error) {
	if _, err := s.requireActor(ctx); err != nil {
		return nil, err
	}

	usageID = strings.TrimSpace(usageID)
	if usageID == "" {
		return nil, store.ErrInvalidInput
	}

	stock, err := s.repo.DeleteUsage(ctx, usageID)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "usage_delete", "usage", usageID, fmt.Sprintf("stock=%d", stock))
	s.invalidateLowStock(ctx)
	return &domain.DeleteResponse{Success: true, Message: fmt.Sprintf("usage removed, stock restored to %d", stock)}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}
	if !from.Before(to) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.StaffUser, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	staff := make([]domain.StaffUser, 0, len(accounts))
	for _, acc := range accounts {
		staff = append(staff, domain.StaffUser{
			Username:  acc.Username,
			Role:      acc.Role,
			Active:    acc.Active,
			CreatedAt: acc.CreatedAt,
		})
	}
	return staff, nil
}
