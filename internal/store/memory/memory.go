package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inventaris/backend/internal/domain"
	"inventaris/backend/internal/store"
	"inventaris/backend/internal/xid"
)

type Store struct {
	mu        sync.RWMutex
	items     map[string]domain.InventoryItem
	brands    map[string]domain.Brand
	types     map[string]domain.ItemType
	suppliers map[string]domain.Supplier
	methods   map[string]domain.PaymentMethod
	orders    map[string]domain.Order
	lines     map[string]domain.OrderLine
	payments  map[string]domain.Payment
	usages    map[string]domain.UsageRecord
	auditLogs []domain.AuditLog
	users     map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		items:     make(map[string]domain.InventoryItem),
		brands:    make(map[string]domain.Brand),
		types:     make(map[string]domain.ItemType),
		suppliers: make(map[string]domain.Supplier),
		methods:   make(map[string]domain.PaymentMethod),
		orders:    make(map[string]domain.Order),
		lines:     make(map[string]domain.OrderLine),
		payments:  make(map[string]domain.Payment),
		usages:    make(map[string]domain.UsageRecord),
		users:     make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; if unset,
// hardcoded dev defaults are used with a warning. These credentials are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	brands := []domain.Brand{
		{ID: "brand-generic", Name: "Generik", Description: "Merek umum", CreatedAt: now},
		{ID: "brand-prima", Name: "Prima", Description: "Pemasok utama dapur", CreatedAt: now},
	}
	types := []domain.ItemType{
		{ID: "type-raw", Name: "Bahan Baku", Description: "Bahan mentah dapur", CreatedAt: now},
		{ID: "type-packaging", Name: "Kemasan", Description: "Kotak, plastik, label", CreatedAt: now},
	}
	suppliers := []domain.Supplier{
		{ID: "sup-sumber-rejeki", Name: "CV Sumber Rejeki", Phone: "+628111000111", Email: "order@sumberrejeki.id", Address: "Jl. Pasar Induk 12", CreatedAt: now},
		{ID: "sup-tani-makmur", Name: "UD Tani Makmur", Phone: "+628111000222", Email: "sales@tanimakmur.id", Address: "Jl. Raya Ciawi 8", CreatedAt: now},
	}
	methods := []domain.PaymentMethod{
		{ID: "pm-sr-bca", SupplierID: "sup-sumber-rejeki", Name: "Transfer BCA", Account: "8320011223", CreatedAt: now},
		{ID: "pm-sr-cash", SupplierID: "sup-sumber-rejeki", Name: "Tunai", Account: "-", CreatedAt: now},
		{ID: "pm-tm-mandiri", SupplierID: "sup-tani-makmur", Name: "Transfer Mandiri", Account: "1440099887", CreatedAt: now},
	}
	items := []domain.InventoryItem{
		{ID: "item-tepung", Name: "Tepung Terigu 1kg", Description: "Protein sedang", MinimumStock: 20, Stock: 0, BrandID: "brand-generic", TypeID: "type-raw", CreatedAt: now},
		{ID: "item-gula", Name: "Gula Pasir 1kg", Description: "Gula kristal putih", MinimumStock: 15, Stock: 0, BrandID: "brand-generic", TypeID: "type-raw", CreatedAt: now},
		{ID: "item-minyak", Name: "Minyak Goreng 2L", Description: "Kemasan jerigen", MinimumStock: 10, Stock: 0, BrandID: "brand-prima", TypeID: "type-raw", CreatedAt: now},
		{ID: "item-box", Name: "Kotak Makan M", Description: "Kardus food grade", MinimumStock: 100, Stock: 0, BrandID: "brand-prima", TypeID: "type-packaging", CreatedAt: now},
	}

	for _, b := range brands {
		s.brands[b.ID] = b
	}
	for _, t := range types {
		s.types[t.ID] = t
	}
	for _, sp := range suppliers {
		s.suppliers[sp.ID] = sp
	}
	for _, m := range methods {
		s.methods[m.ID] = m
	}
	for _, it := range items {
		s.items[it.ID] = it
	}
	s.users = seedUsers()
	return s
}

func (s *Store) CreateItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if _, exists := s.items[item.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.brands[item.BrandID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.types[item.TypeID]; !ok {
		return nil, store.ErrNotFound
	}
	item.Stock = 0
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.items[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.brands[item.BrandID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.types[item.TypeID]; !ok {
		return nil, store.ErrNotFound
	}

	// Stock is owned by the ledger, never by a metadata update.
	item.Stock = existing.Stock
	item.CreatedAt = existing.CreatedAt
	s.items[item.ID] = item
	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[itemID]; !ok {
		return store.ErrNotFound
	}

	dependents := 0
	for _, usage := range s.usages {
		if usage.ItemID == itemID {
			dependents++
		}
	}
	for _, line := range s.lines {
		if line.ItemID == itemID {
			dependents++
		}
	}
	if dependents > 0 {
		return &store.InUseError{Entity: "inventory item", Dependents: dependents}
	}

	delete(s.items, itemID)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, itemID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustStockLocked(itemID, delta)
}

// adjustStockLocked is the single write path for item stock. Callers must
// hold s.mu.
func (s *Store) adjustStockLocked(itemID string, delta int) (int, error) {
	item, ok := s.items[itemID]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := item.Stock + delta
	if next < 0 {
		return 0, &store.InsufficientStockError{ItemID: itemID, Requested: -delta, Available: item.Stock}
	}
	item.Stock = next
	s.items[itemID] = item
	return next, nil
}

func (s *Store) ListLowStockItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	low := make([]domain.InventoryItem, 0, 8)
	for _, item := range s.items {
		if item.Stock <= item.MinimumStock {
			low = append(low, item)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Name < low[j].Name })
	return low, nil
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = time.Now().UTC()
	}
	s.brands[brand.ID] = brand
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	brands := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool { return brands[i].Name < brands[j].Name })
	return brands, nil
}

func (s *Store) UpdateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.brands[brand.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	brand.CreatedAt = existing.CreatedAt
	s.brands[brand.ID] = brand
	updated := brand
	return &updated, nil
}

func (s *Store) DeleteBrand(_ context.Context, brandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.brands[brandID]; !ok {
		return store.ErrNotFound
	}
	dependents := 0
	for _, item := range s.items {
		if item.BrandID == brandID {
			dependents++
		}
	}
	if dependents > 0 {
		return &store.InUseError{Entity: "brand", Dependents: dependents}
	}
	delete(s.brands, brandID)
	return nil
}

func (s *Store) CreateItemType(_ context.Context, itemType domain.ItemType) (*domain.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemType.ID == "" {
		itemType.ID = xid.New("type")
	}
	if itemType.CreatedAt.IsZero() {
		itemType.CreatedAt = time.Now().UTC()
	}
	s.types[itemType.ID] = itemType
	created := itemType
	return &created, nil
}

func (s *Store) ListItemTypes(_ context.Context) ([]domain.ItemType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]domain.ItemType, 0, len(s.types))
	for _, t := range s.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

func (s *Store) UpdateItemType(_ context.Context, itemType domain.ItemType) (*domain.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.types[itemType.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	itemType.CreatedAt = existing.CreatedAt
	s.types[itemType.ID] = itemType
	updated := itemType
	return &updated, nil
}

func (s *Store) DeleteItemType(_ context.Context, typeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[typeID]; !ok {
		return store.ErrNotFound
	}
	dependents := 0
	for _, item := range s.items {
		if item.TypeID == typeID {
			dependents++
		}
	}
	if dependents > 0 {
		return &store.InUseError{Entity: "item type", Dependents: dependents}
	}
	delete(s.types, typeID)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sp := range s.suppliers {
		suppliers = append(suppliers, sp)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.CreatedAt = existing.CreatedAt
	s.suppliers[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, supplierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[supplierID]; !ok {
		return store.ErrNotFound
	}
	dependents := 0
	for _, order := range s.orders {
		if order.SupplierID == supplierID {
			dependents++
		}
	}
	if dependents > 0 {
		return &store.InUseError{Entity: "supplier", Dependents: dependents}
	}
	for id, method := range s.methods {
		if method.SupplierID == supplierID {
			delete(s.methods, id)
		}
	}
	delete(s.suppliers, supplierID)
	return nil
}

func (s *Store) CreatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[method.SupplierID]; !ok {
		return nil, store.ErrNotFound
	}
	if method.ID == "" {
		method.ID = xid.New("pm")
	}
	if method.CreatedAt.IsZero() {
		method.CreatedAt = time.Now().UTC()
	}
	s.methods[method.ID] = method
	created := method
	return &created, nil
}

func (s *Store) ListPaymentMethods(_ context.Context, supplierID string) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	methods := make([]domain.PaymentMethod, 0, 4)
	for _, m := range s.methods {
		if supplierID == "" || m.SupplierID == supplierID {
			methods = append(methods, m)
		}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
	return methods, nil
}

func (s *Store) UpdatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.methods[method.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	method.SupplierID = existing.SupplierID
	method.CreatedAt = existing.CreatedAt
	s.methods[method.ID] = method
	updated := method
	return &updated, nil
}

func (s *Store) DeletePaymentMethod(_ context.Context, methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[methodID]; !ok {
		return store.ErrNotFound
	}
	dependents := 0
	for _, payment := range s.payments {
		if payment.MethodID == methodID {
			dependents++
		}
	}
	if dependents > 0 {
		return &store.InUseError{Entity: "payment method", Dependents: dependents}
	}
	delete(s.methods, methodID)
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[order.SupplierID]; !ok {
		return nil, store.ErrNotFound
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusIncomplete
	s.orders[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := order
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit < 1 {
		limit = 200
	}
	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp.After(orders[j].Timestamp) })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) UpdateOrderHeader(_ context.Context, orderID string, req domain.OrderUpdateRequest) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.SupplierID != nil {
		if _, ok := s.suppliers[*req.SupplierID]; !ok {
			return nil, store.ErrNotFound
		}
		order.SupplierID = *req.SupplierID
	}
	if req.Invoice != nil {
		order.Invoice = strings.TrimSpace(*req.Invoice)
	}
	if req.Timestamp != nil {
		order.Timestamp = req.Timestamp.UTC()
	}
	if req.Tax != nil {
		order.Tax = *req.Tax
	}
	if req.Discount != nil {
		order.Discount = *req.Discount
	}

	s.settleOrderLocked(&order)
	s.orders[order.ID] = order
	updated := order
	return &updated, nil
}

// settleOrderLocked recomputes total from the order's line set and re-derives
// status from total-paid. Callers must hold s.mu.
func (s *Store) settleOrderLocked(order *domain.Order) {
	order.Total = domain.OrderTotal(s.orderLinesLocked(order.ID), order.Tax, order.Discount)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)
}

func (s *Store) orderLinesLocked(orderID string) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, 8)
	for _, line := range s.lines {
		if line.OrderID == orderID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].CreatedAt.Before(lines[j].CreatedAt) })
	return lines
}

func (s *Store) AddOrderLine(_ context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[line.OrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if _, err := s.adjustStockLocked(line.ItemID, line.Quantity); err != nil {
		return nil, nil, err
	}

	if line.ID == "" {
		line.ID = xid.New("line")
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	s.lines[line.ID] = line

	s.settleOrderLocked(&order)
	s.orders[order.ID] = order

	createdLine := line
	updatedOrder := order
	return &createdLine, &updatedOrder, nil
}

func (s *Store) UpdateOrderLine(_ context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lines[line.ID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	order, ok := s.orders[existing.OrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}

	if line.ItemID == existing.ItemID {
		if _, err := s.adjustStockLocked(line.ItemID, line.Quantity-existing.Quantity); err != nil {
			return nil, nil, err
		}
	} else {
		// Item reference changed: treat as delete-old + add-new so both
		// items' counters stay truthful.
		if _, err := s.adjustStockLocked(existing.ItemID, -existing.Quantity); err != nil {
			return nil, nil, err
		}
		if _, err := s.adjustStockLocked(line.ItemID, line.Quantity); err != nil {
			// Roll the reversal back; nothing else has been written yet.
			_, _ = s.adjustStockLocked(existing.ItemID, existing.Quantity)
			return nil, nil, err
		}
	}

	line.OrderID = existing.OrderID
	line.CreatedAt = existing.CreatedAt
	s.lines[line.ID] = line

	s.settleOrderLocked(&order)
	s.orders[order.ID] = order

	updatedLine := line
	updatedOrder := order
	return &updatedLine, &updatedOrder, nil
}

func (s *Store) DeleteOrderLine(_ context.Context, lineID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order, ok := s.orders[line.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, err := s.adjustStockLocked(line.ItemID, -line.Quantity); err != nil {
		return nil, err
	}

	delete(s.lines, lineID)
	s.settleOrderLocked(&order)
	s.orders[order.ID] = order

	updated := order
	return &updated, nil
}

func (s *Store) GetOrderLine(_ context.Context, lineID string) (*domain.OrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.lines[lineID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := line
	return &found, nil
}

func (s *Store) ListOrderLines(_ context.Context, orderID string) ([]domain.OrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderLinesLocked(orderID), nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[payment.OrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if _, ok := s.methods[payment.MethodID]; !ok {
		return nil, nil, store.ErrNotFound
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.payments[payment.ID] = payment

	order.TotalPaid = order.TotalPaid.Add(payment.Amount)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)
	s.orders[order.ID] = order

	createdPayment := payment
	updatedOrder := order
	return &createdPayment, &updatedOrder, nil
}

func (s *Store) UpdatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.payments[payment.ID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	order, ok := s.orders[existing.OrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if _, ok := s.methods[payment.MethodID]; !ok {
		return nil, nil, store.ErrNotFound
	}

	payment.OrderID = existing.OrderID
	payment.CreatedAt = existing.CreatedAt
	s.payments[payment.ID] = payment

	order.TotalPaid = order.TotalPaid.Sub(existing.Amount).Add(payment.Amount)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)
	s.orders[order.ID] = order

	updatedPayment := payment
	updatedOrder := order
	return &updatedPayment, &updatedOrder, nil
}

func (s *Store) DeletePayment(_ context.Context, paymentID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order, ok := s.orders[payment.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}

	delete(s.payments, paymentID)
	order.TotalPaid = order.TotalPaid.Sub(payment.Amount)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)
	s.orders[order.ID] = order

	updated := order
	return &updated, nil
}

func (s *Store) ListPayments(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payments := make([]domain.Payment, 0, 4)
	for _, p := range s.payments {
		if p.OrderID == orderID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Timestamp.Before(payments[j].Timestamp) })
	return payments, nil
}

func (s *Store) CreateUsage(_ context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newStock, err := s.adjustStockLocked(usage.ItemID, -usage.Quantity)
	if err != nil {
		return nil, 0, err
	}

	if usage.ID == "" {
		usage.ID = xid.New("usage")
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.usages[usage.ID] = usage

	created := usage
	return &created, newStock, nil
}

func (s *Store) UpdateUsage(_ context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.usages[usage.ID]
	if !ok {
		return nil, 0, store.ErrNotFound
	}

	var newStock int
	var err error
	if usage.ItemID == existing.ItemID {
		// Un-consume the old quantity, then consume the new one, as a
		// single net delta.
		newStock, err = s.adjustStockLocked(usage.ItemID, existing.Quantity-usage.Quantity)
		if err != nil {
			return nil, 0, err
		}
	} else {
		if _, err = s.adjustStockLocked(existing.ItemID, existing.Quantity); err != nil {
			return nil, 0, err
		}
		newStock, err = s.adjustStockLocked(usage.ItemID, -usage.Quantity)
		if err != nil {
			_, _ = s.adjustStockLocked(existing.ItemID, -existing.Quantity)
			return nil, 0, err
		}
	}

	usage.CreatedAt = existing.CreatedAt
	s.usages[usage.ID] = usage

	updated := usage
	return &updated, newStock, nil
}

func (s *Store) DeleteUsage(_ context.Context, usageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, ok := s.usages[usageID]
	if !ok {
		return 0, store.ErrNotFound
	}
	newStock, err := s.adjustStockLocked(usage.ItemID, usage.Quantity)
	if err != nil {
		return 0, err
	}
	delete(s.usages, usageID)
	return newStock, nil
}

func (s *Store) ListUsages(_ context.Context, itemID string, limit int) ([]domain.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit < 1 {
		limit = 200
	}
	usages := make([]domain.UsageRecord, 0, 16)
	for _, u := range s.usages {
		if itemID == "" || u.ItemID == itemID {
			usages = append(usages, u)
		}
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].Timestamp.After(usages[j].Timestamp) })
	if len(usages) > limit {
		usages = usages[:limit]
	}
	return usages, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}
