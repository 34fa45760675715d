package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"inventaris/backend/internal/domain"
	"inventaris/backend/internal/store"
	"inventaris/backend/internal/xid"
)

// serializationRetries bounds the automatic retry of transactions aborted
// with SQLSTATE 40001. Exhaustion surfaces store.ErrConflict.
const serializationRetries = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a serializable transaction, retrying bounded times on
// serialization failure so callers never see transient 40001 aborts.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	for attempt := 0; attempt < serializationRetries; attempt++ {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isSerializationFailure(err) {
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				continue
			}
			return err
		}
		return nil
	}
	return store.ErrConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// adjustStockTx is the single stock write path. It locks the item row,
// rejects decreases below zero, and returns the new on-hand quantity.
func adjustStockTx(ctx context.Context, tx *sql.Tx, itemID string, delta int) (int, error) {
	var current int
	err := tx.QueryRowContext(ctx, `
		SELECT stock FROM inventory_items WHERE id = $1 FOR UPDATE
	`, itemID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	next := current + delta
	if next < 0 {
		return 0, &store.InsufficientStockError{ItemID: itemID, Requested: -delta, Available: current}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_items SET stock = $2, updated_at = now() WHERE id = $1
	`, itemID, next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

// settleOrderTx recomputes the order total from its line set, re-derives
// status from total-paid, persists both, and returns the settled order.
// The order row must already be locked by the caller's transaction.
func settleOrderTx(ctx context.Context, tx *sql.Tx, orderID string) (*domain.Order, error) {
	order, err := getOrderTx(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}

	lines, err := listOrderLinesTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	order.Total = domain.OrderTotal(lines, order.Tax, order.Discount)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_orders
		SET total = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, order.ID, order.Total, order.Status)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func getOrderTx(ctx context.Context, tx *sql.Tx, orderID string, forUpdate bool) (*domain.Order, error) {
	query := `
		SELECT id, supplier_id, invoice, order_ts, tax, discount, total, total_paid, status, created_at
		FROM inventory_orders
		WHERE id = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var order domain.Order
	err := tx.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID,
		&order.SupplierID,
		&order.Invoice,
		&order.Timestamp,
		&order.Tax,
		&order.Discount,
		&order.Total,
		&order.TotalPaid,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.Timestamp = order.Timestamp.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	return &order, nil
}

func listOrderLinesTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, item_id, quantity, price, created_at
		FROM inventory_order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.Price, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.CreatedAt = line.CreatedAt.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) CreateItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Stock = 0

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, name, description, minimum_stock, stock, brand_id, type_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,now())
	`, item.ID, item.Name, item.Description, item.MinimumStock, item.BrandID, item.TypeID, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, minimum_stock, stock, brand_id, type_id, created_at
		FROM inventory_items
		WHERE id = $1
	`, itemID).Scan(&item.ID, &item.Name, &item.Description, &item.MinimumStock, &item.Stock, &item.BrandID, &item.TypeID, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, minimum_stock, stock, brand_id, type_id, created_at
		FROM inventory_items
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 128)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.MinimumStock, &item.Stock, &item.BrandID, &item.TypeID, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	var updated domain.InventoryItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET name = $2, description = $3, minimum_stock = $4, brand_id = $5, type_id = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, minimum_stock, stock, brand_id, type_id, created_at
	`, item.ID, item.Name, item.Description, item.MinimumStock, item.BrandID, item.TypeID).Scan(
		&updated.ID, &updated.Name, &updated.Description, &updated.MinimumStock, &updated.Stock, &updated.BrandID, &updated.TypeID, &updated.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT true FROM inventory_items WHERE id = $1 FOR UPDATE`, itemID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		var dependents int
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT count(*) FROM inventory_usages WHERE item_id = $1)
				 + (SELECT count(*) FROM inventory_order_lines WHERE item_id = $1)
		`, itemID).Scan(&dependents)
		if err != nil {
			return err
		}
		if dependents > 0 {
			return &store.InUseError{Entity: "inventory item", Dependents: dependents}
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, itemID)
		return err
	})
}

func (s *Store) AdjustStock(ctx context.Context, itemID string, delta int) (int, error) {
	var newStock int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		newStock, err = adjustStockTx(ctx, tx, itemID, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (s *Store) ListLowStockItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, minimum_stock, stock, brand_id, type_id, created_at
		FROM inventory_items
		WHERE stock <= minimum_stock
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 16)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.MinimumStock, &item.Stock, &item.BrandID, &item.TypeID, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, description, created_at) VALUES ($1,$2,$3,$4)
	`, brand.ID, brand.Name, brand.Description, brand.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *Store) UpdateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	var updated domain.Brand
	err := s.db.QueryRowContext(ctx, `
		UPDATE brands SET name = $2, description = $3 WHERE id = $1
		RETURNING id, name, description, created_at
	`, brand.ID, brand.Name, brand.Description).Scan(&updated.ID, &updated.Name, &updated.Description, &updated.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteBrand(ctx context.Context, brandID string) error {
	return s.deleteLookup(ctx, "brands", "brand", `SELECT count(*) FROM inventory_items WHERE brand_id = $1`, brandID)
}

func (s *Store) CreateItemType(ctx context.Context, itemType domain.ItemType) (*domain.ItemType, error) {
	if itemType.ID == "" {
		itemType.ID = xid.New("type")
	}
	if itemType.CreatedAt.IsZero() {
		itemType.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_types (id, name, description, created_at) VALUES ($1,$2,$3,$4)
	`, itemType.ID, itemType.Name, itemType.Description, itemType.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := itemType
	return &created, nil
}

func (s *Store) ListItemTypes(ctx context.Context) ([]domain.ItemType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM item_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.ItemType, 0, 32)
	for rows.Next() {
		var t domain.ItemType
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) UpdateItemType(ctx context.Context, itemType domain.ItemType) (*domain.ItemType, error) {
	var updated domain.ItemType
	err := s.db.QueryRowContext(ctx, `
		UPDATE item_types SET name = $2, description = $3 WHERE id = $1
		RETURNING id, name, description, created_at
	`, itemType.ID, itemType.Name, itemType.Description).Scan(&updated.ID, &updated.Name, &updated.Description, &updated.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteItemType(ctx context.Context, typeID string) error {
	return s.deleteLookup(ctx, "item_types", "item type", `SELECT count(*) FROM inventory_items WHERE type_id = $1`, typeID)
}

// deleteLookup deletes a lookup-table row after verifying nothing still
// references it, reporting the dependent count on refusal.
func (s *Store) deleteLookup(ctx context.Context, table string, entity string, countQuery string, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var dependents int
		if err := tx.QueryRowContext(ctx, countQuery, id).Scan(&dependents); err != nil {
			return err
		}
		if dependents > 0 {
			return &store.InUseError{Entity: entity, Dependents: dependents}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.Address, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Phone, &sp.Email, &sp.Address, &sp.CreatedAt); err != nil {
			return nil, err
		}
		sp.CreatedAt = sp.CreatedAt.UTC()
		suppliers = append(suppliers, sp)
	}
	return suppliers, rows.Err()
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, phone = $3, email = $4, address = $5 WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.Address)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, supplierID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var dependents int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM inventory_orders WHERE supplier_id = $1`, supplierID).Scan(&dependents); err != nil {
			return err
		}
		if dependents > 0 {
			return &store.InUseError{Entity: "supplier", Dependents: dependents}
		}

		// Payment methods are owned by the supplier and cascade with it.
		if _, err := tx.ExecContext(ctx, `DELETE FROM supplier_payment_methods WHERE supplier_id = $1`, supplierID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	if method.ID == "" {
		method.ID = xid.New("pm")
	}
	if method.CreatedAt.IsZero() {
		method.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supplier_payment_methods (id, supplier_id, name, account, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, method.ID, method.SupplierID, method.Name, method.Account, method.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := method
	return &created, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context, supplierID string) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, name, account, created_at
		FROM supplier_payment_methods
		WHERE ($1 = '' OR supplier_id = $1)
		ORDER BY name
	`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.SupplierID, &m.Name, &m.Account, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (s *Store) UpdatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	var updated domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		UPDATE supplier_payment_methods
		SET name = $2, account = $3
		WHERE id = $1
		RETURNING id, supplier_id, name, account, created_at
	`, method.ID, method.Name, method.Account).Scan(&updated.ID, &updated.SupplierID, &updated.Name, &updated.Account, &updated.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeletePaymentMethod(ctx context.Context, methodID string) error {
	return s.deleteLookup(ctx, "supplier_payment_methods", "payment method",
		`SELECT count(*) FROM inventory_order_payments WHERE method_id = $1`, methodID)
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusIncomplete
	order.Total = decimal.Zero
	order.TotalPaid = decimal.Zero
	order.Tax = decimal.Zero
	order.Discount = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_orders (id, supplier_id, invoice, order_ts, tax, discount, total, total_paid, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,0,0,0,$5,$6,now())
	`, order.ID, order.SupplierID, order.Invoice, order.Timestamp, order.Status, order.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, invoice, order_ts, tax, discount, total, total_paid, status, created_at
		FROM inventory_orders
		WHERE id = $1
	`, orderID).Scan(
		&order.ID, &order.SupplierID, &order.Invoice, &order.Timestamp,
		&order.Tax, &order.Discount, &order.Total, &order.TotalPaid,
		&order.Status, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.Timestamp = order.Timestamp.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, invoice, order_ts, tax, discount, total, total_paid, status, created_at
		FROM inventory_orders
		ORDER BY order_ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID, &order.SupplierID, &order.Invoice, &order.Timestamp,
			&order.Tax, &order.Discount, &order.Total, &order.TotalPaid,
			&order.Status, &order.CreatedAt,
		); err != nil {
			return nil, err
		}
		order.Timestamp = order.Timestamp.UTC()
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrderHeader(ctx context.Context, orderID string, req domain.OrderUpdateRequest) (*domain.Order, error) {
	var settled *domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		order, err := getOrderTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}

		if req.SupplierID != nil {
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

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_orders
			SET supplier_id = $2, invoice = $3, order_ts = $4, tax = $5, discount = $6, updated_at = now()
			WHERE id = $1
		`, order.ID, order.SupplierID, order.Invoice, order.Timestamp, order.Tax, order.Discount)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}

		settled, err = settleOrderTx(ctx, tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *Store) AddOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error) {
	if line.ID == "" {
		line.ID = xid.New("line")
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}

	var settled *domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getOrderTx(ctx, tx, line.OrderID, true); err != nil {
			return err
		}
		if _, err := adjustStockTx(ctx, tx, line.ItemID, line.Quantity); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_order_lines (id, order_id, item_id, quantity, price, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, line.OrderID, line.ItemID, line.Quantity, line.Price, line.CreatedAt)
		if err != nil {
			return err
		}

		settled, err = settleOrderTx(ctx, tx, line.OrderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	created := line
	return &created, settled, nil
}

func (s *Store) UpdateOrderLine(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, *domain.Order, error) {
	var settled *domain.Order
	var updated domain.OrderLine
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existing domain.OrderLine
		err := tx.QueryRowContext(ctx, `
			SELECT id, order_id, item_id, quantity, price, created_at
			FROM inventory_order_lines
			WHERE id = $1
			FOR UPDATE
		`, line.ID).Scan(&existing.ID, &existing.OrderID, &existing.ItemID, &existing.Quantity, &existing.Price, &existing.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if _, err := getOrderTx(ctx, tx, existing.OrderID, true); err != nil {
			return err
		}

		if line.ItemID == existing.ItemID {
			if _, err := adjustStockTx(ctx, tx, line.ItemID, line.Quantity-existing.Quantity); err != nil {
				return err
			}
		} else {
			// Item reference changed: reverse the old item, apply the new
			// one. The surrounding transaction keeps the pair atomic.
			if _, err := adjustStockTx(ctx, tx, existing.ItemID, -existing.Quantity); err != nil {
				return err
			}
			if _, err := adjustStockTx(ctx, tx, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_order_lines
			SET item_id = $2, quantity = $3, price = $4
			WHERE id = $1
		`, line.ID, line.ItemID, line.Quantity, line.Price)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}

		updated = existing
		updated.ItemID = line.ItemID
		updated.Quantity = line.Quantity
		updated.Price = line.Price

		settled, err = settleOrderTx(ctx, tx, existing.OrderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, settled, nil
}

func (s *Store) DeleteOrderLine(ctx context.Context, lineID string) (*domain.Order, error) {
	var settled *domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var line domain.OrderLine
		err := tx.QueryRowContext(ctx, `
			SELECT id, order_id, item_id, quantity
			FROM inventory_order_lines
			WHERE id = $1
			FOR UPDATE
		`, lineID).Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if _, err := getOrderTx(ctx, tx, line.OrderID, true); err != nil {
			return err
		}
		if _, err := adjustStockTx(ctx, tx, line.ItemID, -line.Quantity); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_order_lines WHERE id = $1`, lineID); err != nil {
			return err
		}

		settled, err = settleOrderTx(ctx, tx, line.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *Store) GetOrderLine(ctx context.Context, lineID string) (*domain.OrderLine, error) {
	var line domain.OrderLine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, item_id, quantity, price, created_at
		FROM inventory_order_lines
		WHERE id = $1
	`, lineID).Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.Price, &line.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	line.CreatedAt = line.CreatedAt.UTC()
	return &line, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, item_id, quantity, price, created_at
		FROM inventory_order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.Price, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.CreatedAt = line.CreatedAt.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error) {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	var updatedOrder *domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		order, err := getOrderTx(ctx, tx, payment.OrderID, true)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_order_payments (id, order_id, method_id, amount, paid_ts, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, payment.ID, payment.OrderID, payment.MethodID, payment.Amount, payment.Timestamp, payment.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}

		updatedOrder, err = applyPaidDeltaTx(ctx, tx, order, payment.Amount)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	created := payment
	return &created, updatedOrder, nil
}

// applyPaidDeltaTx moves the total-paid running sum by delta and re-derives
// status. Total-paid is an incremental counter on purpose: unlike the total,
// there is no cheap authoritative set to recompute it from inside every
// payment mutation.
func applyPaidDeltaTx(ctx context.Context, tx *sql.Tx, order *domain.Order, delta decimal.Decimal) (*domain.Order, error) {
	order.TotalPaid = order.TotalPaid.Add(delta)
	order.Status = domain.OrderStatus(order.Total, order.TotalPaid)

	_, err := tx.ExecContext(ctx, `
		UPDATE inventory_orders
		SET total_paid = $2, status = $3, updated_at = now()
		WHERE id = $1
	`, order.ID, order.TotalPaid, order.Status)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) UpdatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Order, error) {
	var updatedOrder *domain.Order
	var updated domain.Payment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existing domain.Payment
		err := tx.QueryRowContext(ctx, `
			SELECT id, order_id, method_id, amount, paid_ts, created_at
			FROM inventory_order_payments
			WHERE id = $1
			FOR UPDATE
		`, payment.ID).Scan(&existing.ID, &existing.OrderID, &existing.MethodID, &existing.Amount, &existing.Timestamp, &existing.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		order, err := getOrderTx(ctx, tx, existing.OrderID, true)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_order_payments
			SET method_id = $2, amount = $3, paid_ts = $4
			WHERE id = $1
		`, payment.ID, payment.MethodID, payment.Amount, payment.Timestamp)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}

		updated = existing
		updated.MethodID = payment.MethodID
		updated.Amount = payment.Amount
		updated.Timestamp = payment.Timestamp

		updatedOrder, err = applyPaidDeltaTx(ctx, tx, order, payment.Amount.Sub(existing.Amount))
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &updated, updatedOrder, nil
}

func (s *Store) DeletePayment(ctx context.Context, paymentID string) (*domain.Order, error) {
	var updatedOrder *domain.Order
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var payment domain.Payment
		err := tx.QueryRowContext(ctx, `
			SELECT id, order_id, amount
			FROM inventory_order_payments
			WHERE id = $1
			FOR UPDATE
		`, paymentID).Scan(&payment.ID, &payment.OrderID, &payment.Amount)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		order, err := getOrderTx(ctx, tx, payment.OrderID, true)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_order_payments WHERE id = $1`, paymentID); err != nil {
			return err
		}

		updatedOrder, err = applyPaidDeltaTx(ctx, tx, order, payment.Amount.Neg())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updatedOrder, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, method_id, amount, paid_ts, created_at
		FROM inventory_order_payments
		WHERE order_id = $1
		ORDER BY paid_ts ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.MethodID, &p.Amount, &p.Timestamp, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) CreateUsage(ctx context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error) {
	if usage.ID == "" {
		usage.ID = xid.New("usage")
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	var newStock int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		newStock, err = adjustStockTx(ctx, tx, usage.ItemID, -usage.Quantity)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_usages (id, item_id, user_id, quantity, used_ts, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, usage.ID, usage.ItemID, usage.UserID, usage.Quantity, usage.Timestamp, usage.CreatedAt)
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	created := usage
	return &created, newStock, nil
}

func (s *Store) UpdateUsage(ctx context.Context, usage domain.UsageRecord) (*domain.UsageRecord, int, error) {
	var newStock int
	var updated domain.UsageRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var existing domain.UsageRecord
		err := tx.QueryRowContext(ctx, `
			SELECT id, item_id, user_id, quantity, used_ts, created_at
			FROM inventory_usages
			WHERE id = $1
			FOR UPDATE
		`, usage.ID).Scan(&existing.ID, &existing.ItemID, &existing.UserID, &existing.Quantity, &existing.Timestamp, &existing.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		if usage.ItemID == existing.ItemID {
			// Restore the old quantity and consume the new one as a single
			// net delta against the pre-usage stock level.
			newStock, err = adjustStockTx(ctx, tx, usage.ItemID, existing.Quantity-usage.Quantity)
			if err != nil {
				return err
			}
		} else {
			if _, err = adjustStockTx(ctx, tx, existing.ItemID, existing.Quantity); err != nil {
				return err
			}
			newStock, err = adjustStockTx(ctx, tx, usage.ItemID, -usage.Quantity)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory_usages
			SET item_id = $2, user_id = $3, quantity = $4, used_ts = $5
			WHERE id = $1
		`, usage.ID, usage.ItemID, usage.UserID, usage.Quantity, usage.Timestamp)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}

		updated = existing
		updated.ItemID = usage.ItemID
		updated.UserID = usage.UserID
		updated.Quantity = usage.Quantity
		updated.Timestamp = usage.Timestamp
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &updated, newStock, nil
}

func (s *Store) DeleteUsage(ctx context.Context, usageID string) (int, error) {
	var newStock int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var usage domain.UsageRecord
		err := tx.QueryRowContext(ctx, `
			SELECT id, item_id, quantity
			FROM inventory_usages
			WHERE id = $1
			FOR UPDATE
		`, usageID).Scan(&usage.ID, &usage.ItemID, &usage.Quantity)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		newStock, err = adjustStockTx(ctx, tx, usage.ItemID, usage.Quantity)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM inventory_usages WHERE id = $1`, usageID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (s *Store) ListUsages(ctx context.Context, itemID string, limit int) ([]domain.UsageRecord, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, user_id, quantity, used_ts, created_at
		FROM inventory_usages
		WHERE ($1 = '' OR item_id = $1)
		ORDER BY used_ts DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := make([]domain.UsageRecord, 0, limit)
	for rows.Next() {
		var u domain.UsageRecord
		if err := rows.Scan(&u.ID, &u.ItemID, &u.UserID, &u.Quantity, &u.Timestamp, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Timestamp = u.Timestamp.UTC()
		u.CreatedAt = u.CreatedAt.UTC()
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidInput
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
