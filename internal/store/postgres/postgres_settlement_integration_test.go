package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"inventaris/backend/internal/domain"
)

func TestOrderSettlementAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("INVENTARIS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set INVENTARIS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	brandID := fmt.Sprintf("brand-it-%d", stamp)
	typeID := fmt.Sprintf("type-it-%d", stamp)
	supplierID := fmt.Sprintf("sup-it-%d", stamp)
	methodID := fmt.Sprintf("pm-it-%d", stamp)
	itemID := fmt.Sprintf("item-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_order_payments WHERE method_id = $1`, methodID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_order_lines WHERE item_id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_orders WHERE supplier_id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM supplier_payment_methods WHERE id = $1`, methodID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM item_types WHERE id = $1`, typeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, brandID)
	})

	if _, err := s.CreateBrand(ctx, domain.Brand{ID: brandID, Name: "Brand IT " + brandID}); err != nil {
		t.Fatalf("create brand: %v", err)
	}
	if _, err := s.CreateItemType(ctx, domain.ItemType{ID: typeID, Name: "Type IT " + typeID}); err != nil {
		t.Fatalf("create type: %v", err)
	}
	if _, err := s.CreateSupplier(ctx, domain.Supplier{ID: supplierID, Name: "Supplier IT " + supplierID}); err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	if _, err := s.CreatePaymentMethod(ctx, domain.PaymentMethod{ID: methodID, SupplierID: supplierID, Name: "Transfer", Account: "123"}); err != nil {
		t.Fatalf("create method: %v", err)
	}
	if _, err := s.CreateItem(ctx, domain.InventoryItem{ID: itemID, Name: "Item IT " + itemID, MinimumStock: 5, BrandID: brandID, TypeID: typeID}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	order, err := s.CreateOrder(ctx, domain.Order{SupplierID: supplierID, Invoice: fmt.Sprintf("INV-IT-%d", stamp), Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	price := decimal.RequireFromString("12500")
	line, settled, err := s.AddOrderLine(ctx, domain.OrderLine{OrderID: order.ID, ItemID: itemID, Quantity: 8, Price: price})
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	if !settled.Total.Equal(decimal.RequireFromString("100000")) {
		t.Fatalf("expected total 100000, got %s", settled.Total)
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stock != 8 {
		t.Fatalf("expected stock 8 after line, got %d", item.Stock)
	}

	_, paid, err := s.CreatePayment(ctx, domain.Payment{OrderID: order.ID, MethodID: methodID, Amount: decimal.RequireFromString("100000"), Timestamp: time.Now().UTC()})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if paid.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected COMPLETED after full payment, got %s", paid.Status)
	}

	reverted, err := s.DeleteOrderLine(ctx, line.ID)
	if err != nil {
		t.Fatalf("delete line: %v", err)
	}
	if !reverted.Total.IsZero() {
		t.Fatalf("expected total 0 after line removal, got %s", reverted.Total)
	}

	item, err = s.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Stock != 0 {
		t.Fatalf("expected stock restored to 0, got %d", item.Stock)
	}
}
