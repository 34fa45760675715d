package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", raw, err)
	}
	return d
}

func TestOrderTotal(t *testing.T) {
	lines := []OrderLine{
		{Quantity: 3, Price: dec(t, "1500.50")},
		{Quantity: 2, Price: dec(t, "999.99")},
	}

	total := OrderTotal(lines, dec(t, "650.25"), dec(t, "100"))
	// 3*1500.50 + 2*999.99 + 650.25 - 100
	if !total.Equal(dec(t, "7051.73")) {
		t.Fatalf("expected 7051.73, got %s", total)
	}

	empty := OrderTotal(nil, dec(t, "10"), dec(t, "2.5"))
	if !empty.Equal(dec(t, "7.5")) {
		t.Fatalf("empty line set still applies tax and discount, got %s", empty)
	}
}

func TestOrderStatusBoundaryIsInclusive(t *testing.T) {
	cases := []struct {
		total string
		paid  string
		want  string
	}{
		{"100", "99.99", OrderStatusIncomplete},
		{"100", "100", OrderStatusCompleted},
		{"100", "150", OrderStatusCompleted},
		{"0", "0", OrderStatusCompleted},
	}
	for _, tc := range cases {
		got := OrderStatus(dec(t, tc.total), dec(t, tc.paid))
		if got != tc.want {
			t.Fatalf("total=%s paid=%s: expected %s, got %s", tc.total, tc.paid, tc.want, got)
		}
	}
}

func TestPaymentProgress(t *testing.T) {
	cases := []struct {
		total string
		paid  string
		want  int
	}{
		{"0", "0", 0},
		{"200", "0", 0},
		{"200", "50", 25},
		{"300", "100", 33},
		{"300", "200", 67},
		{"200", "200", 100},
		{"200", "260", 130},
	}
	for _, tc := range cases {
		got := PaymentProgress(dec(t, tc.total), dec(t, tc.paid))
		if got != tc.want {
			t.Fatalf("total=%s paid=%s: expected %d, got %d", tc.total, tc.paid, tc.want, got)
		}
	}
}
