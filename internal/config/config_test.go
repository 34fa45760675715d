package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOW_STOCK_TTL_SECONDS", "bogus")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LowStockTTLSeconds != 60 {
		t.Fatalf("expected low-stock TTL fallback 60, got %d", cfg.LowStockTTLSeconds)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}
