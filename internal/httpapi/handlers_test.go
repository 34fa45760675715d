package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inventaris/backend/internal/cache"
	"inventaris/backend/internal/service"
	"inventaris/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopLowStockCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*").Handler()
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return body.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, token, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, "", http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, "", http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, "", http.MethodGet, "/api/v1/items", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestStaffCannotDeleteBrands(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, token, http.MethodDelete, "/api/v1/brands/brand-generic", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on brand delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, token, http.MethodPost, "/api/v1/orders", map[string]string{
		"supplier_id": "sup-sumber-rejeki",
		"invoice":     "INV-HTTP-001",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if created.Order.Status != "INCOMPLETE" {
		t.Fatalf("new order must be INCOMPLETE, got %s", created.Order.Status)
	}

	rec = doJSON(t, handler, token, http.MethodPost, "/api/v1/orders/"+created.Order.ID+"/lines", map[string]any{
		"item_id":  "item-tepung",
		"quantity": 10,
		"price":    "12500",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add line: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var lineResp struct {
		Order struct {
			Total string `json:"total"`
		} `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&lineResp); err != nil {
		t.Fatalf("decode line response: %v", err)
	}
	if lineResp.Order.Total != "125000" {
		t.Fatalf("expected total 125000, got %s", lineResp.Order.Total)
	}

	rec = doJSON(t, handler, token, http.MethodPost, "/api/v1/payments", map[string]any{
		"order_id":  created.Order.ID,
		"method_id": "pm-sr-bca",
		"amount":    "125000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payResp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payResp); err != nil {
		t.Fatalf("decode payment response: %v", err)
	}
	if payResp.Order.Status != "COMPLETED" {
		t.Fatalf("expected COMPLETED after full payment, got %s", payResp.Order.Status)
	}

	rec = doJSON(t, handler, token, http.MethodGet, "/api/v1/orders/"+created.Order.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", rec.Code)
	}
	var orderResp struct {
		ProgressPercent int `json:"progress_percent"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&orderResp); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	if orderResp.ProgressPercent != 100 {
		t.Fatalf("expected progress 100, got %d", orderResp.ProgressPercent)
	}
}

func TestUsageShortfallMapsTo422(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, token, http.MethodPost, "/api/v1/usages", map[string]any{
		"item_id":  "item-box",
		"quantity": 3,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for stock shortfall, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDeleteReferencedBrandMapsTo409(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, token, http.MethodDelete, "/api/v1/brands/brand-generic", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for referenced brand, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, token, http.MethodPost, "/api/v1/orders", map[string]string{
		"supplier_id": "sup-sumber-rejeki",
		"invoice":     "INV-STRICT-001",
		"surprise":    "field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestMissingOrderMapsTo404(t *testing.T) {
	handler := newTestAPI(t)
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, token, http.MethodGet, "/api/v1/orders/ord-missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler := newTestAPI(t)

	var last int
	for i := 0; i < 6; i++ {
		rec := doJSON(t, handler, "", http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "admin",
			"password": fmt.Sprintf("bad-%d", i),
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on sixth attempt, got %d", last)
	}
}
