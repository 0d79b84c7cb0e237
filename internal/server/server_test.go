package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santrihub/dinwallet/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing (in-memory storage)
func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "development",
		LogLevel:             "error",
		DincoinDircoinRate:   100,
		PlatformFeeBps:       250,
		PlatformAccountID:    "platform",
		MaxTopupAmount:       1_000_000,
		MaxPurchaseAmount:    1_000_000,
		AdminUserIDs:         []string{"admin_1"},
		TopupLimitPerUser:    100,
		TopupLimitWindow:     time.Hour,
		PurchaseLimitPerUser: 100,
		PurchaseLimitWindow:  time.Hour,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestWalletRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	expected := map[string]bool{
		"GET:/v1/wallets/:userId/balance":   false,
		"GET:/v1/wallets/:userId/ledger":    false,
		"POST:/v1/topups":                   false,
		"GET:/v1/topups/:id":                false,
		"GET:/v1/users/:userId/topups":      false,
		"POST:/v1/purchases":                false,
		"GET:/v1/purchases/:id":             false,
		"GET:/v1/users/:userId/purchases":   false,
		"POST:/v1/admin/topups/:id/approve": false,
		"POST:/v1/admin/topups/:id/reject":  false,
		"GET:/v1/admin/topups":              false,
		"GET:/v1/admin/reconcile":           false,
	}

	for _, route := range s.router.Routes() {
		key := route.Method + ":" + route.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}

	for route, found := range expected {
		if !found {
			t.Errorf("Route %s not registered", route)
		}
	}
}

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end flow over the router
// ---------------------------------------------------------------------------

func TestTopupApprovalFlow(t *testing.T) {
	s := newTestServer(t)

	// Submit a top-up
	body := `{"userId":"usr_flow","currency":"dincoin","amount":50}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/topups", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var submitted struct {
		Topup struct {
			ID string `json:"id"`
		} `json:"topup"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	topupID := submitted.Topup.ID
	if topupID == "" {
		t.Fatal("Expected id in submission response")
	}

	// Approve it as an admin
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/admin/topups/"+topupID+"/approve", nil)
	req.Header.Set("X-Admin-User", "admin_1")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Balance reflects the credit plus the dircoin conversion
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/v1/wallets/usr_flow/balance", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var balance struct {
		Wallet struct {
			Dincoin int64 `json:"dincoin"`
			Dircoin int64 `json:"dircoin"`
		} `json:"wallet"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &balance); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if balance.Wallet.Dincoin != 50 {
		t.Errorf("Expected dincoin balance 50, got %d", balance.Wallet.Dincoin)
	}
	if balance.Wallet.Dircoin != 5000 {
		t.Errorf("Expected dircoin balance 5000, got %d", balance.Wallet.Dircoin)
	}
}

func TestAdminRequiresRole(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/admin/topups", nil)
	req.Header.Set("X-Admin-User", "usr_nobody")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
