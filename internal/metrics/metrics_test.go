package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	RecordRequest("markdown", "ok", 1*time.Second)
	UpdatePoolMetrics(3, 2, 1)
	UpdateSessionMetrics(1)
	RecordCreditCharge("markdown", 1)
	RecordSearchRequest("duckduckgo", "ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"gateway_session_pool_size",
		"gateway_session_pool_available",
		"gateway_active_sessions",
		"gateway_credits_charged_total",
		"gateway_search_requests_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.24")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "gateway_build_info") {
		t.Error("expected gateway_build_info metric")
	}
	if !strings.Contains(body, `version="1.0.0"`) {
		t.Error("expected version label in build_info")
	}
}
