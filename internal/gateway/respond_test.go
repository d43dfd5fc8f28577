package gateway

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weblinq/gateway/internal/gatewayerr"
)

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 201, map[string]string{"ok": "yes"})

	if rec.Code != 201 {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["ok"] != "yes" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestValidationErrorWrites422(t *testing.T) {
	rec := httptest.NewRecorder()
	validationError(rec, "bad field")

	if rec.Code != 422 {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "bad field" {
		t.Fatalf("error = %q, want %q", body["error"], "bad field")
	}
}

func TestGatewayErrorMapsPlainErrorToInternalServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	gatewayError(rec, errors.New("boom"))

	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGatewayErrorMapsGatewayerrToItsHTTPStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	gatewayError(rec, gatewayerr.NotFound("missing"))

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGatewayErrorSetsRetryAfterOnSessionsExhausted(t *testing.T) {
	rec := httptest.NewRecorder()
	gatewayError(rec, gatewayerr.SessionsExhausted("no capacity", 3*time.Second))

	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Fatalf("Retry-After = %q, want %q", got, "3")
	}
}
