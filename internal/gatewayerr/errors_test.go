package gatewayerr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestHTTPStatusMapsEachKind(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("x"), 422},
		{AuthRequired("x"), 401},
		{AuthInvalid("x"), 401},
		{CreditExhausted("x"), 402},
		{SessionsExhausted("x", time.Second), 503},
		{UpstreamTransient("x", nil), 502},
		{UpstreamFatal("x", nil), 502},
		{NotFound("x"), 404},
		{Conflict("x"), 409},
		{Internal("x", nil), 500},
	}
	for _, c := range cases {
		if got := c.err.HTTPStatus(); got != c.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", c.err.Kind, got, c.want)
		}
	}
}

func TestChargesCreditDistinguishesNeverChargedKinds(t *testing.T) {
	neverCharged := []*Error{
		Validation("x"), AuthRequired("x"), AuthInvalid("x"),
		CreditExhausted("x"), SessionsExhausted("x", 0),
	}
	for _, e := range neverCharged {
		if e.ChargesCredit() {
			t.Errorf("%s.ChargesCredit() = true, want false", e.Kind)
		}
	}

	charged := []*Error{UpstreamTransient("x", nil), UpstreamFatal("x", nil), Internal("x", nil), NotFound("x")}
	for _, e := range charged {
		if !e.ChargesCredit() {
			t.Errorf("%s.ChargesCredit() = false, want true", e.Kind)
		}
	}
}

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("root cause")
	e := Internal("wrapper message", cause)
	got := e.Error()
	want := fmt.Sprintf("%s: %s: %v", KindInternal, "wrapper message", cause)
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestErrorMessageOmitsCauseWhenNil(t *testing.T) {
	e := NotFound("missing")
	if got := e.Error(); got != "not_found: missing" {
		t.Fatalf("Error() = %q, want %q", got, "not_found: missing")
	}
}

func TestAsUnwrapsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NotFound("inner"))
	ge, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if ge.Kind != KindNotFound {
		t.Fatalf("Kind = %q, want %q", ge.Kind, KindNotFound)
	}
}

func TestAsReturnsFalseForPlainError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Fatal("expected As to return false for a non-gatewayerr error")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	e := UpstreamFatal("x", cause)
	if !errors.Is(e, cause) {
		t.Fatal("expected errors.Is to find cause through Unwrap")
	}
}
