package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoFetchReturnsBodyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header to be set")
		}
		if r.Header.Get("Accept-Language") == "" {
			t.Error("expected an Accept-Language header to be set")
		}
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	body, err := doFetch(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("doFetch: %v", err)
	}
	if body != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
}

func TestDoFetchErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := doFetch(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHTTPFetchSucceedsWithoutRetryWhenFirstAttemptOK(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := httpFetch(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("httpFetch: %v", err)
	}
	if body != "ok" {
		t.Fatalf("body = %q, want %q", body, "ok")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry needed)", calls)
	}
}
