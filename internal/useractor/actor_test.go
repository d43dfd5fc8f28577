package useractor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/weblinq/gateway/internal/clock"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	conn, err := openDB(filepath.Join(t.TempDir(), "user.db"))
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &Actor{userID: "u1", conn: conn, clock: clock.Real{}, cdnHost: "cdn.example.com"}
}

func insertRecord(t *testing.T, a *Actor, id, kind, filename string) {
	t.Helper()
	_, err := a.conn.ExecContext(context.Background(),
		`INSERT INTO permanent_files (id, kind, source_url, filename, object_key, public_url, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		id, kind, "https://example.com", filename, "key-"+id, "https://cdn.example.com/key-"+id, "{}",
	)
	if err != nil {
		t.Fatalf("insertRecord: %v", err)
	}
}

func TestGetFound(t *testing.T) {
	a := newTestActor(t)
	insertRecord(t, a, "f1", "pdf", "report.pdf")

	r, found, err := a.Get(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}
	if r.Filename != "report.pdf" {
		t.Fatalf("filename = %q, want report.pdf", r.Filename)
	}
}

func TestGetNotFound(t *testing.T) {
	a := newTestActor(t)
	_, found, err := a.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
}

func TestListFiltersByKind(t *testing.T) {
	a := newTestActor(t)
	insertRecord(t, a, "f1", "pdf", "a.pdf")
	insertRecord(t, a, "f2", "screenshot", "b.png")
	insertRecord(t, a, "f3", "pdf", "c.pdf")

	out, err := a.List(context.Background(), ListOptions{Kind: "pdf"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, r := range out {
		if r.Kind != "pdf" {
			t.Fatalf("unexpected kind %q in filtered results", r.Kind)
		}
	}
}

func TestListRejectsInvalidSortByAndOrder(t *testing.T) {
	a := newTestActor(t)
	insertRecord(t, a, "f1", "pdf", "a.pdf")

	// A malicious sort_by/order should be coerced to safe defaults rather
	// than interpolated into the query verbatim.
	injected := ListOptions{SortBy: "id; DROP TABLE permanent_files; --", Order: "desc; --"}
	out, err := a.List(context.Background(), injected)
	if err != nil {
		t.Fatalf("List with injection attempt should not error, got: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the table to survive and return 1 row, got %d", len(out))
	}

	// Confirm the table is still there for a second query.
	count, err := a.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("Count after injection attempt: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestCountWithAndWithoutKindFilter(t *testing.T) {
	a := newTestActor(t)
	insertRecord(t, a, "f1", "pdf", "a.pdf")
	insertRecord(t, a, "f2", "screenshot", "b.png")

	total, err := a.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}

	pdfCount, err := a.Count(context.Background(), "pdf")
	if err != nil {
		t.Fatalf("Count(pdf): %v", err)
	}
	if pdfCount != 1 {
		t.Fatalf("pdfCount = %d, want 1", pdfCount)
	}
}

func TestDeleteRemovesRowAndReportsNotFound(t *testing.T) {
	a := newTestActor(t)
	insertRecord(t, a, "f1", "pdf", "a.pdf")

	result, err := a.Delete(context.Background(), "f1", false)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !result.Found || !result.DeletedFromDB {
		t.Fatalf("unexpected delete result: %+v", result)
	}
	if result.DeletedFromStorage {
		t.Fatal("alsoFromStorage was false, DeletedFromStorage should be false")
	}

	result, err = a.Delete(context.Background(), "f1", false)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if result.Found {
		t.Fatal("expected Found=false on already-deleted record")
	}
}

func TestDisabledActorDegradesToEmptyReadsAndWriteErrors(t *testing.T) {
	a := newDisabledActor("u1", errors.New("store offline"), nil, clock.Real{}, "cdn.example.com")

	if _, found, err := a.Get(context.Background(), "f1"); err != nil || found {
		t.Fatalf("disabled Get should return (zero, false, nil), got found=%v err=%v", found, err)
	}
	if out, err := a.List(context.Background(), ListOptions{}); err != nil || out != nil {
		t.Fatalf("disabled List should return (nil, nil), got %v, %v", out, err)
	}
	if n, err := a.Count(context.Background(), ""); err != nil || n != 0 {
		t.Fatalf("disabled Count should return (0, nil), got %d, %v", n, err)
	}
	if _, err := a.Record(context.Background(), "pdf", "https://x.com", []byte("x"), "", "pdf"); err == nil {
		t.Fatal("disabled Record should return an error")
	}
	if _, err := a.Delete(context.Background(), "f1", false); err == nil {
		t.Fatal("disabled Delete should return an error")
	}
}

func TestExtensionAndContentTypeForKind(t *testing.T) {
	if got := extensionFor("pdf", ""); got != "pdf" {
		t.Fatalf("extensionFor(pdf) = %q, want pdf", got)
	}
	if got := extensionFor("screenshot", "webp"); got != "webp" {
		t.Fatalf("extensionFor(screenshot, webp) = %q, want webp", got)
	}
	if got := extensionFor("screenshot", ""); got != "png" {
		t.Fatalf("extensionFor(screenshot, '') = %q, want png", got)
	}
	if got := contentTypeFor("pdf", ""); got != "application/pdf" {
		t.Fatalf("contentTypeFor(pdf) = %q, want application/pdf", got)
	}
	if got := contentTypeFor("screenshot", "jpeg"); got != "image/jpeg" {
		t.Fatalf("contentTypeFor(screenshot, jpeg) = %q, want image/jpeg", got)
	}
}

func TestHostOfStripsSchemeAndPath(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path?q=1": "example.com",
		"http://sub.example.com":       "sub.example.com",
		"example.com/path":             "example.com", // no scheme to strip, but path still trimmed
	}
	for in, want := range cases {
		if got := hostOf(in); got != want {
			t.Fatalf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}
