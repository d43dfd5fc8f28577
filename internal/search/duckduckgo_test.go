package search

import "testing"

func TestUnwrapDDGRedirectDecodesUddgParam(t *testing.T) {
	href := "//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=abc"
	got := unwrapDDGRedirect(href)
	if want := "https://example.com/page"; got != want {
		t.Fatalf("unwrapDDGRedirect() = %q, want %q", got, want)
	}
}

func TestUnwrapDDGRedirectLeavesPlainURLAlone(t *testing.T) {
	href := "https://example.com/page"
	if got := unwrapDDGRedirect(href); got != href {
		t.Fatalf("unwrapDDGRedirect() = %q, want unchanged %q", got, href)
	}
}

func TestParseDDGLiteExtractsRowLinks(t *testing.T) {
	html := `<table>
		<tr><td><a href="https://example.com/one">Example One</a></td></tr>
		<tr><td><a href="">no href</a></td></tr>
	</table>`
	results := parseDDGLite(html)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Title != "Example One" || results[0].URL != "https://example.com/one" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if results[0].Source != "duckduckgo" {
		t.Fatalf("source = %q, want duckduckgo", results[0].Source)
	}
}

func TestParseDDGFullPrefersResultLinkAnchor(t *testing.T) {
	html := `<div class="result">
		<a class="result__a" href="https://example.com/best">Best Match</a>
		<a href="https://example.com/other">Other</a>
		<div class="result__snippet">a snippet</div>
	</div>`
	results := parseDDGFull(html)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].URL != "https://example.com/best" {
		t.Fatalf("URL = %q, want the preferred result__a anchor", results[0].URL)
	}
	if results[0].Snippet != "a snippet" {
		t.Fatalf("Snippet = %q, want %q", results[0].Snippet, "a snippet")
	}
}

func TestParseDDGLiteEmptyInputReturnsNil(t *testing.T) {
	if got := parseDDGLite(""); got != nil {
		t.Fatalf("expected nil for empty input, got %+v", got)
	}
}
