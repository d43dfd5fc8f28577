package search

import "testing"

func TestParseStartpageExtractsTitleStrippingIcons(t *testing.T) {
	html := `<div class="result">
		<a data-testid="result-title-a" href="https://example.com/page"><svg>x</svg>Example Page</a>
		<p>a helpful description</p>
	</div>`
	results := parseStartpage(html)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.Title != "Example Page" {
		t.Fatalf("Title = %q, want %q (svg should be stripped)", r.Title, "Example Page")
	}
	if r.URL != "https://example.com/page" {
		t.Fatalf("URL = %q", r.URL)
	}
	if r.Snippet != "a helpful description" {
		t.Fatalf("Snippet = %q", r.Snippet)
	}
	if r.Source != "startpage" {
		t.Fatalf("Source = %q, want startpage", r.Source)
	}
}

func TestParseStartpageFallsBackToAnyHTTPAnchor(t *testing.T) {
	html := `<div class="result-item">
		<a href="https://example.com/fallback">Fallback Title</a>
	</div>`
	results := parseStartpage(html)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].URL != "https://example.com/fallback" {
		t.Fatalf("URL = %q", results[0].URL)
	}
}

func TestParseStartpageSkipsBlockWithoutAnyLink(t *testing.T) {
	html := `<div class="result"><p>no links here</p></div>`
	results := parseStartpage(html)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}
