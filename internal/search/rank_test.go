package search

import "testing"

func TestOriginPathKeyLowercasesSchemeAndHost(t *testing.T) {
	got := originPathKey("HTTPS://Example.COM/Path")
	if want := "https://example.com/path"; got != want {
		t.Fatalf("originPathKey() = %q, want %q", got, want)
	}
}

func TestOriginPathKeyFallsBackToRawURLOnParseError(t *testing.T) {
	raw := "http://[::1"
	if got := originPathKey(raw); got != raw {
		t.Fatalf("originPathKey() = %q, want raw input %q on parse error", got, raw)
	}
}

func TestHostBonusKnownDomains(t *testing.T) {
	cases := map[string]float64{
		"https://en.wikipedia.org/wiki/Go":     30,
		"https://stackoverflow.com/q/1":        25,
		"https://mit.edu/about":                15,
		"https://github.com/golang/go":         20,
		"https://example.com/nothing-special":  0,
	}
	for url, want := range cases {
		if got := hostBonus(url); got != want {
			t.Fatalf("hostBonus(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestDedupeAndRankMergesSameOriginPath(t *testing.T) {
	results := []Result{
		{Title: "A", URL: "https://example.com/page", Snippet: "short", Source: "duckduckgo"},
		{Title: "A dup", URL: "https://example.com/page?utm=1", Snippet: "short", Source: "bing"},
	}
	out := dedupeAndRank(results, 10)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1 (same origin+path should merge)", len(out))
	}
}

func TestDedupeAndRankRespectsLimit(t *testing.T) {
	results := []Result{
		{Title: "A", URL: "https://a.com/1", Source: "duckduckgo"},
		{Title: "B", URL: "https://b.com/2", Source: "duckduckgo"},
		{Title: "C", URL: "https://c.com/3", Source: "duckduckgo"},
	}
	out := dedupeAndRank(results, 2)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
}

func TestDedupeAndRankSortsByScoreDescending(t *testing.T) {
	results := []Result{
		{Title: "plain", URL: "https://example.com/plain", Snippet: "x", Source: "duckduckgo"},
		{Title: "wiki", URL: "https://en.wikipedia.org/wiki/Go", Snippet: "x", Source: "duckduckgo"},
	}
	out := dedupeAndRank(results, 10)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].URL != "https://en.wikipedia.org/wiki/Go" {
		t.Fatalf("expected the wikipedia hostBonus result ranked first, got %+v", out[0])
	}
}

func TestGroupByOriginPathPreservesFirstSeenOrder(t *testing.T) {
	results := []Result{
		{URL: "https://b.com/1"},
		{URL: "https://a.com/1"},
		{URL: "https://b.com/1"},
	}
	groups := groupByOriginPath(results)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Fatalf("expected the first group (b.com/1) to have 2 members, got %d", len(groups[0]))
	}
}
