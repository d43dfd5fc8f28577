package operations

import "testing"

func TestFilterLinksExcludesExternalWhenDisabled(t *testing.T) {
	links := []Link{
		{URL: "https://example.com/a", Type: "internal"},
		{URL: "https://other.com/b", Type: "external"},
		{URL: "https://example.com/c", Type: "internal"},
	}

	filtered, summary := filterLinks(links, false)
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
	if summary.TotalLinks != 3 || summary.InternalLinks != 2 || summary.ExternalLinks != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestFilterLinksIncludesExternalByDefault(t *testing.T) {
	links := []Link{
		{URL: "https://example.com/a", Type: "internal"},
		{URL: "https://other.com/b", Type: "external"},
	}

	filtered, summary := filterLinks(links, true)
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
	if summary.TotalLinks != 2 || summary.InternalLinks != 1 || summary.ExternalLinks != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestFilterLinksCountsExternalEvenWhenExcluded(t *testing.T) {
	links := []Link{{URL: "https://other.com/b", Type: "external"}}

	filtered, summary := filterLinks(links, false)
	if len(filtered) != 0 {
		t.Fatalf("len(filtered) = %d, want 0", len(filtered))
	}
	if summary.ExternalLinks != 1 || summary.TotalLinks != 1 {
		t.Fatalf("external count should still be tallied even when excluded: %+v", summary)
	}
}
