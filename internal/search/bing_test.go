package search

import "testing"

func TestIsBingInterstitialDetectsMarkers(t *testing.T) {
	if !isBingInterstitial("Please VERIFY YOU ARE A HUMAN to continue") {
		t.Fatal("expected interstitial marker to be detected case-insensitively")
	}
	if isBingInterstitial("<html>normal results page</html>") {
		t.Fatal("expected no interstitial on an ordinary page")
	}
}

func TestCleanBingHrefDecodesGLinkRedirect(t *testing.T) {
	href := "https://www.bing.com/aclick?GLinkRedirect=1&url=https%3A%2F%2Fexample.com%2Fpage"
	got := cleanBingHref(href)
	if want := "https://example.com/page"; got != want {
		t.Fatalf("cleanBingHref() = %q, want %q", got, want)
	}
}

func TestCleanBingHrefDecodesURLQueryParam(t *testing.T) {
	href := "https://www.bing.com/ck/a?u=abc&url=https%3A%2F%2Fexample.com%2Fthing"
	got := cleanBingHref(href)
	if want := "https://example.com/thing"; got != want {
		t.Fatalf("cleanBingHref() = %q, want %q", got, want)
	}
}

func TestCleanBingHrefLeavesPlainURLAlone(t *testing.T) {
	href := "https://example.com/direct"
	if got := cleanBingHref(href); got != href {
		t.Fatalf("cleanBingHref() = %q, want unchanged %q", got, href)
	}
}

func TestParseBingUsesAlgoLayerAndDedupes(t *testing.T) {
	html := `<div class="b_algo"><h2><a href="https://example.com/one">Result One Title</a></h2></div>
		<div class="b_algo"><h2><a href="https://example.com/one">Result One Title</a></h2></div>`
	results := parseBing(html)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (duplicate href should be deduped)", len(results))
	}
	if results[0].Source != "bing" {
		t.Fatalf("source = %q, want bing", results[0].Source)
	}
}

func TestParseBingSkipsShortTitles(t *testing.T) {
	html := `<div class="b_algo"><h2><a href="https://example.com/x">hi</a></h2></div>`
	results := parseBing(html)
	if len(results) != 0 {
		t.Fatalf("expected titles shorter than 5 chars to be skipped, got %+v", results)
	}
}
