package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/weblinq/gateway/internal/selectors"
)

const bingCaptchaWait = 5 * time.Second

func searchBing(ctx context.Context, client *http.Client, query string) ([]Result, error) {
	reqURL := "https://www.bing.com/search?q=" + url.QueryEscape(query)

	body, err := httpFetch(ctx, client, reqURL)
	if err != nil {
		return nil, err
	}

	if isBingInterstitial(body) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bingCaptchaWait):
		}
		body, err = httpFetch(ctx, client, reqURL)
		if err != nil {
			return nil, err
		}
		if isBingInterstitial(body) {
			return nil, nil
		}
	}

	return parseBing(body), nil
}

func isBingInterstitial(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range selectors.Get().BingCaptchaMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// parseBing runs the ordered parser-layer list from spec.md §4.5,
// returning the first non-empty result set. Titles shorter than 5
// characters are skipped; hrefs are deduped and cleaned of Bing redirects.
func parseBing(html string) []Result {
	sels := selectors.Get()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	layers := [][]string{sels.BingAlgo, sels.BingFallback, sels.BingGeneric}
	for _, layer := range layers {
		selector := strings.Join(layer, ", ")
		results := extractBingLayer(doc, selector)
		if len(results) > 0 {
			return results
		}
	}
	return nil
}

func extractBingLayer(doc *goquery.Document, selector string) []Result {
	seen := make(map[string]bool)
	var results []Result
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		title := strings.TrimSpace(a.Text())
		if len(title) < 5 {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = cleanBingHref(href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		results = append(results, Result{Title: title, URL: href, Source: "bing"})
	})
	return results
}

// cleanBingHref decodes Bing's GLinkRedirect wrapper or a ?url=/&url=
// query parameter when it points at an http(s) target.
func cleanBingHref(href string) string {
	if strings.Contains(href, "GLinkRedirect") {
		if idx := strings.Index(href, "url="); idx >= 0 {
			suffix := href[idx+len("url="):]
			if decoded, err := url.QueryUnescape(suffix); err == nil {
				return decoded
			}
			return suffix
		}
		return href
	}

	u, err := url.Parse(href)
	if err == nil {
		for _, key := range []string{"url"} {
			if v := u.Query().Get(key); v != "" && strings.HasPrefix(v, "http") {
				return v
			}
		}
	}
	return href
}
