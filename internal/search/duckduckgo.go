package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/weblinq/gateway/internal/selectors"
)

// ddgMutex and ddgLastCall enforce spec.md §4.5's "only one concurrent DDG
// call, 2s gap between successive calls" constraint process-wide.
var (
	ddgMutex    sync.Mutex
	ddgLastCall time.Time
)

const ddgMinGap = 2 * time.Second

func searchDuckDuckGo(ctx context.Context, client *http.Client, query string) ([]Result, error) {
	ddgMutex.Lock()
	defer ddgMutex.Unlock()

	if elapsed := time.Since(ddgLastCall); elapsed < ddgMinGap {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ddgMinGap - elapsed):
		}
	}
	defer func() { ddgLastCall = time.Now() }()

	liteURL := "https://lite.duckduckgo.com/lite/?q=" + url.QueryEscape(query)
	body, err := httpFetch(ctx, client, liteURL)
	if err != nil {
		return nil, err
	}
	results := parseDDGLite(body)
	if len(results) > 0 {
		return results, nil
	}

	fullURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	body, err = httpFetch(ctx, client, fullURL)
	if err != nil {
		return nil, err
	}
	return parseDDGFull(body), nil
}

// parseDDGLite parses the lite HTML endpoint's table rows, taking the
// first a[href] per row and unwrapping a leading /l/?uddg= redirect.
func parseDDGLite(html string) []Result {
	sels := selectors.Get()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var results []Result
	for _, rowSel := range sels.DuckDuckGoResultRows {
		doc.Find(rowSel).Each(func(_ int, row *goquery.Selection) {
			link := row.Find("a[href]").First()
			href, ok := link.Attr("href")
			if !ok || href == "" {
				return
			}
			href = unwrapDDGRedirect(href)
			title := strings.TrimSpace(link.Text())
			if title == "" || href == "" {
				return
			}
			results = append(results, Result{Title: title, URL: href, Source: "duckduckgo"})
		})
		if len(results) > 0 {
			break
		}
	}
	return results
}

// parseDDGFull parses the full HTML endpoint, preferring result-link
// anchors and falling back to any http(s) anchor within a result block.
func parseDDGFull(html string) []Result {
	sels := selectors.Get()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var results []Result
	blockSelector := strings.Join(sels.DuckDuckGoFullResult, ", ")
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		var link *goquery.Selection
		for _, preferred := range sels.DuckDuckGoLinkPreferred {
			if sel := block.Find(preferred).First(); sel.Length() > 0 {
				link = sel
				break
			}
		}
		if link == nil {
			block.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				if href, ok := a.Attr("href"); ok && strings.HasPrefix(href, "http") {
					link = a
					return false
				}
				return true
			})
		}
		if link == nil {
			return
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = unwrapDDGRedirect(href)
		snippet := strings.TrimSpace(block.Find(".result__snippet, .result-snippet").First().Text())
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}
		results = append(results, Result{Title: title, URL: href, Snippet: snippet, Source: "duckduckgo"})
	})
	return results
}

// unwrapDDGRedirect decodes a leading /l/?uddg= indirection link.
func unwrapDDGRedirect(href string) string {
	if !strings.Contains(href, "/l/?uddg=") && !strings.Contains(href, "uddg=") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
		return target
	}
	return href
}
