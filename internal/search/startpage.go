package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/weblinq/gateway/internal/selectors"
)

func searchStartpage(ctx context.Context, client *http.Client, query string) ([]Result, error) {
	reqURL := "https://www.startpage.com/sp/search?query=" + url.QueryEscape(query)
	body, err := httpFetch(ctx, client, reqURL)
	if err != nil {
		return nil, err
	}
	return parseStartpage(body), nil
}

// parseStartpage tries the layered result-block selectors, preferring the
// data-testid title link and falling back to any http(s) anchor; strips
// img/svg from a cloned link node before taking its text.
func parseStartpage(html string) []Result {
	sels := selectors.Get()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	blockSelector := strings.Join(sels.StartpageResult, ", ")
	var results []Result
	doc.Find(blockSelector).Each(func(_ int, block *goquery.Selection) {
		var link *goquery.Selection
		for _, preferred := range sels.StartpageTitleLink {
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
		if !ok || href == "" {
			return
		}

		clone := link.Clone()
		clone.Find("img, svg").Remove()
		title := strings.TrimSpace(clone.Text())
		if title == "" {
			return
		}

		snippet := strings.TrimSpace(block.Find("p, .description").First().Text())
		results = append(results, Result{Title: title, URL: href, Snippet: snippet, Source: "startpage"})
	})
	return results
}
