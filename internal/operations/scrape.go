package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
)

const maxScrapeElements = 50

// scrapeScript evaluates each requested selector in-page, returning up to
// maxScrapeElements matches with outerHTML, bounding rect, and filtered
// attributes (spec.md §4.4 Scrape).
const scrapeScript = `(elements, maxEls) => {
	const out = [];
	for (const el of elements) {
		const nodes = Array.from(document.querySelectorAll(el.selector)).slice(0, maxEls);
		for (const node of nodes) {
			const rect = node.getBoundingClientRect();
			const attrs = {};
			const names = el.attributes && el.attributes.length
				? el.attributes
				: Array.from(node.attributes).map(a => a.name);
			for (const name of names) {
				const v = node.getAttribute(name);
				if (v !== null) attrs[name] = v;
			}
			out.push({
				selector: el.selector,
				outerHtml: node.outerHTML,
				rect: { top: rect.top, left: rect.left, width: rect.width, height: rect.height },
				attributes: attrs,
			});
		}
	}
	return out;
}`

// RunScrape navigates with wait_until=networkidle and extracts elements
// matching each requested selector.
func (r *Runner) RunScrape(ctx context.Context, req ScrapeRequest) Envelope {
	pp, err := r.navigateNetworkIdle(ctx, KindScrape, req.URL)
	if err != nil {
		return envelopeFromErr(err)
	}
	defer pp.Close()

	if err := applyExtraHeaders(pp.page, req.Headers); err != nil {
		return Failure(fmt.Sprintf("failed to apply headers: %v", err))
	}

	settle(ctx, pp.page)

	type rawElement struct {
		Selector   string            `json:"selector"`
		OuterHTML  string            `json:"outerHtml"`
		Rect       Rect              `json:"rect"`
		Attributes map[string]string `json:"attributes"`
	}

	result, err := pp.page.Evaluate(rod.Eval(scrapeScript, req.Elements, maxScrapeElements).ByPromise())
	if err != nil {
		return Failure(fmt.Sprintf("failed to scrape elements: %v", err))
	}
	var raw []rawElement
	if err := result.Value.Unmarshal(&raw); err != nil {
		return Failure(fmt.Sprintf("failed to parse scraped elements: %v", err))
	}

	elements := make([]ScrapedElement, 0, len(raw))
	for _, re := range raw {
		elements = append(elements, ScrapedElement{
			Selector:   re.Selector,
			OuterHTML:  re.OuterHTML,
			Text:       outerHTMLToText(re.OuterHTML),
			Rect:       re.Rect,
			Attributes: re.Attributes,
		})
	}

	return Success(KindScrape, ScrapeResult{Elements: elements})
}

// outerHTMLToText converts one element's outerHTML to plain text per
// spec.md §4.4: headings rendered without uppercasing, list markers
// dropped, <li> rendered inline, all non-empty lines joined with ", ".
func outerHTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var lines []string
	var walk func(n *goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "#text" {
				text := strings.TrimSpace(node.Text())
				if text != "" {
					lines = append(lines, text)
				}
				return
			}
			switch goquery.NodeName(node) {
			case "li":
				text := strings.TrimSpace(node.Text())
				if text != "" {
					lines = append(lines, text)
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				text := strings.TrimSpace(node.Text())
				if text != "" {
					lines = append(lines, text)
				}
			case "ul", "ol":
				walk(node)
			default:
				walk(node)
			}
		})
	}
	walk(doc.Selection)

	return strings.Join(lines, ", ")
}
