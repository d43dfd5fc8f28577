package operations

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

// linksScript collects every a[href] anchor and classifies it internal vs
// external per spec.md §4.4: hostname match (after stripping a leading
// www.) is internal; unparseable hrefs are treated as relative (internal).
const linksScript = `(baseHref) => {
	const base = new URL(baseHref);
	const baseHost = base.hostname.replace(/^www\./, '');
	const anchors = Array.from(document.querySelectorAll('a[href]'));
	const out = [];
	for (const a of anchors) {
		const href = a.getAttribute('href');
		if (!href || !/^https?:\/\//i.test(href)) continue;
		let type = 'internal';
		try {
			const u = new URL(href, baseHref);
			const host = u.hostname.replace(/^www\./, '');
			type = host === baseHost ? 'internal' : 'external';
		} catch (e) {
			type = 'internal';
		}
		out.push({ url: href, text: (a.textContent || '').trim(), type });
	}
	return out;
}`

// RunLinks navigates url and extracts classified anchors.
func (r *Runner) RunLinks(ctx context.Context, req LinksRequest) Envelope {
	pp, err := r.navigate(ctx, KindLinks, req.URL)
	if err != nil {
		return envelopeFromErr(err)
	}
	defer pp.Close()

	var links []Link
	result, err := pp.page.Evaluate(rod.Eval(linksScript, req.URL).ByPromise())
	if err != nil {
		return Failure(fmt.Sprintf("failed to extract links: %v", err))
	}
	if err := result.Value.Unmarshal(&links); err != nil {
		return Failure(fmt.Sprintf("failed to parse extracted links: %v", err))
	}

	includeExternal := true
	if req.IncludeExternal != nil {
		includeExternal = *req.IncludeExternal
	}

	filtered, summary := filterLinks(links, includeExternal)
	return Success(KindLinks, LinksResult{Links: filtered, Metadata: summary})
}

// filterLinks applies the includeExternal option and tallies the
// internal/external counts over the full (unfiltered) set of links.
func filterLinks(links []Link, includeExternal bool) ([]Link, LinksSummary) {
	var filtered []Link
	internal, external := 0, 0
	for _, l := range links {
		if l.Type == "external" {
			external++
			if !includeExternal {
				continue
			}
		} else {
			internal++
		}
		filtered = append(filtered, l)
	}
	return filtered, LinksSummary{
		TotalLinks:    internal + external,
		InternalLinks: internal,
		ExternalLinks: external,
	}
}
