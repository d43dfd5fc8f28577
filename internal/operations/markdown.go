package operations

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

// markdownPolicy is the HTML allowlist spec.md §4.4 requires for the
// Markdown runner: standard prose tags plus img[src|alt|title|width|
// height|loading] and the http/https/data URL schemes.
func markdownPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height", "loading").OnElements("img")
	p.AllowURLSchemes("http", "https", "data")
	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"strong", "b", "em", "i", "u", "s", "del", "mark", "small", "sub", "sup",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"table", "thead", "tbody", "tr", "th", "td",
		"a", "img",
		"div", "span",
	)
	return p
}

var (
	headingLevelRe   = regexp.MustCompile(`(?m)^(#{7,})\s`)
	protocolRelRe    = regexp.MustCompile(`\]\(//`)
	multiNewlineRe   = regexp.MustCompile(`\n{3,}`)
	wordRe           = regexp.MustCompile(`\b\w+\b`)
	emptyLinkTextRe  = regexp.MustCompile(`\[\]\([^)]*\)`)
	paragraphLineRe  = regexp.MustCompile(`(?m)^(.+)\n+(#{1,6}\s+.+)$`)
)

// RunMarkdown navigates url and returns the sanitized, converted markdown.
func (r *Runner) RunMarkdown(ctx context.Context, req CommonRequest) Envelope {
	pp, err := r.navigate(ctx, KindMarkdown, req.URL)
	if err != nil {
		return envelopeFromErr(err)
	}
	defer pp.Close()

	html, err := pp.page.HTML()
	if err != nil {
		return Failure(fmt.Sprintf("failed to read page HTML: %v", err))
	}

	sanitized := markdownPolicy().Sanitize(html)
	md, err := htmltomarkdown.ConvertString(sanitized)
	if err != nil {
		return Failure(fmt.Sprintf("failed to convert HTML to markdown: %v", err))
	}

	md = postProcessMarkdown(md)
	return Success(KindMarkdown, MarkdownResult{
		Markdown:  md,
		WordCount: len(wordRe.FindAllString(md, -1)),
	})
}

// postProcessMarkdown applies the transform pipeline named in spec.md
// §4.4: demote headings past level 6, rewrite protocol-relative link
// hrefs, drop paragraph-before-identical-heading duplicates, drop
// empty-text links, collapse duplicate consecutive paragraphs, drop a
// trailing URL-echo text node, collapse 3+ blank lines.
func postProcessMarkdown(md string) string {
	md = headingLevelRe.ReplaceAllString(md, "###### ")
	md = protocolRelRe.ReplaceAllString(md, "](https://")
	md = emptyLinkTextRe.ReplaceAllString(md, "")
	md = dropParagraphBeforeIdenticalHeading(md)
	md = collapseDuplicateParagraphs(md)
	md = dropTrailingURLEcho(md)
	md = multiNewlineRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

func dropParagraphBeforeIdenticalHeading(md string) string {
	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			headingText := strings.TrimLeft(next, "# ")
			if strings.HasPrefix(next, "#") && strings.TrimSpace(line) == strings.TrimSpace(headingText) {
				continue // drop the paragraph, keep the heading
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func collapseDuplicateParagraphs(md string) string {
	paragraphs := strings.Split(md, "\n\n")
	out := make([]string, 0, len(paragraphs))
	var prev string
	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed != "" && trimmed == prev {
			continue
		}
		out = append(out, para)
		prev = trimmed
	}
	return strings.Join(out, "\n\n")
}

// dropTrailingURLEcho removes a trailing text node that merely repeats
// the URL of the immediately preceding markdown link, e.g.
// "[Example](https://example.com)\nhttps://example.com".
func dropTrailingURLEcho(md string) string {
	lines := strings.Split(md, "\n")
	linkURLRe := regexp.MustCompile(`\]\(([^)]+)\)\s*$`)
	for i := 0; i < len(lines)-1; i++ {
		m := linkURLRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if strings.TrimSpace(lines[i+1]) == strings.TrimSpace(m[1]) {
			lines[i+1] = ""
		}
	}
	return strings.Join(lines, "\n")
}

func envelopeFromErr(err error) Envelope {
	return FailureFromErr(err)
}
