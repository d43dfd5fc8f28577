// Package search implements SearchAggregator (spec.md §4.5): fans a query
// out to three independent engines in parallel with staggered starts,
// parses each with tolerant layered selectors, rate-limits per client IP,
// deduplicates and reranks the union.
package search

import "time"

// Result is one search hit, tagged with the engine that produced it.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"` // duckduckgo | startpage | bing
}

// Request is the validated /web/search input (spec.md §6).
type Request struct {
	Query string
	Limit int // [1,10], default 5 (v2 contract; see DESIGN.md Open Question)
}

// Response is the search envelope payload.
type Response struct {
	Results  []Result `json:"results"`
	Metadata Metadata `json:"metadata"`
}

// Metadata reports which engines contributed and how long the fan-out took.
type Metadata struct {
	Sources    []string `json:"sources"`
	SearchTime int64    `json:"searchTime"` // ms
}

// engineStagger is the per-engine start offset from spec.md §4.5: engine A
// at t=0, B at t+500ms, C at t+1000ms.
var engineStagger = map[string]time.Duration{
	"duckduckgo": 0,
	"startpage":  500 * time.Millisecond,
	"bing":       1000 * time.Millisecond,
}
