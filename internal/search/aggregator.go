package search

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/metrics"
)

// Aggregator is SearchAggregator (spec.md §4.5).
type Aggregator struct {
	client      *http.Client
	rateLimiter *RateLimiter
	clock       clock.Clock
}

// NewAggregator constructs an Aggregator with its own HTTP client and
// rate limiter.
func NewAggregator(clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Aggregator{
		client:      &http.Client{Timeout: fetchTimeout + 5*time.Second},
		rateLimiter: NewRateLimiter(),
		clock:       clk,
	}
}

type engineFunc func(ctx context.Context, client *http.Client, query string) ([]Result, error)

var engines = map[string]engineFunc{
	"duckduckgo": searchDuckDuckGo,
	"startpage":  searchStartpage,
	"bing":       searchBing,
}

// Search fans the query out to all three engines with staggered starts,
// rate-limits per (clientIP, engine), and returns the deduped, reranked
// union. An empty union is reported as an error so the Gateway can build
// the "No search results" failure envelope.
func (a *Aggregator) Search(ctx context.Context, clientIP string, req Request) (Response, error) {
	start := a.clock.Now()

	type engineResult struct {
		name    string
		results []Result
	}

	var (
		mu      sync.Mutex
		fanned  []engineResult
		eg, egCtx = errgroup.WithContext(ctx)
	)

	for name, fn := range engines {
		name, fn := name, fn
		if !a.rateLimiter.Allow(clientIP, name) {
			continue
		}
		eg.Go(func() error {
			delay := engineStagger[name]
			select {
			case <-egCtx.Done():
				return nil
			case <-time.After(delay):
			}
			results, err := fn(egCtx, a.client, req.Query)
			if err != nil {
				metrics.RecordSearchRequest(name, "failure")
				// A single engine failing is not fatal to the fan-out; the
				// union is still useful with the remaining engines' results.
				return nil
			}
			metrics.RecordSearchRequest(name, "ok")
			mu.Lock()
			fanned = append(fanned, engineResult{name: name, results: results})
			mu.Unlock()
			return nil
		})
	}

	// Every Go func above swallows its own error, so this can only return
	// nil or a context-cancellation error from egCtx.
	_ = eg.Wait()

	var all []Result
	sourceSet := make(map[string]bool)
	for _, er := range fanned {
		if len(er.results) > 0 {
			sourceSet[er.name] = true
			all = append(all, er.results...)
		}
	}

	if len(all) == 0 {
		return Response{}, gatewayerr.UpstreamFatal("No search results", fmt.Errorf("all engines returned zero results"))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	ranked := dedupeAndRank(all, limit)

	sources := make([]string, 0, len(sourceSet))
	for s := range sourceSet {
		sources = append(sources, s)
	}

	return Response{
		Results: ranked,
		Metadata: Metadata{
			Sources:    sources,
			SearchTime: a.clock.Since(start).Milliseconds(),
		},
	}, nil
}
