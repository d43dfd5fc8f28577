package search

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// userAgents and acceptLanguages are the rotation pools spec.md §4.5 names
// for the shared HTTP fetch helper (7 UAs, 3 Accept-Language values).
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edg/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.8,fr;q=0.5",
}

const (
	fetchTimeout    = 20 * time.Second
	fetchMaxRetries = 2
)

var fetchBackoff = []time.Duration{time.Second, 2 * time.Second}

// httpFetch is the shared fetch helper every engine parser uses: rotates
// UA/Accept-Language, sets Connection: keep-alive, retries non-2xx or
// transport errors with exponential backoff.
func httpFetch(ctx context.Context, client *http.Client, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= fetchMaxRetries; attempt++ {
		body, err := doFetch(ctx, client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if attempt < fetchMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(fetchBackoff[attempt]):
			}
		}
	}
	return "", lastErr
}

func doFetch(ctx context.Context, client *http.Client, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
