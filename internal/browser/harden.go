package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/security"
)

// extraHardenScript covers the spec.md §4.3 patches that stealthScript
// (stealth.go) doesn't already apply: a
// deny-after-jitter getUserMedia, screen avail dims following the
// viewport, a battery shim, iframe contentWindow.navigator mirroring, and
// ≤1s jitter on Date.now()/performance.now(). Kept as a second payload
// string rather than folded into stealthScript so each patch's origin
// stays traceable against the spec's enumerated list.
const extraHardenScript = `
(() => {
    'use strict';
    if (window.__harden2Applied) return;
    window.__harden2Applied = true;
    try {
        // getUserMedia: deny after a short jitter, like a user dismissing a prompt
        if (navigator.mediaDevices && navigator.mediaDevices.getUserMedia) {
            const original = navigator.mediaDevices.getUserMedia.bind(navigator.mediaDevices);
            navigator.mediaDevices.getUserMedia = function(constraints) {
                return new Promise((resolve, reject) => {
                    const jitter = Math.floor(Math.random() * 400) + 100;
                    setTimeout(() => reject(new DOMException('Permission denied', 'NotAllowedError')), jitter);
                });
            };
        }

        // screen avail dims follow the viewport
        try {
            Object.defineProperty(screen, 'availWidth', { get: () => window.innerWidth, configurable: true });
            Object.defineProperty(screen, 'availHeight', { get: () => window.innerHeight, configurable: true });
        } catch (e) {}

        // battery: report a plausible charging laptop
        navigator.getBattery = () => Promise.resolve({
            charging: true, level: 1, chargingTime: 0, dischargingTime: Infinity,
            addEventListener: () => {}, removeEventListener: () => {}
        });

        // mirror navigator.webdriver=undefined into same-origin iframes created after load
        const patchIframe = (iframe) => {
            try {
                if (iframe.contentWindow && iframe.contentWindow.navigator) {
                    Object.defineProperty(iframe.contentWindow.navigator, 'webdriver', { get: () => undefined, configurable: true });
                }
            } catch (e) {}
        };
        const observer = new MutationObserver((mutations) => {
            for (const m of mutations) {
                for (const node of m.addedNodes) {
                    if (node.tagName === 'IFRAME') patchIframe(node);
                }
            }
        });
        if (document.documentElement) {
            observer.observe(document.documentElement, { childList: true, subtree: true });
        }

        // ≤1s jitter on Date.now()/performance.now(), stable per page load
        const jitterMs = Math.random() * 1000;
        const originalDateNow = Date.now;
        Date.now = () => originalDateNow() + jitterMs;
        if (window.performance && window.performance.now) {
            const originalPerfNow = window.performance.now.bind(window.performance);
            window.performance.now = () => originalPerfNow() + jitterMs;
        }
    } catch (e) {
        console.debug('[Harden2] patch failed:', e.message);
    }
})();
`

// viewports is the fixed whitelist of 6 desktop sizes spec.md §4.3 requires
// PageHarden to randomize from.
var viewports = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1600, 900},
	{1280, 800},
}

// RandomViewport returns one of the 6 whitelisted desktop viewport sizes.
func RandomViewport() (width, height int) {
	v := viewports[rand.Intn(len(viewports))]
	return v[0], v[1]
}

// desktopUA is the single desktop user agent PageHarden applies, paired
// with a consistent Accept*/sec-ch-ua*/sec-fetch-* header set.
const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// ApplyPageHarden runs the full PageHarden contract (spec.md §4.3) against
// a freshly obtained page, before navigation: UA + header set, a
// randomized whitelisted viewport, and the stealth JS payloads. It must be
// reapplied on every lease since a reused session's page may carry
// residual state from a prior operation.
func ApplyPageHarden(page *rod.Page) error {
	if err := ApplyStealthToPage(page); err != nil {
		return fmt.Errorf("stealth patch: %w", err)
	}
	if _, err := page.Evaluate(rod.Eval(extraHardenScript)); err != nil {
		log.Warn().Err(err).Msg("extra harden script had non-fatal errors, continuing")
	}

	if err := SetUserAgent(page, desktopUA); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := setHardenedHeaders(page); err != nil {
		return fmt.Errorf("set headers: %w", err)
	}

	width, height := RandomViewport()
	if err := SetViewport(page, width, height); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	return nil
}

// setHardenedHeaders installs the Accept*/sec-ch-ua*/sec-fetch-* header
// set consistent with desktopUA.
func setHardenedHeaders(page *rod.Page) error {
	headers := []string{
		"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language", "en-US,en;q=0.9",
		"Accept-Encoding", "gzip, deflate, br",
		"sec-ch-ua", `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		"sec-ch-ua-mobile", "?0",
		"sec-ch-ua-platform", `"Windows"`,
		"sec-fetch-dest", "document",
		"sec-fetch-mode", "navigate",
		"sec-fetch-site", "none",
		"sec-fetch-user", "?1",
		"upgrade-insecure-requests", "1",
	}
	_, err := proto.NetworkSetExtraHTTPHeaders{Headers: proto.NewNetworkHeaders(headers)}.Call(page)
	return err
}

// retryableSubstrings are the error-class markers spec.md §4.3 names for
// goto_with_retry: matched by substring, case-sensitive.
var retryableSubstrings = []string{
	"ERR_CONNECTION_CLOSED",
	"ERR_NETWORK_CHANGED",
	"ERR_CONNECTION_RESET",
	"ERR_TIMED_OUT",
	"net::ERR",
	"timeout",
}

func isRetryableNavError(err error) bool {
	msg := err.Error()
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// GotoWithRetry navigates a page with up to 3 attempts and exponential
// backoff (1s, 2s, 4s), per spec.md §4.3. It takes no wait-until argument:
// each attempt returns as soon as page.Navigate does, and a non-positive
// timeout defaults to 30s per attempt. Non-retryable errors surface as
// UpstreamFatal, exhausted attempts as UpstreamTransient, both wrapping the
// navigation error.
func GotoWithRetry(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

	// Resolve the target and pin its IP before the first attempt. The retry loop's
	// backoff can put seconds between attempts, which is enough time for an
	// attacker-controlled DNS record to start pointing at an internal
	// address after the request first passed validation.
	_, pinnedIP, err := security.ValidateAndResolveURLWithContext(ctx, url)
	if err != nil {
		return gatewayerr.UpstreamFatal("navigation target rejected", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			if err := security.ValidateURLWithPinnedIPContext(ctx, url, pinnedIP); err != nil {
				return gatewayerr.UpstreamFatal("navigation target changed between retries", err)
			}
		}
		navCtx, cancel := context.WithTimeout(ctx, timeout)
		err := page.Context(navCtx).Navigate(url)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableNavError(err) {
			return gatewayerr.UpstreamFatal("navigation failed", err)
		}
		if attempt < len(backoff) {
			select {
			case <-ctx.Done():
				return gatewayerr.UpstreamFatal("navigation canceled", ctx.Err())
			case <-time.After(backoff[attempt]):
			}
		}
	}
	return gatewayerr.UpstreamTransient("navigation failed after retries", lastErr)
}
