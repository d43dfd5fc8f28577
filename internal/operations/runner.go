package operations

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/weblinq/gateway/internal/browser"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/humanize"
	"github.com/weblinq/gateway/internal/session"
)

// blockingKinds lists the operations for which PageHarden's resource
// router must be installed (spec.md §4.3): content/link/scrape/JSON
// extraction/markdown never need images/fonts/css/media to render visually.
// Screenshot and PDF are deliberately excluded.
var blockingKinds = map[Kind]bool{
	KindContent:        true,
	KindLinks:          true,
	KindScrape:         true,
	KindJSONExtraction: true,
	KindMarkdown:       true,
}

// Runner hosts the shared lease→harden→navigate plumbing every
// OperationRunner kind composes on top of.
type Runner struct {
	sessions *session.Pool
}

// NewRunner builds a Runner over an already-constructed SessionPool.
func NewRunner(sessions *session.Pool) *Runner {
	return &Runner{sessions: sessions}
}

// preparedPage is a leased, hardened, and (if applicable) resource-blocked
// page ready for navigation. Close runs any blocking cleanup and then
// releases the lease, each exactly once.
type preparedPage struct {
	page    *rod.Page
	lease   *session.Lease
	cleanup func()
}

func (p *preparedPage) Close() {
	if p.cleanup != nil {
		p.cleanup()
		p.cleanup = nil
	}
	if p.lease != nil {
		p.lease.Release()
		p.lease = nil
	}
}

// prepare leases a session, then installs resource blocking for kinds
// that don't need visual fidelity.
func (r *Runner) prepare(ctx context.Context, kind Kind) (*preparedPage, error) {
	lease, err := r.sessions.Lease(ctx)
	if err != nil {
		return nil, err
	}

	pp := &preparedPage{page: lease.Page, lease: lease}
	if blockingKinds[kind] {
		cleanup, err := browser.BlockResources(ctx, lease.Page, true, true, true, true)
		if err != nil {
			pp.Close()
			return nil, gatewayerr.Internal("failed to install resource blocking", err)
		}
		pp.cleanup = cleanup
	}
	return pp, nil
}

// navigate leases a page for kind and navigates it to url with the kind's
// default deadline, via PageHarden's retrying goto helper.
func (r *Runner) navigate(ctx context.Context, kind Kind, url string) (*preparedPage, error) {
	pp, err := r.prepare(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := browser.GotoWithRetry(ctx, pp.page, url, Deadline(kind)); err != nil {
		pp.Close()
		return nil, err
	}
	return pp, nil
}

// navigateNetworkIdle is the Scrape variant: wait_until=networkidle, 30s.
func (r *Runner) navigateNetworkIdle(ctx context.Context, kind Kind, url string) (*preparedPage, error) {
	pp, err := r.prepare(ctx, kind)
	if err != nil {
		return nil, err
	}
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pp.page.Context(navCtx).Navigate(url); err != nil {
		pp.Close()
		return nil, gatewayerr.UpstreamTransient("navigation failed", err)
	}
	if err := pp.page.Context(navCtx).WaitStable(500 * time.Millisecond); err != nil {
		// networkidle-equivalent wait is best-effort; proceed with whatever loaded.
		_ = err
	}
	return pp, nil
}

// settle performs a brief scroll-to-bottom-and-back pass, followed by a
// Bezier-path mouse move to a plausible point over the rendered page, so
// lazy-loaded content has a chance to render and the page has seen some
// pointer activity before extraction — following the "the page must look
// used" design intent behind PageHarden (spec.md §4.3). Best-effort:
// extraction proceeds on whatever state the page reaches.
func settle(ctx context.Context, page *rod.Page) {
	scroller := humanize.NewScroller(page)
	_ = scroller.ScrollToBottom(ctx)
	_ = scroller.ScrollToTop(ctx)

	mouse := humanize.NewMouse(page)
	if metric, err := page.Context(ctx).Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`); err == nil {
		var dims struct{ W, H float64 }
		if uerr := metric.Value.Unmarshal(&dims); uerr == nil && dims.W > 0 && dims.H > 0 {
			x := dims.W*0.2 + rand.Float64()*dims.W*0.6
			y := dims.H*0.2 + rand.Float64()*dims.H*0.6
			_ = mouse.MoveTo(ctx, x, y)
		}
	}
}

// applyExtraHeaders sets client-supplied headers (Scrape's headers? option).
func applyExtraHeaders(page *rod.Page, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	kv := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		kv = append(kv, k, v)
	}
	_, err := proto.NetworkSetExtraHTTPHeaders{Headers: proto.NewNetworkHeaders(kv)}.Call(page)
	return err
}
