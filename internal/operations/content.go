package operations

import (
	"context"
	"fmt"
)

// RunContent navigates url and returns the raw page HTML verbatim.
func (r *Runner) RunContent(ctx context.Context, req CommonRequest) Envelope {
	pp, err := r.navigate(ctx, KindContent, req.URL)
	if err != nil {
		return envelopeFromErr(err)
	}
	defer pp.Close()

	settle(ctx, pp.page)

	html, err := pp.page.HTML()
	if err != nil {
		return Failure(fmt.Sprintf("failed to read page HTML: %v", err))
	}
	return Success(KindContent, ContentResult{Content: html, ContentType: "text/html"})
}
