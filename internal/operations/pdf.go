package operations

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"context"
)

// RunPDF navigates url and renders a PDF of the page.
func (r *Runner) RunPDF(ctx context.Context, req PDFRequest) (ArtifactResult, Envelope) {
	pp, err := r.navigate(ctx, KindPDF, req.URL)
	if err != nil {
		return ArtifactResult{}, envelopeFromErr(err)
	}
	defer pp.Close()

	reader, err := pp.page.PDF(nil)
	if err != nil {
		return ArtifactResult{}, Failure(fmt.Sprintf("failed to render PDF: %v", err))
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return ArtifactResult{}, Failure(fmt.Sprintf("failed to read rendered PDF: %v", err))
	}

	result := ArtifactResult{Bytes: buf.Bytes(), ContentType: "application/pdf", Extension: "pdf"}
	data := Success(KindPDF, map[string]interface{}{})
	if req.Base64 {
		result.Base64 = base64.StdEncoding.EncodeToString(buf.Bytes())
		data.Data = map[string]interface{}{"pdf": result.Base64, "contentType": "application/pdf"}
	}
	return result, data
}
