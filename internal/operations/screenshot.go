package operations

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// RunScreenshot navigates url, applies the requested viewport, and
// captures a screenshot per spec.md §4.4.
func (r *Runner) RunScreenshot(ctx context.Context, req ScreenshotRequest) (ArtifactResult, Envelope) {
	pp, err := r.navigate(ctx, KindScreenshot, req.URL)
	if err != nil {
		return ArtifactResult{}, envelopeFromErr(err)
	}
	defer pp.Close()

	width, height := 1920, 1080
	if req.Viewport.Width > 0 {
		width = req.Viewport.Width
	}
	if req.Viewport.Height > 0 {
		height = req.Viewport.Height
	}
	if _, err := pp.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: width, Height: height, DeviceScaleFactor: 1,
	}); err != nil {
		return ArtifactResult{}, Failure(fmt.Sprintf("failed to set viewport: %v", err))
	}

	opts := req.ScreenshotOptions
	format := proto.PageCaptureScreenshotFormatPng
	quality := opts.Quality
	ext := "png"
	contentType := "image/png"

	if opts.OptimizeForSpeed && quality == nil {
		format = proto.PageCaptureScreenshotFormatJpeg
		q := 50
		quality = &q
		ext, contentType = "jpeg", "image/jpeg"
	} else {
		switch opts.Type {
		case "jpeg":
			format, ext, contentType = proto.PageCaptureScreenshotFormatJpeg, "jpeg", "image/jpeg"
		case "webp":
			format, ext, contentType = proto.PageCaptureScreenshotFormatWebp, "webp", "image/webp"
		}
	}

	fullPage := true
	if opts.FullPage != nil {
		fullPage = *opts.FullPage
	}

	if opts.OmitBackground {
		transparent := &proto.CdpColor{R: 0, G: 0, B: 0, A: 0}
		if _, err := proto.EmulationSetDefaultBackgroundColorOverride{Color: transparent}.Call(pp.page); err != nil {
			return ArtifactResult{}, Failure(fmt.Sprintf("failed to set transparent background: %v", err))
		}
	}

	shotReq := &proto.PageCaptureScreenshot{
		Format:                format,
		OptimizeForSpeed:      opts.OptimizeForSpeed,
		FromSurface:           true,
	}
	if format == proto.PageCaptureScreenshotFormatJpeg || format == proto.PageCaptureScreenshotFormatWebp {
		if quality != nil {
			shotReq.Quality = quality
		}
	}
	if opts.Clip != nil {
		shotReq.Clip = &proto.PageViewport{
			X: opts.Clip.Left, Y: opts.Clip.Top,
			Width: opts.Clip.Width, Height: opts.Clip.Height,
			Scale: 1,
		}
	} else if fullPage {
		metrics, err := pp.page.Eval(`() => ({width: document.documentElement.scrollWidth, height: document.documentElement.scrollHeight})`)
		if err == nil {
			var dims struct{ Width, Height float64 }
			if uerr := metrics.Value.Unmarshal(&dims); uerr == nil && dims.Width > 0 && dims.Height > 0 {
				shotReq.Clip = &proto.PageViewport{Width: dims.Width, Height: dims.Height, Scale: 1}
			}
		}
	}

	bytes, err := pp.page.Screenshot(fullPage, shotReq)
	if err != nil {
		return ArtifactResult{}, Failure(fmt.Sprintf("failed to capture screenshot: %v", err))
	}

	result := ArtifactResult{Bytes: bytes, ContentType: contentType, Extension: ext}
	data := Success(KindScreenshot, map[string]interface{}{})
	if req.Base64 {
		result.Base64 = base64.StdEncoding.EncodeToString(bytes)
		data.Data = map[string]interface{}{"image": result.Base64, "contentType": contentType}
	}
	return result, data
}
