package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/weblinq/gateway/internal/operations"
	"github.com/weblinq/gateway/internal/search"
	"github.com/weblinq/gateway/internal/security"
)

const maxBodyBytes = 1 << 20 // 1MB, generous for JSON request bodies

func decodeJSON(r *http.Request, dst interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// validateCommon checks the url/waitTime fields shared by every URL-driven
// operation, per spec.md §6.
func validateCommon(url string, waitTime int) error {
	if url == "" {
		return fmt.Errorf("url is required")
	}
	if err := security.ValidateURL(url); err != nil {
		return fmt.Errorf("url must be a valid absolute URL: %w", err)
	}
	if waitTime < 0 || waitTime > 5000 {
		return fmt.Errorf("waitTime must be in [0, 5000]")
	}
	return nil
}

func validateScreenshot(req operations.ScreenshotRequest) error {
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		return err
	}
	if req.Viewport.Width != 0 && (req.Viewport.Width < 100 || req.Viewport.Width > 3840) {
		return fmt.Errorf("viewport.width must be in [100, 3840]")
	}
	if req.Viewport.Height != 0 && (req.Viewport.Height < 100 || req.Viewport.Height > 2160) {
		return fmt.Errorf("viewport.height must be in [100, 2160]")
	}
	switch req.ScreenshotOptions.Type {
	case "", "png", "jpeg", "webp":
	default:
		return fmt.Errorf("screenshotOptions.type must be one of png, jpeg, webp")
	}
	if q := req.ScreenshotOptions.Quality; q != nil && (*q < 1 || *q > 100) {
		return fmt.Errorf("screenshotOptions.quality must be in [1, 100]")
	}
	return nil
}

func validateScrape(req operations.ScrapeRequest) error {
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		return err
	}
	if len(req.Elements) == 0 {
		return fmt.Errorf("elements must contain at least one selector")
	}
	for _, el := range req.Elements {
		if el.Selector == "" {
			return fmt.Errorf("elements[].selector is required")
		}
	}
	if err := security.ValidateHeaders(req.Headers); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	return nil
}

func validateSearch(req search.Request) error {
	if len(req.Query) == 0 || len(req.Query) > 500 {
		return fmt.Errorf("query must be 1..500 characters")
	}
	if req.Limit != 0 && (req.Limit < 1 || req.Limit > 10) {
		return fmt.Errorf("limit must be in [1, 10]")
	}
	return nil
}

func validateJSONExtraction(req operations.JSONExtractionRequest) error {
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		return err
	}
	switch req.ResponseType {
	case "", "json", "text":
	default:
		return fmt.Errorf("responseType must be one of json, text")
	}
	if len(req.Instructions) > 500 {
		return fmt.Errorf("instructions must be at most 500 characters")
	}
	if req.ResponseType == "text" && req.ResponseFormat != nil {
		return fmt.Errorf("response_format is forbidden when responseType=text")
	}
	hasPrompt := req.Prompt != ""
	if hasPrompt && (len(req.Prompt) > 1000) {
		return fmt.Errorf("prompt must be at most 1000 characters")
	}
	if req.ResponseType == "text" && !hasPrompt {
		return fmt.Errorf("prompt is required when responseType=text")
	}
	if req.ResponseFormat == nil && !hasPrompt {
		return fmt.Errorf("prompt is required when response_format is absent")
	}
	return nil
}
