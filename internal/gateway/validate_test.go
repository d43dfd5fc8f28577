package gateway

import (
	"testing"

	"github.com/weblinq/gateway/internal/operations"
	"github.com/weblinq/gateway/internal/search"
)

func TestValidateCommonRejectsEmptyURL(t *testing.T) {
	if err := validateCommon("", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestValidateCommonRejectsUnsafeURL(t *testing.T) {
	if err := validateCommon("http://169.254.169.254/latest/meta-data", 0); err == nil {
		t.Fatal("expected error for SSRF-blocked url")
	}
}

func TestValidateCommonRejectsOutOfRangeWaitTime(t *testing.T) {
	if err := validateCommon("https://example.com", -1); err == nil {
		t.Fatal("expected error for negative waitTime")
	}
	if err := validateCommon("https://example.com", 5001); err == nil {
		t.Fatal("expected error for waitTime above 5000")
	}
}

func TestValidateCommonAcceptsValidRequest(t *testing.T) {
	if err := validateCommon("https://example.com", 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateScrapeRequiresElements(t *testing.T) {
	req := operations.ScrapeRequest{CommonRequest: operations.CommonRequest{URL: "https://example.com"}}
	if err := validateScrape(req); err == nil {
		t.Fatal("expected error when elements is empty")
	}
}

func TestValidateScrapeRejectsEmptySelector(t *testing.T) {
	req := operations.ScrapeRequest{
		CommonRequest: operations.CommonRequest{URL: "https://example.com"},
		Elements:      []operations.ScrapeElement{{Selector: ""}},
	}
	if err := validateScrape(req); err == nil {
		t.Fatal("expected error for empty selector")
	}
}

func TestValidateScrapeRejectsBlockedHeaders(t *testing.T) {
	req := operations.ScrapeRequest{
		CommonRequest: operations.CommonRequest{URL: "https://example.com"},
		Elements:      []operations.ScrapeElement{{Selector: "h1"}},
		Headers:       map[string]string{"X-Forwarded-For": "1.2.3.4"},
	}
	if err := validateScrape(req); err == nil {
		t.Fatal("expected error for a proxy-spoofing header")
	}
}

func TestValidateSearchEnforcesQueryAndLimitBounds(t *testing.T) {
	if err := validateSearch(search.Request{Query: ""}); err == nil {
		t.Fatal("expected error for empty query")
	}
	if err := validateSearch(search.Request{Query: "go modules", Limit: 11}); err == nil {
		t.Fatal("expected error for limit above 10")
	}
	if err := validateSearch(search.Request{Query: "go modules", Limit: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateJSONExtractionRequiresPromptOrResponseFormat(t *testing.T) {
	req := operations.JSONExtractionRequest{CommonRequest: operations.CommonRequest{URL: "https://example.com"}}
	if err := validateJSONExtraction(req); err == nil {
		t.Fatal("expected error when neither prompt nor response_format is set")
	}
}

func TestValidateJSONExtractionRejectsResponseFormatWithTextType(t *testing.T) {
	req := operations.JSONExtractionRequest{
		CommonRequest:  operations.CommonRequest{URL: "https://example.com"},
		ResponseType:   "text",
		Prompt:         "summarize",
		ResponseFormat: &operations.ResponseFormat{Type: "json_schema"},
	}
	if err := validateJSONExtraction(req); err == nil {
		t.Fatal("expected error for response_format combined with responseType=text")
	}
}

func TestValidateJSONExtractionAcceptsPromptOnly(t *testing.T) {
	req := operations.JSONExtractionRequest{
		CommonRequest: operations.CommonRequest{URL: "https://example.com"},
		Prompt:        "extract the title",
	}
	if err := validateJSONExtraction(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateScreenshotRejectsOutOfRangeViewport(t *testing.T) {
	req := operations.ScreenshotRequest{
		CommonRequest: operations.CommonRequest{URL: "https://example.com"},
		Viewport:      operations.Viewport{Width: 10, Height: 10},
	}
	if err := validateScreenshot(req); err == nil {
		t.Fatal("expected error for undersized viewport")
	}
}

func TestValidateScreenshotRejectsBadType(t *testing.T) {
	req := operations.ScreenshotRequest{
		CommonRequest:     operations.CommonRequest{URL: "https://example.com"},
		ScreenshotOptions: operations.ScreenshotOptions{Type: "bmp"},
	}
	if err := validateScreenshot(req); err == nil {
		t.Fatal("expected error for unsupported screenshot type")
	}
}
