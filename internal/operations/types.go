// Package operations implements OperationRunner (spec.md §4.4): one runner
// per operation kind, each composing a SessionPool lease, PageHarden, and
// kind-specific post-processing into a success or failure envelope.
package operations

import (
	"time"

	"github.com/weblinq/gateway/internal/gatewayerr"
)

// Kind identifies one of the eight operations the gateway serves.
type Kind string

const (
	KindMarkdown       Kind = "markdown"
	KindContent        Kind = "content"
	KindLinks          Kind = "links"
	KindScrape         Kind = "scrape"
	KindScreenshot     Kind = "screenshot"
	KindPDF            Kind = "pdf"
	KindSearch         Kind = "search"
	KindJSONExtraction Kind = "json-extraction"
)

// CreditCost is the fixed per-kind charge from spec.md §6.
var CreditCost = map[Kind]int{
	KindMarkdown:       1,
	KindContent:        1,
	KindLinks:          1,
	KindScrape:         1,
	KindScreenshot:     1,
	KindPDF:            1,
	KindSearch:         1,
	KindJSONExtraction: 2,
}

// Envelope is the uniform {success, data|error, creditsCost} response
// wrapper every runner returns.
type Envelope struct {
	Success     bool        `json:"success"`
	Data        interface{} `json:"data,omitempty"`
	Error       *EnvError   `json:"error,omitempty"`
	CreditsCost int         `json:"creditsCost"`

	// cause carries the error envelopeFromErr was built from. It's not
	// serialized; Gateway inspects it via Cause() to tell a transport-level
	// failure (e.g. SessionsExhausted, which must answer 503+Retry-After
	// rather than a 200 failure envelope) from an ordinary operation error.
	cause error
}

// EnvError is the failure branch of Envelope.
type EnvError struct {
	Message string `json:"message"`
}

// Cause returns the error a failure envelope was built from, or nil for a
// success envelope or one built directly from a message string.
func (e Envelope) Cause() error {
	return e.cause
}

// Failure builds a failure envelope; creditsCost is always 0 so the
// CreditLedger never debits a failed call.
func Failure(message string) Envelope {
	return Envelope{Success: false, Error: &EnvError{Message: message}, CreditsCost: 0}
}

// FailureFromErr builds a failure envelope that retains err as its Cause,
// so transport-level errors (SessionsExhausted) can be recovered downstream.
func FailureFromErr(err error) Envelope {
	message := err.Error()
	if ge, ok := gatewayerr.As(err); ok {
		message = ge.Message
	}
	env := Failure(message)
	env.cause = err
	return env
}

// Success builds a success envelope at the kind's fixed cost.
func Success(kind Kind, data interface{}) Envelope {
	return Envelope{Success: true, Data: data, CreditsCost: CreditCost[kind]}
}

// CommonRequest fields shared by every URL-driven operation (spec.md §6).
type CommonRequest struct {
	URL      string `json:"url"`
	WaitTime int    `json:"waitTime"` // ms, [0, 5000], default 0
}

// MarkdownResult is the Markdown runner's data payload.
type MarkdownResult struct {
	Markdown  string `json:"markdown"`
	WordCount int    `json:"wordCount"`
}

// ContentResult is the Content runner's data payload.
type ContentResult struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// LinksRequest adds the Links-specific option.
type LinksRequest struct {
	CommonRequest
	IncludeExternal *bool `json:"includeExternal,omitempty"` // default true
}

// Link is one extracted anchor.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Type string `json:"type"` // internal | external
}

// LinksResult is the Links runner's data payload.
type LinksResult struct {
	Links    []Link       `json:"links"`
	Metadata LinksSummary `json:"metadata"`
}

// LinksSummary reports link counts.
type LinksSummary struct {
	TotalLinks    int `json:"totalLinks"`
	InternalLinks int `json:"internalLinks"`
	ExternalLinks int `json:"externalLinks"`
}

// ScrapeElement is one {selector, attributes?} request item.
type ScrapeElement struct {
	Selector   string   `json:"selector"`
	Attributes []string `json:"attributes,omitempty"`
}

// ScrapeRequest is the Scrape operation's input.
type ScrapeRequest struct {
	CommonRequest
	Elements []ScrapeElement   `json:"elements"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// ScrapedElement is one matched DOM element's extracted data.
type ScrapedElement struct {
	Selector   string            `json:"selector"`
	OuterHTML  string            `json:"outerHtml"`
	Text       string            `json:"text"`
	Rect       Rect              `json:"rect"`
	Attributes map[string]string `json:"attributes"`
}

// Rect is a bounding box in page coordinates.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScrapeResult is the Scrape runner's data payload.
type ScrapeResult struct {
	Elements []ScrapedElement `json:"elements"`
}

// ScreenshotOptions controls screenshot rendering (spec.md §4.4/§6).
type ScreenshotOptions struct {
	Type             string  `json:"type,omitempty"` // png|jpeg|webp, default png
	FullPage         *bool   `json:"fullPage,omitempty"` // default true
	Quality          *int    `json:"quality,omitempty"`
	OmitBackground   bool    `json:"omitBackground,omitempty"`
	Clip             *Rect   `json:"clip,omitempty"`
	OptimizeForSpeed bool    `json:"optimizeForSpeed,omitempty"`
}

// Viewport is the requested browser viewport.
type Viewport struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// ScreenshotRequest is the Screenshot operation's input.
type ScreenshotRequest struct {
	CommonRequest
	Viewport          Viewport          `json:"viewport,omitempty"`
	ScreenshotOptions ScreenshotOptions `json:"screenshotOptions,omitempty"`
	Base64            bool              `json:"base64,omitempty"`
}

// ArtifactResult is shared by Screenshot and PDF: either raw bytes or a
// base64 string, plus the content type for raw-byte HTTP responses.
type ArtifactResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"image,omitempty"`
	ContentType string `json:"-"`
	Extension   string `json:"-"`
}

// PDFRequest is the PDF operation's input.
type PDFRequest struct {
	CommonRequest
	Base64 bool `json:"base64,omitempty"`
}

// JSONExtractionRequest is the JSON-extraction operation's input.
type JSONExtractionRequest struct {
	CommonRequest
	ResponseType   string          `json:"responseType,omitempty"` // json|text, default json
	Prompt         string          `json:"prompt,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Instructions   string          `json:"instructions,omitempty"`
}

// ResponseFormat carries a JSON schema for structured extraction.
type ResponseFormat struct {
	Type       string                 `json:"type"`
	JSONSchema map[string]interface{} `json:"json_schema"`
}

// JSONExtractionResult is the JSON-extraction runner's data payload.
type JSONExtractionResult struct {
	Extracted interface{}          `json:"extracted"`
	Metadata  ExtractionMetadata   `json:"metadata"`
}

// ExtractionMetadata reports token accounting for the extraction call.
type ExtractionMetadata struct {
	InputTokens            int  `json:"inputTokens"`
	OutputTokens           int  `json:"outputTokens"`
	OriginalContentTokens  int  `json:"originalContentTokens"`
	FinalContentTokens     int  `json:"finalContentTokens"`
	ContentTruncated       bool `json:"contentTruncated"`
}

// opDeadline is the per-operation-kind wall-clock timeout (spec.md §5).
var opDeadline = map[Kind]time.Duration{
	KindMarkdown:       15 * time.Second,
	KindContent:        15 * time.Second,
	KindLinks:          15 * time.Second,
	KindScrape:         30 * time.Second,
	KindScreenshot:     15 * time.Second,
	KindPDF:            15 * time.Second,
	KindJSONExtraction: 20 * time.Second,
}

// Deadline returns the default navigation/operation timeout for kind.
func Deadline(kind Kind) time.Duration {
	if d, ok := opDeadline[kind]; ok {
		return d
	}
	return 15 * time.Second
}
