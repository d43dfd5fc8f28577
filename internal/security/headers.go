// Package security validates and redacts the untrusted inputs that flow
// from a gateway request into a browser page: target URLs (url_validator.go),
// the headers? option (headers.go), and anything derived from either that
// ends up in a log line (redact.go).
package security

import (
	"errors"
	"fmt"
	"strings"
)

// Header validation constants.
const (
	MaxHeaderCount       = 50
	MaxHeaderNameLength  = 256
	MaxHeaderValueLength = 8192  // 8KB per header
	MaxTotalHeadersSize  = 65536 // 64KB total for all headers combined
)

// Header validation errors.
var (
	ErrTooManyHeaders      = errors.New("too many headers (maximum 50)")
	ErrHeaderNameTooLong   = errors.New("header name exceeds maximum length of 256 bytes")
	ErrHeaderValueTooLong  = errors.New("header value exceeds maximum length of 8KB")
	ErrTotalHeadersTooLong = errors.New("total headers size exceeds maximum of 64KB")
	ErrHeaderNameEmpty     = errors.New("header name cannot be empty")
	ErrBlockedHeader       = errors.New("header is not allowed for security reasons")
	ErrInvalidHeaderName   = errors.New("header name contains invalid characters")
	ErrInvalidHeaderChar   = errors.New("header value contains invalid characters")
)

// blockedHeaders names headers a caller's headers? option must never
// override: connection-control headers Chrome's network stack owns,
// anything that could smuggle credentials into pool.ProxyConfig's target,
// and origin/referer, which Chrome sets from actual navigation state.
var blockedHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"content-length":    true,
	"te":                true,
	"trailer":           true,
	"upgrade":           true,

	"cookie":              true,
	"authorization":       true,
	"proxy-authorization": true,
	"www-authenticate":    true,
	"proxy-authenticate":  true,

	"origin":  true,
	"referer": true,
}

// blockedHeaderPrefixes covers header families that belong to the browser
// or an intermediary CDN/proxy rather than the caller's request.
var blockedHeaderPrefixes = []string{
	"sec-",         // Fetch Metadata (sec-fetch-*, sec-ch-*)
	"cf-",          // Cloudflare
	"x-forwarded-", // reverse-proxy chain
	"proxy-",
	"x-real-",
	"x-amz-",  // AWS
	"x-goog-", // Google Cloud
}

// ValidateHeaders checks the headers? option on scrape requests (spec.md
// §4.4) against count, size, and allow-list constraints before any of them
// reach applyExtraHeaders and a real CDP call.
func ValidateHeaders(headers map[string]string) error {
	if headers == nil {
		return nil
	}

	// Check total count
	if len(headers) > MaxHeaderCount {
		return ErrTooManyHeaders
	}

	// Track total size for aggregate limit
	var totalSize int

	for name, value := range headers {
		if err := validateHeaderName(name); err != nil {
			return fmt.Errorf("invalid header name %q: %w", name, err)
		}

		if err := validateHeaderValue(value); err != nil {
			return fmt.Errorf("invalid value for header %q: %w", name, err)
		}

		// Accumulate total size (name + value + overhead for ": " and newline)
		totalSize += len(name) + len(value) + 4
		if totalSize > MaxTotalHeadersSize {
			return ErrTotalHeadersTooLong
		}
	}

	return nil
}

// validateHeaderName checks if a header name is valid and allowed.
func validateHeaderName(name string) error {
	if name == "" {
		return ErrHeaderNameEmpty
	}

	if len(name) > MaxHeaderNameLength {
		return ErrHeaderNameTooLong
	}

	// Check for invalid characters (header names should be ASCII, no control chars or spaces)
	for _, c := range name {
		if c < 33 || c > 126 || c == ':' {
			return ErrInvalidHeaderName
		}
	}

	// Normalize to lowercase for comparison
	nameLower := strings.ToLower(name)

	// Check against blocked headers
	if blockedHeaders[nameLower] {
		return ErrBlockedHeader
	}

	// Check against blocked prefixes
	for _, prefix := range blockedHeaderPrefixes {
		if strings.HasPrefix(nameLower, prefix) {
			return ErrBlockedHeader
		}
	}

	return nil
}

// validateHeaderValue rejects anything outside printable ASCII (32-126),
// including tabs: RFC 7230 technically allows a tab in a header value, but
// rejecting it sidesteps any disagreement between the Go HTTP stack and
// Chrome's own header parser over what a tab means there.
func validateHeaderValue(value string) error {
	if len(value) > MaxHeaderValueLength {
		return ErrHeaderValueTooLong
	}

	for _, c := range value {
		if c < 32 || c >= 127 {
			return ErrInvalidHeaderChar
		}
	}

	return nil
}
