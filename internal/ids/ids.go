// Package ids provides the hash/id helpers spec.md §3 defines for
// FileRecord identity: file_id, user_hash, and object_key derivation, plus
// request-correlation IDs. Grounded on the user-hash salt convention
// ("weblinq_user_" ∥ user_id ∥ "_salt_2025") named in spec.md §6
// Configuration, and on the dreamingfree09-secure-file-drop manifest's use
// of google/uuid for request/session identifiers.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userHashSalt = "weblinq_user_%s_salt_2025"

// NewRequestID returns a fresh correlation ID for a single HTTP request.
func NewRequestID() string {
	return uuid.NewString()
}

// NewSessionID returns a fresh opaque session identifier (BrowserBinding).
func NewSessionID() string {
	return uuid.NewString()
}

// FileID derives the 12-hex-char stable identifier for a FileRecord:
// first 12 hex chars of sha256(user_id ∥ kind ∥ source_url ∥ created_at_unix_ms).
func FileID(userID, kind, sourceURL string, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte(kind))
	h.Write([]byte(sourceURL))
	fmt.Fprintf(h, "%d", createdAt.UnixMilli())
	sum := hex.EncodeToString(h.Sum(nil))
	return sum[:12]
}

// UserHash derives the per-user path component used in object_key:
// sha256("weblinq_user_" ∥ user_id ∥ "_salt_2025")[0:16 hex].
func UserHash(userID string) string {
	salted := fmt.Sprintf(userHashSalt, userID)
	sum := sha256.Sum256([]byte(salted))
	return hex.EncodeToString(sum[:])[:16]
}

var domainSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.-]+`)

// SanitizeDomain reduces a hostname to the character set safe for a
// filename component, used by ObjectKey/Filename below.
func SanitizeDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = domainSanitizer.ReplaceAllString(host, "_")
	if host == "" {
		host = "unknown"
	}
	return host
}

// Filename builds "{sanitized_domain}_{created_at_unix_ms}.{ext}".
func Filename(host string, createdAt time.Time, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeDomain(host), createdAt.UnixMilli(), ext)
}

// ObjectKey builds "{kind}s/{user_hash}/{yyyy-mm-dd}/{filename}".
func ObjectKey(kind, userID, filename string, createdAt time.Time) string {
	return fmt.Sprintf("%ss/%s/%s/%s", kind, UserHash(userID), createdAt.UTC().Format("2006-01-02"), filename)
}

// PublicURL composes "https://{cdnHost}/{objectKey}".
func PublicURL(cdnHost, objectKey string) string {
	return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(cdnHost, "/"), objectKey)
}
