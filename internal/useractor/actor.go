package useractor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/artifact"
	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/ids"
)

// FileRecord is the persistent artifact metadata row (spec.md §3).
type FileRecord struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	SourceURL    string `json:"sourceUrl"`
	Filename     string `json:"filename"`
	ObjectKey    string `json:"objectKey"`
	PublicURL    string `json:"publicUrl"`
	MetadataJSON string `json:"metadataJson"`
	CreatedAt    string `json:"createdAt"`
}

var allowedSortBy = map[string]bool{"created_at": true, "filename": true}
var allowedOrder = map[string]bool{"asc": true, "desc": true}

// ListOptions validates and defaults spec.md §4.6's list() parameters.
type ListOptions struct {
	Kind   string
	Limit  int
	Offset int
	SortBy string
	Order  string
}

// normalize coerces SortBy/Order to the allowed set (defense against SQL
// injection, per spec.md §4.6) and applies limit/offset defaults.
func (o ListOptions) normalize() ListOptions {
	if !allowedSortBy[o.SortBy] {
		o.SortBy = "created_at"
	}
	if !allowedOrder[o.Order] {
		o.Order = "desc"
	}
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Actor is a per-user singleton owning one SQLite connection. All
// mutating methods serialize on mu; the connection handle never leaves
// this struct — callers only ever see FileRecord values.
type Actor struct {
	userID   string
	mu       sync.Mutex
	conn     *sql.DB
	openErr  error
	store    *artifact.Store
	clock    clock.Clock
	cdnHost  string
}

// newDisabledActor builds an Actor whose store failed to open: it serves
// empty reads and fails writes with a clear error, never crashing the
// gateway, per spec.md §4.6.
func newDisabledActor(userID string, openErr error, store *artifact.Store, clk clock.Clock, cdnHost string) *Actor {
	return &Actor{userID: userID, openErr: openErr, store: store, clock: clk, cdnHost: cdnHost}
}

func (a *Actor) disabled() bool { return a.openErr != nil }

// Record uploads bytes to ArtifactStore and inserts the resulting
// FileRecord, per spec.md §4.6 record().
func (a *Actor) Record(ctx context.Context, kind, sourceURL string, data []byte, metadataJSON, format string) (FileRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled() {
		return FileRecord{}, gatewayerr.Internal("permanent URLs disabled", a.openErr)
	}

	now := a.clock.Now()
	id := ids.FileID(a.userID, kind, sourceURL, now)
	ext := extensionFor(kind, format)
	filename := ids.Filename(hostOf(sourceURL), now, ext)
	objectKey := ids.ObjectKey(kind, a.userID, filename, now)
	publicURL := ids.PublicURL(a.cdnHost, objectKey)
	contentType := contentTypeFor(kind, format)

	if err := a.store.Put(ctx, objectKey, data, contentType); err != nil {
		return FileRecord{}, gatewayerr.UpstreamFatal("failed to upload artifact", err)
	}

	record := FileRecord{
		ID: id, Kind: kind, SourceURL: sourceURL, Filename: filename,
		ObjectKey: objectKey, PublicURL: publicURL, MetadataJSON: metadataJSON,
		CreatedAt: now.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	_, err := a.conn.ExecContext(ctx,
		`INSERT INTO permanent_files (id, kind, source_url, filename, object_key, public_url, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Kind, record.SourceURL, record.Filename, record.ObjectKey, record.PublicURL, record.MetadataJSON, record.CreatedAt,
	)
	if err != nil {
		return FileRecord{}, gatewayerr.Internal("failed to persist file record", err)
	}
	return record, nil
}

// Get retrieves one record by id, or (zero value, false) if absent.
func (a *Actor) Get(ctx context.Context, fileID string) (FileRecord, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled() {
		return FileRecord{}, false, nil
	}

	row := a.conn.QueryRowContext(ctx,
		`SELECT id, kind, source_url, filename, object_key, public_url, metadata_json, created_at
		 FROM permanent_files WHERE id = ?`, fileID)
	var r FileRecord
	if err := row.Scan(&r.ID, &r.Kind, &r.SourceURL, &r.Filename, &r.ObjectKey, &r.PublicURL, &r.MetadataJSON, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return FileRecord{}, false, nil
		}
		return FileRecord{}, false, gatewayerr.Internal("failed to read file record", err)
	}
	return r, true, nil
}

// List returns records matching opts, sorted/paginated per spec.md §4.6.
func (a *Actor) List(ctx context.Context, opts ListOptions) ([]FileRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled() {
		return nil, nil
	}
	opts = opts.normalize()

	query := `SELECT id, kind, source_url, filename, object_key, public_url, metadata_json, created_at FROM permanent_files`
	var args []any
	if opts.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, opts.Kind)
	}
	query += fmt.Sprintf(` ORDER BY %s %s LIMIT ? OFFSET ?`, opts.SortBy, opts.Order)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, gatewayerr.Internal("failed to list file records", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.SourceURL, &r.Filename, &r.ObjectKey, &r.PublicURL, &r.MetadataJSON, &r.CreatedAt); err != nil {
			return nil, gatewayerr.Internal("failed to scan file record", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of records matching an optional kind filter.
func (a *Actor) Count(ctx context.Context, kind string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled() {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM permanent_files`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	var count int
	if err := a.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, gatewayerr.Internal("failed to count file records", err)
	}
	return count, nil
}

// DeleteResult is Actor.Delete's return value.
type DeleteResult struct {
	Found             bool
	DeletedFromDB     bool
	DeletedFromStorage bool
	Record            *FileRecord
}

// Delete removes a record by id; storage deletion is best-effort, per
// spec.md §4.6: a storage failure after a successful DB delete is logged
// but does not roll back.
func (a *Actor) Delete(ctx context.Context, fileID string, alsoFromStorage bool) (DeleteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disabled() {
		return DeleteResult{}, gatewayerr.Internal("permanent URLs disabled", a.openErr)
	}

	row := a.conn.QueryRowContext(ctx,
		`SELECT id, kind, source_url, filename, object_key, public_url, metadata_json, created_at
		 FROM permanent_files WHERE id = ?`, fileID)
	var r FileRecord
	if err := row.Scan(&r.ID, &r.Kind, &r.SourceURL, &r.Filename, &r.ObjectKey, &r.PublicURL, &r.MetadataJSON, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return DeleteResult{Found: false}, nil
		}
		return DeleteResult{}, gatewayerr.Internal("failed to read file record", err)
	}

	if _, err := a.conn.ExecContext(ctx, `DELETE FROM permanent_files WHERE id = ?`, fileID); err != nil {
		return DeleteResult{}, gatewayerr.Internal("failed to delete file record", err)
	}

	result := DeleteResult{Found: true, DeletedFromDB: true, Record: &r}
	if alsoFromStorage {
		if err := a.store.Delete(ctx, r.ObjectKey); err != nil {
			log.Warn().Err(err).Str("object_key", r.ObjectKey).Msg("storage delete failed after DB delete")
		} else {
			result.DeletedFromStorage = true
		}
	}
	return result, nil
}

func extensionFor(kind, format string) string {
	if kind == "pdf" {
		return "pdf"
	}
	if format != "" {
		return format
	}
	return "png"
}

func contentTypeFor(kind, format string) string {
	if kind == "pdf" {
		return "application/pdf"
	}
	if format == "" {
		format = "png"
	}
	return "image/" + format
}

func hostOf(rawURL string) string {
	// minimal scheme-stripping host extraction; full URL parsing happens
	// at request validation time before Record is ever called.
	s := rawURL
	if idx := indexAfterScheme(s); idx >= 0 {
		s = s[idx:]
	}
	for i, c := range s {
		if c == '/' || c == '?' || c == '#' {
			return s[:i]
		}
	}
	return s
}

func indexAfterScheme(s string) int {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == ':' && s[i+1] == '/' && s[i+2] == '/' {
			return i + 3
		}
	}
	return -1
}
