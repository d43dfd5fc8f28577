package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/middleware"
	"github.com/weblinq/gateway/internal/useractor"
)

// filesListResponse is GET /files's payload (spec.md §6).
type filesListResponse struct {
	Files      []useractor.FileRecord `json:"files"`
	TotalFiles int                    `json:"totalFiles"`
	HasMore    bool                   `json:"hasMore"`
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserID(r)
	actor := s.actors.For(userID)

	q := r.URL.Query()
	kind := q.Get("type")
	limit := parseIntDefault(q.Get("limit"), 50)
	offset := parseIntDefault(q.Get("offset"), 0)

	opts := useractor.ListOptions{
		Kind:   kind,
		Limit:  limit,
		Offset: offset,
		SortBy: q.Get("sort_by"),
		Order:  q.Get("order"),
	}

	files, err := actor.List(r.Context(), opts)
	if err != nil {
		gatewayError(w, err)
		return
	}
	total, err := actor.Count(r.Context(), kind)
	if err != nil {
		gatewayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, filesListResponse{
		Files:      files,
		TotalFiles: total,
		HasMore:    opts.Offset+len(files) < total,
	})
}

func (s *Server) handleFileByID(w http.ResponseWriter, r *http.Request) {
	fileID := strings.TrimPrefix(r.URL.Path, "/files/")
	if fileID == "" {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserID(r)
	actor := s.actors.For(userID)

	switch r.Method {
	case http.MethodGet:
		record, found, err := actor.Get(r.Context(), fileID)
		if err != nil {
			gatewayError(w, err)
			return
		}
		if !found {
			gatewayError(w, gatewayerr.NotFound("file not found"))
			return
		}
		writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		alsoFromStorage := r.URL.Query().Get("also_from_storage") == "true"
		result, err := actor.Delete(r.Context(), fileID, alsoFromStorage)
		if err != nil {
			gatewayError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"found":              result.Found,
			"deletedFromDb":      result.DeletedFromDB,
			"deletedFromStorage": result.DeletedFromStorage,
			"record":             result.Record,
		})

	default:
		http.NotFound(w, r)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
