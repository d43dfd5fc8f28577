package gateway

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/credit"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/metrics"
	"github.com/weblinq/gateway/internal/middleware"
	"github.com/weblinq/gateway/internal/operations"
	"github.com/weblinq/gateway/internal/search"
	"github.com/weblinq/gateway/internal/security"
)

// settle reserves credits for kind, runs fn, and commits or refunds the
// reservation based on the resulting envelope's success, per spec.md §4.7's
// reserve→invoke→commit-or-refund dataflow.
func (s *Server) settle(w http.ResponseWriter, r *http.Request, kind operations.Kind, fn func() operations.Envelope) {
	start := time.Now()
	userID := middleware.UserID(r)
	cost := operations.CreditCost[kind]

	reservation, err := s.ledger.Reserve(userID, cost)
	if err != nil {
		status := http.StatusPaymentRequired
		writeJSON(w, status, map[string]string{"error": "insufficient credits"})
		metrics.RecordRequest(string(kind), "credit_exhausted", time.Since(start))
		return
	}

	env := fn()
	if env.Success {
		_ = s.ledger.Commit(reservation)
		metrics.RecordCreditCharge(string(kind), env.CreditsCost)
		metrics.RecordRequest(string(kind), "ok", time.Since(start))
		writeJSON(w, http.StatusOK, env)
		return
	}

	_ = s.ledger.Refund(reservation)
	metrics.RecordCreditRefund(string(kind), cost)

	if ge, ok := gatewayerr.As(env.Cause()); ok && ge.Kind == gatewayerr.KindSessionsExhausted {
		metrics.RecordRequest(string(kind), "sessions_exhausted", time.Since(start))
		gatewayError(w, ge)
		return
	}

	metrics.RecordRequest(string(kind), "failure", time.Since(start))
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.CommonRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		validationError(w, err.Error())
		return
	}
	s.settle(w, r, operations.KindMarkdown, func() operations.Envelope {
		return s.runner.RunMarkdown(r.Context(), req)
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.CommonRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		validationError(w, err.Error())
		return
	}
	s.settle(w, r, operations.KindContent, func() operations.Envelope {
		return s.runner.RunContent(r.Context(), req)
	})
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.LinksRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		validationError(w, err.Error())
		return
	}
	s.settle(w, r, operations.KindLinks, func() operations.Envelope {
		return s.runner.RunLinks(r.Context(), req)
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.ScrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateScrape(req); err != nil {
		validationError(w, err.Error())
		return
	}
	s.settle(w, r, operations.KindScrape, func() operations.Envelope {
		return s.runner.RunScrape(r.Context(), req)
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.ScreenshotRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateScreenshot(req); err != nil {
		validationError(w, err.Error())
		return
	}

	start := time.Now()
	userID := middleware.UserID(r)
	cost := operations.CreditCost[operations.KindScreenshot]
	reservation, err := s.ledger.Reserve(userID, cost)
	if err != nil {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient credits"})
		metrics.RecordRequest(string(operations.KindScreenshot), "credit_exhausted", time.Since(start))
		return
	}

	artifact, env := s.runner.RunScreenshot(r.Context(), req)
	s.finishArtifact(w, r, operations.KindScreenshot, "screenshot", req.URL, req.Base64, reservation, artifact, env, start)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.PDFRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateCommon(req.URL, req.WaitTime); err != nil {
		validationError(w, err.Error())
		return
	}

	start := time.Now()
	userID := middleware.UserID(r)
	cost := operations.CreditCost[operations.KindPDF]
	reservation, err := s.ledger.Reserve(userID, cost)
	if err != nil {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient credits"})
		metrics.RecordRequest(string(operations.KindPDF), "credit_exhausted", time.Since(start))
		return
	}

	artifact, env := s.runner.RunPDF(r.Context(), req)
	s.finishArtifact(w, r, operations.KindPDF, "pdf", req.URL, req.Base64, reservation, artifact, env, start)
}

// finishArtifact commits/refunds the reservation, persists successful
// bytes via UserActor.Record, and writes either the raw-bytes or
// base64-JSON response per the negotiated encoding (spec.md §4.8).
func (s *Server) finishArtifact(w http.ResponseWriter, r *http.Request, kind operations.Kind, fileKind, sourceURL string, base64Flag bool, reservation credit.Reservation, artifact operations.ArtifactResult, env operations.Envelope, start time.Time) {
	userID := middleware.UserID(r)

	if !env.Success {
		_ = s.ledger.Refund(reservation)
		metrics.RecordCreditRefund(string(kind), reservation.Cost)

		if ge, ok := gatewayerr.As(env.Cause()); ok && ge.Kind == gatewayerr.KindSessionsExhausted {
			metrics.RecordRequest(string(kind), "sessions_exhausted", time.Since(start))
			gatewayError(w, ge)
			return
		}

		log.Warn().Str("kind", string(kind)).Str("url", security.RedactURL(sourceURL)).Msg("artifact operation failed")
		metrics.RecordRequest(string(kind), "failure", time.Since(start))
		writeJSON(w, http.StatusOK, env)
		return
	}

	_ = s.ledger.Commit(reservation)
	metrics.RecordCreditCharge(string(kind), env.CreditsCost)
	metrics.RecordRequest(string(kind), "ok", time.Since(start))

	if len(artifact.Bytes) > 0 {
		actor := s.actors.For(userID)
		record, err := actor.Record(r.Context(), fileKind, sourceURL, artifact.Bytes, "", artifact.Extension)
		if err != nil {
			// Artifact persistence is secondary to delivering bytes to the
			// caller; log-and-continue rather than fail an already-billed,
			// already-rendered operation.
			log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to persist artifact")
			env.Data = map[string]interface{}{"error": "failed to persist artifact"}
		} else if m, ok := env.Data.(map[string]interface{}); ok {
			m["fileId"] = record.ID
			m["publicUrl"] = record.PublicURL
		}
	}

	if base64Flag {
		writeJSON(w, http.StatusOK, env)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Bytes)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req search.Request
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateSearch(req); err != nil {
		validationError(w, err.Error())
		return
	}

	start := time.Now()
	userID := middleware.UserID(r)
	cost := operations.CreditCost[operations.KindSearch]
	reservation, err := s.ledger.Reserve(userID, cost)
	if err != nil {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient credits"})
		return
	}

	clientIP := clientIPOf(r)
	resp, err := s.aggregator.Search(r.Context(), clientIP, req)
	if err != nil {
		_ = s.ledger.Refund(reservation)

		if ge, ok := gatewayerr.As(err); ok && ge.Kind == gatewayerr.KindSessionsExhausted {
			metrics.RecordRequest("search", "sessions_exhausted", time.Since(start))
			gatewayError(w, ge)
			return
		}

		metrics.RecordRequest("search", "failure", time.Since(start))
		env := operations.FailureFromErr(err)
		writeJSON(w, http.StatusOK, env)
		return
	}

	_ = s.ledger.Commit(reservation)
	metrics.RecordRequest("search", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, operations.Success(operations.KindSearch, resp))
}

func clientIPOf(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (s *Server) handleJSONExtraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req operations.JSONExtractionRequest
	if err := decodeJSON(r, &req); err != nil {
		validationError(w, "invalid request body: "+err.Error())
		return
	}
	if err := validateJSONExtraction(req); err != nil {
		validationError(w, err.Error())
		return
	}
	s.settle(w, r, operations.KindJSONExtraction, func() operations.Envelope {
		return s.runner.RunJSONExtraction(r.Context(), req, s.cfg)
	})
}
