// Package gateway implements Gateway (spec.md §4.8): the HTTP surface that
// validates requests, reserves credits, routes to OperationRunner or
// SearchAggregator, and negotiates response encoding. The route table
// replaces a single command-dispatch endpoint with spec.md §6's REST table,
// one route per operation kind.
package gateway

import (
	"net/http"

	"github.com/weblinq/gateway/internal/config"
	"github.com/weblinq/gateway/internal/credit"
	"github.com/weblinq/gateway/internal/operations"
	"github.com/weblinq/gateway/internal/search"
	"github.com/weblinq/gateway/internal/session"
	"github.com/weblinq/gateway/internal/useractor"
)

// Server wires HTTP routes to the gateway's components: each operation
// kind gets its own route per spec.md §6.
type Server struct {
	cfg        *config.Config
	runner     *operations.Runner
	aggregator *search.Aggregator
	ledger     *credit.Ledger
	actors     *useractor.Manager
	mux        *http.ServeMux
}

// New constructs a Server and registers all routes.
func New(cfg *config.Config, sessions *session.Pool, aggregator *search.Aggregator, ledger *credit.Ledger, actors *useractor.Manager) *Server {
	s := &Server{
		cfg:        cfg,
		runner:     operations.NewRunner(sessions),
		aggregator: aggregator,
		ledger:     ledger,
		actors:     actors,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.mux.HandleFunc("/web/markdown", s.handleMarkdown)
	s.mux.HandleFunc("/web/content", s.handleContent)
	s.mux.HandleFunc("/web/links", s.handleLinks)
	s.mux.HandleFunc("/web/scrape", s.handleScrape)
	s.mux.HandleFunc("/web/screenshot", s.handleScreenshot)
	s.mux.HandleFunc("/web/pdf", s.handlePDF)
	s.mux.HandleFunc("/web/search", s.handleSearch)
	s.mux.HandleFunc("/web/json-extraction", s.handleJSONExtraction)

	s.mux.HandleFunc("/files", s.handleFilesList)
	s.mux.HandleFunc("/files/", s.handleFileByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
