// Package main provides the entry point for the gateway service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import for side effects - registers pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/artifact"
	"github.com/weblinq/gateway/internal/browser"
	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/config"
	"github.com/weblinq/gateway/internal/credit"
	"github.com/weblinq/gateway/internal/gateway"
	"github.com/weblinq/gateway/internal/metrics"
	"github.com/weblinq/gateway/internal/middleware"
	"github.com/weblinq/gateway/internal/search"
	"github.com/weblinq/gateway/internal/session"
	"github.com/weblinq/gateway/internal/useractor"
	"github.com/weblinq/gateway/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gateway %s\n", version.Full())
		return
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	cfg.Validate()
	printBanner()

	log.Info().Msg("Initializing browser pool...")
	browserPool, err := browser.NewPool(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize browser pool")
	}
	binding := browser.NewBinding(browserPool, clock.Real{})
	sessions := session.NewPool(binding, cfg, clock.Real{})

	artifactStore, err := artifact.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("ArtifactStore unavailable - screenshot/pdf persistence and file listing will degrade")
		artifactStore = nil
	}

	ledger := credit.NewLedger(cfg.CreditsPerUserStart)
	actors := useractor.NewManager(cfg, artifactStore, clock.Real{})
	aggregator := search.NewAggregator(clock.Real{})

	srv := gateway.New(cfg, sessions, aggregator, ledger, actors)

	var finalHandler http.Handler = srv

	finalHandler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})(finalHandler)

	finalHandler = middleware.SecurityHeaders(finalHandler)

	if cfg.AuthEnabled {
		log.Info().Msg("Bearer token authentication enabled")
	}
	finalHandler = middleware.BearerAuth(cfg)(finalHandler)

	var rateLimiter *middleware.RateLimiterMiddleware
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		rateLimiter = middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		finalHandler = rateLimiter.Handler()(finalHandler)
	}

	finalHandler = middleware.Logging(finalHandler)
	finalHandler = middleware.Recovery(finalHandler)

	mux := http.NewServeMux()
	mux.Handle("/", finalHandler)
	mux.Handle("/metrics", metrics.Handler())
	metrics.SetBuildInfo(version.Full(), version.GoVersion())
	stopMetrics := make(chan struct{})
	go metrics.StartMemoryCollector(30*time.Second, stopMetrics)
	go pollSessionMetrics(sessions, stopMetrics)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       cfg.MaxTimeout + 10*time.Second,
		WriteTimeout:      cfg.MaxTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var pprofServer *http.Server
	if cfg.PProfEnabled {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.PProfBindAddr, cfg.PProfPort)
		pprofServer = &http.Server{
			Addr:         pprofAddr,
			Handler:      http.DefaultServeMux,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		go func() {
			log.Warn().
				Str("addr", pprofAddr).
				Msg("WARNING: pprof profiling server started - exposes runtime internals, use for debugging only")

			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("address", addr).
			Int("pool_size", cfg.BrowserPoolSize).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Bool("auth_enabled", cfg.AuthEnabled).
			Msg("gateway is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if pprofServer != nil {
		if err := pprofServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("pprof server shutdown error")
		}
	}

	close(stopMetrics)

	if rateLimiter != nil {
		rateLimiter.Close()
	}

	if err := actors.Close(); err != nil {
		log.Error().Err(err).Msg("UserActor store close error")
	}

	if err := browserPool.Close(); err != nil {
		log.Error().Err(err).Msg("Browser pool close error")
	}

	log.Info().Msg("Shutdown complete")
}

// pollSessionMetrics periodically publishes session.Pool's size/availability
// to the gateway_session_pool_* and gateway_active_sessions gauges.
func pollSessionMetrics(sessions *session.Pool, stopCh <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, available, active := sessions.Metrics()
			metrics.UpdatePoolMetrics(size, available, 0)
			metrics.UpdateSessionMetrics(active)
		case <-stopCh:
			return
		}
	}
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func printBanner() {
	banner := `
 _      ______ ____   _       _____ _   _ _  __
| |    |  ____|  _ \ | |     |_   _| \ | | |/ /
| |    | |__  | |_) || |       | | |  \| | ' /
| |    |  __| |  _ < | |       | | | . ' |  <
| |____| |____| |_) || |____  _| |_| |\  | . \
|______|______|____/ |______||_____|_| \_|_|\_\
                                     Go Edition
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting gateway")
}
