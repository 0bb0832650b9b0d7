// Command server runs the log search backend: an HTTP API that exchanges
// single-use keys for time-limited search entitlements and serves paginated,
// resumable keyword searches over an in-memory log corpus.
//
// Startup order:
//  1. Load .env (best effort) and the typed configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Open SQLite, run migrations
//  4. Load the initial corpus snapshot
//  5. Configure OpenTelemetry (no-op unless enabled)
//  6. Build the Gin engine, register routes, serve until SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mgrigorov/go-logsearch-backend/internal/config"
	"github.com/mgrigorov/go-logsearch-backend/internal/corpus"
	httpapi "github.com/mgrigorov/go-logsearch-backend/internal/http"
	"github.com/mgrigorov/go-logsearch-backend/internal/observability"
	"github.com/mgrigorov/go-logsearch-backend/internal/repo"
	"github.com/mgrigorov/go-logsearch-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments pass environment variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Corpus: a failed initial load serves an empty snapshot rather than
	// refusing to start; the admin can reload once the file is in place.
	store := corpus.NewStore(corpus.FileLoader(cfg.CorpusPath))
	if snap, err := store.Reload(); err != nil {
		log.Warn().Err(err).Str("path", cfg.CorpusPath).Msg("initial corpus load failed; serving empty corpus")
	} else {
		log.Info().Int("lines", snap.Len()).Str("path", cfg.CorpusPath).Msg("corpus loaded")
	}

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup opentelemetry")
	}

	// HTTP
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
