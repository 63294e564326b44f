package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/config"
	"github.com/helicase-ai/evidex/internal/db"
	dbRedis "github.com/helicase-ai/evidex/internal/db/redis"
	"github.com/helicase-ai/evidex/internal/domain"
	logpkg "github.com/helicase-ai/evidex/internal/logger"
	"github.com/helicase-ai/evidex/internal/metrics"
	"github.com/helicase-ai/evidex/internal/repository/corpus"
	"github.com/helicase-ai/evidex/internal/repository/ctxcache"
	"github.com/helicase-ai/evidex/internal/repository/embcache"
	graphrepo "github.com/helicase-ai/evidex/internal/repository/graph"
	chiTransport "github.com/helicase-ai/evidex/internal/transport/chi"
	openaiEmb "github.com/helicase-ai/evidex/internal/transport/openai"
	"github.com/helicase-ai/evidex/internal/transport/rerankapi"
	"github.com/helicase-ai/evidex/internal/usecase/boost"
	"github.com/helicase-ai/evidex/internal/usecase/evidence"
	"github.com/helicase-ai/evidex/internal/usecase/expand"
	healthuc "github.com/helicase-ai/evidex/internal/usecase/health"
	"github.com/helicase-ai/evidex/internal/usecase/hierarchy"
	"github.com/helicase-ai/evidex/internal/usecase/pipeline"
	"github.com/helicase-ai/evidex/internal/usecase/rerank"
	"github.com/helicase-ai/evidex/internal/usecase/retrieve"
	"github.com/helicase-ai/evidex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting evidex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     logger,
	})
	embedder := buildEmbedder(base, cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("retry_once", cfg.Embedding.RetryOnce),
	)

	// Query understanding
	lexicon := expand.LoadLexicon(cfg.Lexicon, logger)
	expander := expand.New(lexicon, cfg.Pipeline.MaxExpansions, cfg.Pipeline.DocTypeBoost, logger)

	// Repositories
	graphRepo := graphrepo.New(store, cfg.Database.KeyPrefix+cfg.Lexicon.GraphKey, logger)
	if err := graphRepo.Reload(ctx); err != nil {
		// Missing graph is a soft start: boosts are skipped until a reload succeeds.
		logger.Warn("Document graph not loaded", zap.Error(err))
	} else {
		logger.Info("Document graph loaded", zap.Int("documents", graphRepo.Size()))
	}
	corpusRepo := corpus.New(store, cfg.Database.KeyPrefix)
	contextCache := ctxcache.New(
		store,
		cfg.Database.KeyPrefix,
		time.Duration(cfg.Pipeline.CacheTTL.ShortSec)*time.Second,
		metrics.CacheTotal,
		logger,
	)

	// Pipeline stages
	retrieveSvc := retrieve.New(
		embedder,
		store,
		cfg.Pipeline.IndexName,
		cfg.Database.KeyPrefix+"frag:",
		cfg.Pipeline.MinScore,
		time.Duration(cfg.Pipeline.VectorTimeoutSec)*time.Second,
		logger,
	)
	booster := boost.New(
		graphRepo,
		cfg.Pipeline.RelatedDocBoost,
		cfg.Pipeline.SectionBoost,
		cfg.Pipeline.ChunkTypeBoost,
		cfg.Pipeline.MaxRelatedDocs,
		logger,
	)
	reranker := rerank.NewChain(logger, buildScorers(cfg)...)
	resolver := hierarchy.New(corpusRepo, cfg.Pipeline.ContextCharBudget, logger)
	evidenceSvc := evidence.New(
		cfg.Pipeline.EvidenceThreshold,
		cfg.Pipeline.StrongMatchScore,
		cfg.Pipeline.StrongMatchMinimum,
		logger,
	)

	pipe := pipeline.New(
		expander, retrieveSvc, booster, reranker, resolver, evidenceSvc, contextCache,
		cfg.Pipeline.TopK, cfg.Pipeline.ContextCharBudget, logger,
	)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder), graphRepo)

	server := chiTransport.NewServer(pipe, graphRepo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Retrying
func buildEmbedder(base domain.Embedder, cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	embedder := base
	if store != nil {
		embedder = embcache.New(
			base,
			store,
			cfg.Database.KeyPrefix,
			time.Duration(cfg.Pipeline.CacheTTL.LongSec)*time.Second,
			metrics.CacheTotal,
			logger,
		)
	}
	if cfg.Embedding.RetryOnce {
		embedder = embcache.NewRetrying(embedder, 0, logger)
	}
	return embedder
}

// buildScorers assembles the rerank provider chain in precedence order.
// NewChain appends the terminal lexical scorer itself.
func buildScorers(cfg config.Config) []rerank.Scorer {
	var scorers []rerank.Scorer
	if cfg.Rerank.Remote.APIKey != "" {
		scorers = append(scorers, rerankapi.NewClient(&rerankapi.Config{
			BaseURL: cfg.Rerank.Remote.BaseURL,
			APIKey:  cfg.Rerank.Remote.APIKey,
			Model:   cfg.Rerank.Remote.Model,
			Timeout: time.Duration(cfg.Rerank.Remote.TimeoutSec) * time.Second,
		}))
	}
	if cfg.Rerank.Local.Endpoint != "" {
		local := rerankapi.NewLocalClient(
			cfg.Rerank.Local.Endpoint,
			time.Duration(cfg.Rerank.Local.TimeoutSec)*time.Second,
		)
		scorers = append(scorers, rerank.NewLocal(local))
	}
	return scorers
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
