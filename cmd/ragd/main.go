package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tuannvm/multiagent-rag/internal/config"
	"github.com/tuannvm/multiagent-rag/internal/embedding"
	"github.com/tuannvm/multiagent-rag/internal/llm"
	"github.com/tuannvm/multiagent-rag/internal/logging"
	"github.com/tuannvm/multiagent-rag/internal/logsearch"
	"github.com/tuannvm/multiagent-rag/internal/metrics"
	"github.com/tuannvm/multiagent-rag/internal/orchestrator"
	"github.com/tuannvm/multiagent-rag/internal/store"
	"github.com/tuannvm/multiagent-rag/internal/strategy"
	"github.com/tuannvm/multiagent-rag/internal/supervisor"
	"github.com/tuannvm/multiagent-rag/internal/transport"
	"github.com/tuannvm/multiagent-rag/internal/websearch"
	"github.com/tuannvm/multiagent-rag/internal/writer"
)

func main() {
	logging.Logger = zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
				TimeKey:      "ts",
				LevelKey:     "lvl",
				MessageKey:   "message",
				CallerKey:    "caller",
				EncodeLevel:  zapcore.CapitalColorLevelEncoder,
				EncodeTime:   zapcore.RFC3339TimeEncoder,
				EncodeCaller: zapcore.ShortCallerEncoder,
			}),
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(zap.InfoLevel),
		),
		zap.AddCaller(),
	).Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ragd: failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	embedder, err := embedding.New(embedding.Config{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		ServiceURL: cfg.LLM.ServiceURL,
		Dim:        cfg.Embed.Dim,
	}, reg)
	if err != nil {
		log.Fatalf("ragd: failed to initialize embedding client: %v", err)
	}

	ticketStore, err := buildStore(ctx, cfg, embedder)
	if err != nil {
		log.Fatalf("ragd: failed to initialize ticket store: %v", err)
	}

	fastLLM, strongLLM, err := llm.NewTiers(cfg.LLM)
	if err != nil {
		log.Fatalf("ragd: failed to initialize LLM clients: %v", err)
	}

	strategies := buildStrategies(cfg, ticketStore, fastLLM)

	sup := supervisor.New(classifierFor(cfg, strongLLM))
	respWriter := writer.New(strongLLM)

	o := orchestrator.New(sup, strategies, respWriter, resolveStrategyTimeouts(cfg.Fusion.StrategyTimeouts), cfg.Fusion.DefaultTopK, reg)

	var auth transport.Auth
	if cfg.Auth.Type == "apikey" {
		auth = transport.SharedSecretAuth{Header: "X-API-Key", Key: cfg.Auth.APIKey}
	}
	server := transport.New(o, auth, reg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logging.Infof("ragd: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ragd: HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("ragd: graceful shutdown failed: %v", err)
	}
	logging.Infof("ragd: shutdown complete")
}

// buildStore wires the configured collection_backend: "primary" (pgvector
// only), "fallback" (in-memory only), or "auto" (pgvector with automatic
// demotion to in-memory after the first pgvector error).
func buildStore(ctx context.Context, cfg *config.Config, embedder embedding.Embedder) (store.TicketStore, error) {
	memoryStore := store.NewMemoryStore(nil, embedder)

	switch cfg.Store.Backend {
	case "fallback":
		return memoryStore, nil
	case "primary":
		return store.NewPGStore(ctx, cfg.Store.DSN, embedder)
	default: // "auto"
		if cfg.Store.DSN == "" {
			logging.Warnf("ragd: no store DSN configured, running with in-memory store only")
			return memoryStore, nil
		}
		pg, err := store.NewPGStore(ctx, cfg.Store.DSN, embedder)
		if err != nil {
			logging.Warnf("ragd: pgvector store unavailable at startup (%v), starting demoted to in-memory", err)
			return memoryStore, nil
		}
		return store.NewAutoStore(pg, memoryStore), nil
	}
}

func buildStrategies(cfg *config.Config, ticketStore store.TicketStore, fastLLM llm.Client) map[string]strategy.Strategy {
	var reranker strategy.Reranker
	if cfg.Fusion.RerankerEnabled {
		reranker = strategy.NewLLMReranker(fastLLM)
	}
	compression := strategy.NewCompression(ticketStore, reranker, cfg.Fusion.RerankerEnabled)
	ensemble := strategy.NewEnsemble(ticketStore, compression, strategy.NewLLMParaphraser(fastLLM))
	bm25 := strategy.NewBM25(ticketStore)

	webStrategy := websearch.New(
		websearch.NewPlanner(fastLLM, cfg.Web.MaxSearches),
		websearch.NewTavilyProvider(cfg.Web.APIKey),
		cfg.Web.Fanout,
		cfg.Web.Timeout,
	)

	logStrategy := logsearch.New(
		logsearch.NewPlanner(fastLLM, cfg.Log.MaxSearches, cfg.Log.ExceptionCatalogue),
		logBackendFor(cfg),
		cfg.Log.Fanout,
	)

	return map[string]strategy.Strategy{
		bm25.Name():        bm25,
		compression.Name(): compression,
		ensemble.Name():    ensemble,
		webStrategy.Name(): webStrategy,
		logStrategy.Name(): logStrategy,
	}
}

// resolveStrategyTimeouts overlays the configured strategy_timeout_* values
// (the strategy_timeouts_ms configuration knob) onto the documented
// defaults, leaving any zero/unset entry at its default rather than letting
// a missing env var collapse a strategy's timeout to zero.
func resolveStrategyTimeouts(configured map[string]time.Duration) orchestrator.StrategyTimeouts {
	timeouts := orchestrator.DefaultStrategyTimeouts()
	for name, d := range configured {
		if d > 0 {
			timeouts[name] = d
		}
	}
	return timeouts
}

func logBackendFor(cfg *config.Config) logsearch.Backend {
	switch cfg.Log.Backend {
	case "splunk":
		return logsearch.NewSplunkBackend(os.Getenv("SPLUNK_URL"), os.Getenv("SPLUNK_TOKEN"), os.Getenv("SPLUNK_INDEX"))
	case "gcp":
		projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
		if projectID == "" {
			logging.Warnf("ragd: GOOGLE_CLOUD_PROJECT not set, log search will report unavailable")
			return nil
		}
		return logsearch.NewGCPBackend(projectID, os.Getenv("GCP_LOG_NAME"), gcpTokenFromEnv)
	default:
		logging.Warnf("ragd: unrecognized log backend %q, log search disabled", cfg.Log.Backend)
		return nil
	}
}

// gcpTokenFromEnv reads a short-lived OAuth2 bearer token from the
// environment. Production deployments should replace this with an
// Application Default Credentials token source; wiring that requires a
// credentials file path this engine has no opinion about.
func gcpTokenFromEnv(ctx context.Context) (string, error) {
	token := os.Getenv("GCP_ACCESS_TOKEN")
	if token == "" {
		return "", fmt.Errorf("ragd: GCP_ACCESS_TOKEN not set")
	}
	return token, nil
}

func classifierFor(cfg *config.Config, strongLLM llm.Client) llm.Client {
	if cfg.LLM.ClassifierLLM {
		return strongLLM
	}
	return nil
}
