package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syscred/evidence-engine/internal/analytics"
	"github.com/syscred/evidence-engine/internal/cache"
	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/dataset"
	"github.com/syscred/evidence-engine/internal/retriever"
	"github.com/syscred/evidence-engine/internal/scorer"
	"github.com/syscred/evidence-engine/internal/server"
	"github.com/syscred/evidence-engine/pkg/config"
	"github.com/syscred/evidence-engine/pkg/health"
	"github.com/syscred/evidence-engine/pkg/kafka"
	"github.com/syscred/evidence-engine/pkg/logger"
	"github.com/syscred/evidence-engine/pkg/metrics"
	"github.com/syscred/evidence-engine/pkg/middleware"
	pkgredis "github.com/syscred/evidence-engine/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting retriever service",
		"port", cfg.Server.Port,
		"corpus", cfg.Dataset.CorpusPath,
		"default_model", cfg.Retrieval.DefaultModel,
	)

	engine := retriever.New(retriever.Config{
		Params: scorer.Params{
			K1: cfg.Retrieval.K1,
			B:  cfg.Retrieval.B,
			Mu: cfg.Retrieval.Mu,
		},
		PRFTopDocs: cfg.Retrieval.PRFTopDocs,
		PRFTerms:   cfg.Retrieval.PRFTerms,
	})

	m := metrics.New()

	loadCorpus := func(ctx context.Context) error {
		start := time.Now()
		raw, err := dataset.LoadCorpus(cfg.Dataset.CorpusPath)
		if err != nil {
			return err
		}
		store, err := corpus.Build(raw)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		engine.SetCorpus(store)
		m.IndexBuildSeconds.Observe(time.Since(start).Seconds())
		m.IndexedDocs.Set(float64(engine.DocCount()))
		return nil
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := loadCorpus(startCtx); err != nil {
		startCancel()
		slog.Error("failed to load corpus", "path", cfg.Dataset.CorpusPath, "error", err)
		os.Exit(1)
	}
	startCancel()
	slog.Info("corpus indexed", "docs", engine.DocCount(), "terms", engine.TermCount())

	var resultCache *cache.ResultCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis)
		slog.Info("result cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RetrievalEvents)
	defer eventsProducer.Close()
	collector := analytics.NewCollector(eventsProducer, 1000, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.RetrievalEvents)

	// Corpus reload events trigger a rebuild from the (possibly replaced)
	// corpus file, followed by cache invalidation.
	reloadConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusReload,
		func(msgCtx context.Context, key, value []byte) error {
			slog.Info("corpus reload requested", "key", string(key))
			if err := loadCorpus(msgCtx); err != nil {
				m.IndexRebuildsTotal.WithLabelValues("error").Inc()
				return err
			}
			m.IndexRebuildsTotal.WithLabelValues("ok").Inc()
			if resultCache != nil {
				if err := resultCache.Invalidate(msgCtx); err != nil {
					slog.Error("cache invalidation after reload failed", "error", err)
				}
			}
			collector.Track("reindex", analytics.ReindexEvent{
				Type:       analytics.EventReindex,
				CorpusPath: cfg.Dataset.CorpusPath,
				Docs:       engine.DocCount(),
				Terms:      engine.TermCount(),
				Timestamp:  time.Now().UTC(),
			})
			return nil
		})
	go func() {
		if err := reloadConsumer.Start(ctx); err != nil {
			slog.Error("corpus reload consumer error", "error", err)
		}
	}()
	slog.Info("corpus reload consumer started", "topic", cfg.Kafka.Topics.CorpusReload)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if n := engine.DocCount(); n > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents indexed", n)}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no corpus loaded"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(engine, resultCache, collector, m, cfg.Retrieval, loadCorpus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/retrieve", h.Retrieve)
	mux.HandleFunc("POST /api/v1/reindex", h.Reindex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("retriever service listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("retriever service stopped")
}
