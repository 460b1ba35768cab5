// Command queryengine serves the natural-language-to-SQL pipeline over a
// small HTTP surface: POST /v1/query runs a question end to end, POST
// /v1/describe streams the natural-language explanation of a result as
// server-sent events.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/nlq-sql/queryengine/pkg/chart"
	"github.com/nlq-sql/queryengine/pkg/config"
	"github.com/nlq-sql/queryengine/pkg/connection"
	"github.com/nlq-sql/queryengine/pkg/executor"
	"github.com/nlq-sql/queryengine/pkg/llmclient/anthropicllm"
	"github.com/nlq-sql/queryengine/pkg/pipeline"
	"github.com/nlq-sql/queryengine/pkg/process"
	"github.com/nlq-sql/queryengine/pkg/schema"
	"github.com/nlq-sql/queryengine/pkg/sqlgen"
	"github.com/nlq-sql/queryengine/pkg/telemetry"
	"github.com/nlq-sql/queryengine/pkg/trainer"
	"github.com/nlq-sql/queryengine/pkg/validator"
	"github.com/nlq-sql/queryengine/pkg/vectorindex"
	"github.com/nlq-sql/queryengine/pkg/vectorindex/hashembed"
	"github.com/nlq-sql/queryengine/pkg/vectorindex/memoryindex"
	"github.com/nlq-sql/queryengine/pkg/vectorindex/pgvectorindex"
)

func main() {
	fs := pflag.NewFlagSet("queryengine", pflag.ExitOnError)
	listenAddr := fs.String("listen", ":8080", "HTTP listen address")
	debug := fs.Bool("debug", false, "enable debug logging")

	opts, err := config.Load(fs, os.Args[1:])
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	log := telemetry.NewLogger(*debug)
	slog.SetDefault(log)

	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
		}); err != nil {
			log.Warn("sentry initialization failed", "error", err)
			sentryDSN = ""
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := connection.NewRegistry()
	defer registry.Close()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	embedder := hashembed.New()
	var index vectorindex.Index = memoryindex.New(embedder)
	if dsn := os.Getenv("QE_PGVECTOR_DSN"); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Error("pgvector pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		db, err := sql.Open("pgx", dsn)
		if err != nil {
			log.Error("pgvector migration connection", "error", err)
			os.Exit(1)
		}
		if err := pgvectorindex.Migrate(ctx, log, db); err != nil {
			log.Error("pgvector migrations", "error", err)
			os.Exit(1)
		}
		db.Close()

		index = pgvectorindex.New(pool, embedder)
		log.Info("using pgvector retrieval index")
	} else {
		log.Info("using in-memory retrieval index")
	}

	llm := anthropicllm.New(os.Getenv("ANTHROPIC_API_KEY"), anthropic.ModelClaudeHaiku4_5, 4096)

	discoverer := process.New(process.Options{
		MaxTables:      opts.DiscoveryMaxTables,
		MaxCardinality: opts.DiscoveryMaxCard,
		CacheTTL:       time.Duration(opts.DiscoveryCacheTTLS) * time.Second,
	})
	tr := trainer.New(
		schema.NewPoolResolver(registry),
		index,
		trainer.NewPoolFetcher(registry),
		discoverer,
		trainer.Options{MaxDistinctValues: opts.DiscoveryMaxCard},
	)
	gen := sqlgen.New(index, llm, sqlgen.Options{
		RetrievalKDDL:      opts.RetrievalKDDL,
		RetrievalKExamples: opts.RetrievalKExamples,
		TemperatureInitial: opts.TemperatureInitial,
		TemperatureDelta:   opts.TemperatureRetryDelta,
		LLMTimeout:         time.Duration(opts.LLMTimeoutMS) * time.Millisecond,
	})

	coordinator := pipeline.New(
		log, metrics, tr, gen, validator.New(),
		executor.NewPoolResolver(registry),
		chart.New(llm), discoverer, opts,
	)
	describer := pipeline.NewDescriber(llm)

	srv := &server{
		log:         log,
		coordinator: coordinator,
		describer:   describer,
		llmTimeout:  time.Duration(opts.LLMTimeoutMS) * time.Millisecond,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	if sentryDSN != "" {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/query", srv.handleQuery)
	r.Post("/v1/describe", srv.handleDescribe)
	r.Post("/v1/refresh", srv.handleRefresh)

	httpServer := &http.Server{Addr: *listenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("queryengine listening", "addr", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
