// Docmind is the document ingestion daemon.
//
// It consumes ingestion jobs from NATS JetStream one at a time, runs each
// through extraction, indexing, summarization and mind-map synthesis, and
// serves health, metrics and read-only views over HTTP.
//
// Configuration is loaded from ~/.config/docmind/config.yaml (or -config)
// overlaid with DOCMIND_* environment variables. See internal/config.
//
// Usage:
//
//	# Start the daemon
//	docmind
//
//	# Also submit files dropped into data_dir/<group>/
//	docmind -watch
//
//	# Configure via environment
//	DOCMIND_NATS_URL=nats://queue:4222 DOCMIND_VECTORSTORE_PROVIDER=qdrant docmind
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/docmind/internal/bootstrap"
	"github.com/fyrsmithlabs/docmind/internal/chunk"
	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/embeddings"
	"github.com/fyrsmithlabs/docmind/internal/extract"
	"github.com/fyrsmithlabs/docmind/internal/http"
	"github.com/fyrsmithlabs/docmind/internal/intake"
	"github.com/fyrsmithlabs/docmind/internal/llm"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/pipeline"
	"github.com/fyrsmithlabs/docmind/internal/store"
	"github.com/fyrsmithlabs/docmind/internal/telemetry"
	"github.com/fyrsmithlabs/docmind/internal/vectorstore"
	"github.com/fyrsmithlabs/docmind/internal/worker"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/docmind/config.yaml)")
	watch := flag.Bool("watch", false, "submit files written into group directories")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  docmind [-config file] [-watch]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  docmind version                   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(ctx, cfg, *watch); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}
	log.Println("Shutdown complete")
}

func printVersion() {
	fmt.Printf("docmind by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every collaborator and blocks until ctx is cancelled:
//  1. Logger and telemetry
//  2. Infrastructure (NATS, metadata store, vector store)
//  3. Model clients (embeddings, chat model)
//  4. Pipeline and worker
//  5. HTTP server and, optionally, the upload watcher
//
// A job interrupted by shutdown is not acknowledged and is redelivered on the
// next start.
func run(ctx context.Context, cfg *config.Config, watch bool) error {
	logger, err := bootstrap.Logger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, exporting disabled", zap.Error(terr))
	}

	logger.Info(ctx, "starting docmind",
		zap.String("version", version),
		zap.String("data_dir", cfg.Data.Dir),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("database", cfg.Database.Driver),
	)

	deps, err := initDependencies(ctx, cfg, tel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := worker.NewMetrics(registry)

	w, err := newWorker(cfg, deps, tel, metrics, logger)
	if err != nil {
		return err
	}

	srv, err := http.NewServer(&http.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}, deps.store, logger,
		http.WithHealthCheck("database", deps.store.Ping),
		http.WithHealthCheck("nats", deps.queue.Health),
		http.WithGatherer(registry),
		http.WithMetrics(http.NewHTTPMetrics(tel.Meter("docmind.http"), logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	var watcher *intake.Watcher
	if watch {
		submitter := intake.NewSubmitter(deps.store, deps.queue, cfg.Data.Dir, logger)
		watcher, err = intake.NewWatcher(submitter, intake.WithDebounce(cfg.Intake.Debounce.Duration()))
		if err != nil {
			return err
		}
	}

	sub, err := deps.queue.Subscribe()
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx, sub)
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	logger.Info(ctx, "docmind ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Bool("watch", watch),
	)

	return g.Wait()
}

// dependencies holds the infrastructure clients.
type dependencies struct {
	queue    *bootstrap.Queue
	store    *store.Store
	vectors  vectorstore.Store
	embedder *embeddings.Service
	llm      *llm.Client
	logger   *logging.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	ctx := context.Background()
	if d.embedder != nil {
		_ = d.embedder.Close()
	}
	if d.vectors != nil {
		if err := d.vectors.Close(); err != nil {
			d.logger.Warn(ctx, "closing vector store", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn(ctx, "closing metadata store", zap.Error(err))
		}
	}
	if d.queue != nil {
		d.queue.Close()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}
	fail := func(err error) (*dependencies, error) {
		deps.Close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fail(fmt.Errorf("creating data dir: %w", err))
	}

	q, err := bootstrap.ConnectQueue(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	deps.queue = q

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return fail(err)
	}
	deps.store = st

	vectors, err := vectorstore.NewStore(cfg, logger)
	if err != nil {
		return fail(err)
	}
	deps.vectors = vectors

	embedClient, err := embeddings.NewOpenAI(embeddings.OpenAIConfig{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create embedding client: %w", err))
	}
	embedder, err := embeddings.NewService(embedClient, embeddings.Options{
		Model:       cfg.Embeddings.Model,
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
		Metrics:     embeddings.NewMetrics(tel.Meter("docmind.embeddings"), logger),
	})
	if err != nil {
		return fail(err)
	}
	deps.embedder = embedder
	logger.Info(ctx, "embedding service initialized",
		zap.String("base_url", cfg.Embeddings.BaseURL),
		zap.String("model", cfg.Embeddings.Model))

	model, err := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey.Value(),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create chat model: %w", err))
	}
	client, err := llm.New(model, llm.Options{
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, logger)
	if err != nil {
		return fail(err)
	}
	deps.llm = client
	logger.Info(ctx, "chat model initialized",
		zap.String("base_url", cfg.LLM.BaseURL),
		zap.String("model", cfg.LLM.Model))

	return deps, nil
}

func newWorker(cfg *config.Config, deps *dependencies, tel *telemetry.Telemetry, metrics *worker.Metrics, logger *logging.Logger) (*worker.Worker, error) {
	chunker, err := chunk.New(chunk.Options{
		Size:    cfg.Pipeline.ChunkSize,
		Overlap: cfg.Pipeline.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	processor, err := pipeline.New(pipeline.Deps{
		DataDir:    cfg.Data.Dir,
		Metadata:   deps.store,
		Extractor:  extract.New(),
		Chunker:    chunker,
		Embedder:   deps.embedder,
		Vectors:    deps.vectors,
		Summarizer: deps.llm,
		MindMapper: mindmap.NewSynthesizer(deps.llm, logger),
		Timeouts:   pipeline.TimeoutsFromConfig(cfg.Pipeline),
		Logger:     logger,
		Tracer:     tel.Tracer("docmind.pipeline"),
		Observer:   metrics.ObserveStage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	opts := []worker.Option{
		worker.WithMetrics(metrics),
		worker.WithTracer(tel.Tracer("docmind.worker")),
	}
	if !cfg.NATS.DisableDropped {
		opts = append(opts, worker.WithDropped(deps.queue))
	}

	return worker.New(worker.Config{
		DataDir:   cfg.Data.Dir,
		Heartbeat: cfg.NATS.AckWait.Duration() / 2,
	}, processor, logger, opts...)
}
