package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"pdfrag/internal/answer"
	answeropenai "pdfrag/internal/answer/openai"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	embedopenai "pdfrag/internal/embedding/openai"
	"pdfrag/internal/logging"
	"pdfrag/internal/metrics"
	"pdfrag/internal/retriever"
	"pdfrag/internal/service"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/writer"
)

// app holds the assembled components for one command invocation.
type app struct {
	cfg     *config.AppConfig
	cfgFrom string
	log     logr.Logger
	svc     *service.Service
	store   domain.VectorStore
	closers []func() error
}

func loadConfig() (*config.AppConfig, string, error) {
	var (
		cfg  *config.AppConfig
		from = cfgPath
		err  error
	)
	if cfgPath == "" {
		cfg, from, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", from, err)
	}
	return cfg, from, nil
}

// newApp loads the config and wires every component. withComposer is false
// for commands that never compose answers, so a missing chat API key does
// not block them.
func newApp(ctx context.Context, withComposer bool) (*app, error) {
	cfg, from, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, sync, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cfgFrom: from, log: log, closers: []func() error{sync}}
	log.V(1).Info("config loaded", "path", from, "embedder", cfg.Embedder.Type, "store", cfg.VectorStore.Type)

	provider, err := newProvider(cfg.Embedder)
	if err != nil {
		a.close()
		return nil, err
	}
	batcher := embedding.NewBatcher(provider,
		embedding.WithBatchSize(cfg.Embedder.BatchSize),
		embedding.WithDimension(cfg.Embedder.Dimension),
		embedding.WithConcurrency(cfg.Embedder.Concurrency),
		embedding.WithLogger(log.WithName("embedder")),
	)

	store, err := vectorstore.Open(ctx, cfg.VectorStore)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s store: %w", cfg.VectorStore.Type, err)
	}
	a.store = store
	a.closers = append(a.closers, func() error { return vectorstore.Close(store) })

	var composer answer.Composer
	if withComposer {
		if composer, err = newComposer(cfg.Answer); err != nil {
			a.close()
			return nil, err
		}
	}

	rcfg := retriever.Config{
		Threshold:       cfg.Retriever.ThresholdValue(),
		Limit:           cfg.Retriever.Limit,
		ScanLimit:       cfg.Retriever.ScanLimit,
		Dimension:       cfg.Embedder.Dimension,
		FallbackOnEmpty: cfg.Retriever.FallbackOnEmptyEnabled(),
	}
	a.svc = service.New(service.Deps{
		Chunker:  chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap),
		Embedder: batcher,
		Store:    store,
		Writer: writer.New(store,
			writer.WithBatchSize(cfg.Writer.BatchSize),
			writer.WithIDMode(writer.IDMode(cfg.Writer.IDMode)),
			writer.WithLogger(log.WithName("writer")),
		),
		Retriever: retriever.New(batcher, store, rcfg, log.WithName("retriever")),
		Composer:  composer,
		Logger:    log.WithName("service"),
	})

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

func newProvider(cfg config.EmbedderConfig) (embedding.Provider, error) {
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		o := cfg.OpenAI
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Timeout:           time.Duration(o.TimeoutSecs) * time.Second,
			ConnectTimeout:    time.Duration(o.ConnectTimeoutSecs) * time.Second,
			MaxRetries:        o.MaxRetries,
			RequestsPerSecond: o.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newComposer(cfg config.AnswerConfig) (answer.Composer, error) {
	switch cfg.Type {
	case "extractive":
		return answer.NewExtractive(cfg.MaxSentences), nil
	case "openai":
		c, err := answeropenai.New(answeropenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai composer init failed: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown answer composer: %s", cfg.Type)
	}
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(err, "metrics server stopped", "addr", addr)
		}
	}()
	a.log.Info("serving metrics", "addr", addr)
	a.closers = append(a.closers, srv.Close)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
