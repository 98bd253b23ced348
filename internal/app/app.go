package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	pkgkafka "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/kafka"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/health"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/config"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine"
	esengine "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine/elasticsearch"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine/memory"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/event"
	handler "github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/handler/http"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/service"
)

// App wires together all dependencies and runs the search API.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	consumers  []*pkgkafka.Consumer
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var eng engine.SearchEngine
	switch cfg.SearchEngine {
	case "elasticsearch":
		esEng, err := esengine.New(cfg.ElasticsearchURL, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory engine initialized")
	}

	mappingCache, err := mapping.NewCache(eng, mapping.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	searchService := service.NewSearchService(eng, mappingCache, service.Config{
		PageSize:         cfg.PageSize,
		IDOnlyMultiplier: cfg.IDOnlyMultiplier,
		DefinitionsDir:   cfg.MappingsDir,
	}, logger)

	var consumers []*pkgkafka.Consumer
	if cfg.KafkaEnabled {
		eventConsumer := event.NewConsumer(searchService, logger)
		for _, topic := range cfg.KafkaTopics {
			consumerCfg := pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaConsumerGroup,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6, // 10 MB
			}
			consumers = append(consumers,
				pkgkafka.NewConsumer(consumerCfg, eventConsumer.Handle, logger))
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(cfg.KafkaTopics)),
		)
	}

	healthHandler := health.NewHandler()
	healthHandler.Register("engine", eng.Ping)
	if cfg.KafkaEnabled {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	router := handler.NewRouter(searchService, healthHandler, cfg.AuthTokens, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		consumers:  consumers,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context
// is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		c := c
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
