package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iago/assessment-dispatch/internal/ai"
	"github.com/iago/assessment-dispatch/internal/cache"
	"github.com/iago/assessment-dispatch/internal/config"
	"github.com/iago/assessment-dispatch/internal/dispatch"
	"github.com/iago/assessment-dispatch/internal/formatting"
	"github.com/iago/assessment-dispatch/internal/generation"
	httpserver "github.com/iago/assessment-dispatch/internal/http"
	"github.com/iago/assessment-dispatch/internal/http/handlers"
	"github.com/iago/assessment-dispatch/internal/quality"
	"github.com/iago/assessment-dispatch/internal/queue"
	"github.com/iago/assessment-dispatch/internal/repository"
	"github.com/iago/assessment-dispatch/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the HTTP API and the dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, done, err := bootstrap()
		if err != nil {
			return err
		}
		defer done()
		log := logger.Sugar()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()

		gateway, err := setupStorage(cfg, log)
		if err != nil {
			return err
		}

		recorder, catalog, repoCloser := setupRepository(ctx, cfg, log)
		defer repoCloser()

		snapshots, snapshotCloser, err := setupSnapshots(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer snapshotCloser()

		generator, err := generation.NewService(generation.Dependencies{
			Router: ai.NewModelRouter(ai.ModelRouterConfig{
				VivaPrimary:   cfg.AI.VivaModel,
				RubricPrimary: cfg.AI.RubricModel,
			}),
			Client:            setupAIClient(cfg),
			RequestsPerMinute: cfg.AI.RequestsPerMinute,
			PromptsDir:        cfg.AI.PromptsDir,
			Logger:            log.Named("generation"),
		})
		if err != nil {
			return err
		}

		similarity, _ := formatting.SimilarityByName(cfg.Dispatch.Similarity)
		dispatcher, err := dispatch.New(dispatch.Dependencies{
			Storage:     gateway,
			Generator:   generator,
			Recorder:    recorder,
			Catalog:     catalog,
			Snapshots:   snapshots,
			Similarity:  similarity,
			Validator:   quality.NewOutputValidator(),
			StreamInput: cfg.Dispatch.StreamInput,
			Results: cache.Config{
				TTL:        cfg.Dispatch.ResultTTL,
				MaxEntries: cfg.Dispatch.ResultLimit,
			},
			Logger: log.Named("dispatch"),
		})
		if err != nil {
			return err
		}
		if _, err := dispatcher.Initialize(ctx, dispatch.Options{
			PollInterval: cfg.Dispatch.PollInterval,
			Reload:       cfg.Dispatch.ReloadQueue,
			Synchronous:  cfg.Dispatch.Synchronous,
		}); err != nil {
			return err
		}

		handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
			API:            handlers.NewAPI(dispatcher, gateway, log.Named("http")),
			Logger:         log.Named("http"),
			APIKey:         cfg.APIKey,
			CORSOrigins:    cfg.CORSAllowedOrigins,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		})

		writeTimeout := 15 * time.Second
		if cfg.Dispatch.Synchronous {
			writeTimeout = cfg.AI.Timeout * time.Duration(cfg.AI.MaxRetries+2)
		}
		server := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		}

		errChan := make(chan error, 1)
		go func() {
			log.Infow("api listening", "port", cfg.Port)
			errChan <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
		case err := <-errChan:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("server failed", "error", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace(cfg))
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorw("graceful shutdown failed", "error", err)
		}
		if _, err := dispatcher.Shutdown(shutdownCtx, cfg.Dispatch.PersistQueue); err != nil {
			log.Errorw("dispatcher shutdown failed", "error", err)
			return err
		}
		return nil
	},
}

// shutdownGrace covers one worst-case generation: every retry of the primary
// model, then every retry of the fallback, plus time to persist the queue.
func shutdownGrace(cfg config.Config) time.Duration {
	attempts := time.Duration(cfg.AI.MaxRetries + 1)
	return 2*attempts*cfg.AI.Timeout + 30*time.Second
}

func setupStorage(cfg config.Config, log *zap.SugaredLogger) (storage.Gateway, error) {
	if cfg.Storage.Backend == "s3" {
		gateway, err := storage.NewMinioGateway(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Infow("object storage initialized", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
		return gateway, nil
	}

	root := filepath.Join(cfg.Storage.LocalDir, cfg.Storage.Bucket)
	gateway, err := storage.NewLocalGateway(root, "")
	if err != nil {
		return nil, err
	}
	log.Infow("local storage initialized", "root", root)
	return gateway, nil
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	log *zap.SugaredLogger,
) (repository.ArtifactRecorder, repository.QuestionCatalog, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not configured, using in-memory repository")
		memory := repository.NewMemoryStore()
		return memory, memory, func() {}
	}

	store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Errorw("failed to initialize postgres repository, fallback to memory", "error", err)
		memory := repository.NewMemoryStore()
		return memory, memory, func() {}
	}
	log.Info("postgres repository initialized")
	return store, store, store.Close
}

func setupSnapshots(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (queue.SnapshotStore, func(), error) {
	if cfg.Dispatch.Snapshot == "redis" {
		store, err := queue.NewRedisSnapshotStore(ctx, queue.RedisSnapshotConfig{
			URL: cfg.Dispatch.RedisURL,
			Key: cfg.Dispatch.RedisQueueKey,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Infow("redis queue snapshots enabled", "key", cfg.Dispatch.RedisQueueKey)
		return store, func() { _ = store.Close() }, nil
	}

	store := queue.NewFileSnapshotStore(cfg.Dispatch.QueueFile)
	log.Infow("file queue snapshots enabled", "path", store.Path())
	return store, func() {}, nil
}

func setupAIClient(cfg config.Config) ai.TextGenerator {
	if cfg.AI.Provider == "openrouter" {
		return ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
			APIKey:     cfg.AI.OpenRouterAPIKey,
			BaseURL:    cfg.AI.OpenRouterBaseURL,
			Timeout:    cfg.AI.Timeout,
			MaxRetries: cfg.AI.MaxRetries,
		})
	}
	return ai.NewOpenAIClient(ai.OpenAIClientConfig{
		APIKey:       cfg.AI.OpenAIAPIKey,
		BaseURL:      cfg.AI.OpenAIBaseURL,
		Organization: cfg.AI.OpenAIOrg,
		Project:      cfg.AI.OpenAIProject,
		Timeout:      cfg.AI.Timeout,
		MaxRetries:   cfg.AI.MaxRetries,
	})
}
