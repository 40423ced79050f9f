package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/ado"
	"github.com/kuhlman-labs/migration-planner/internal/api"
	"github.com/kuhlman-labs/migration-planner/internal/batch"
	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/discovery"
	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/logging"
	"github.com/kuhlman-labs/migration-planner/internal/migration"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/services"
	"github.com/kuhlman-labs/migration-planner/internal/source"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
	"github.com/kuhlman-labs/migration-planner/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migration-planner: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	db, err := storage.NewDatabase(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = db.Close() }()

	destClient, err := github.NewClient(github.ClientConfig{
		BaseURL: cfg.Destination.BaseURL,
		Token:   cfg.Destination.Token,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create destination client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceClient, discover, err := buildSource(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	repoSvc := services.NewRepositoryService(db, db, logger)
	batchSvc := services.NewBatchService(db, db, logger)

	executor, err := migration.NewExecutor(migration.ExecutorConfig{
		SourceClient: sourceClient,
		SourceToken:  cfg.Source.Token,
		DestClient:   destClient,
		RepoStore:    db,
		HistoryStore: db,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create migration executor: %w", err)
	}

	migrationWorker, err := worker.New(worker.Config{
		Importer:     executor,
		RepoStore:    db,
		Batches:      db,
		Logger:       logger,
		PollInterval: time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		Workers:      cfg.Worker.Workers,
	})
	if err != nil {
		return fmt.Errorf("failed to create migration worker: %w", err)
	}

	statusUpdater, err := batch.NewStatusUpdater(batch.StatusUpdaterConfig{
		Database: db,
		Logger:   logger,
		Interval: time.Duration(cfg.Batch.StatusIntervalSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch status updater: %w", err)
	}

	scheduler, err := batch.NewScheduler(batch.SchedulerConfig{
		Database: db,
		Starter:  batchSvc,
		Logger:   logger,
		Interval: time.Duration(cfg.Batch.SchedulerIntervalSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch scheduler: %w", err)
	}

	if err := migrationWorker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start migration worker: %w", err)
	}
	go statusUpdater.Start(ctx)
	go scheduler.Start(ctx)

	server := api.NewServer(db, repoSvc, batchSvc, discover, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	statusUpdater.Stop()
	scheduler.Stop()
	if err := migrationWorker.Stop(); err != nil {
		logger.Error("Migration worker shutdown failed", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// buildSource creates the source-side clients and the discovery entry point
// for the configured source type. The returned client is nil for Azure
// DevOps sources.
func buildSource(ctx context.Context, cfg *config.Config, db *storage.Database, logger *slog.Logger) (*github.Client, api.DiscoveryFunc, error) {
	provider, err := source.NewProviderFromConfig(cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create source provider: %w", err)
	}

	if cfg.Source.Type == models.SourceAzureDevOps {
		discover, err := buildADODiscovery(ctx, cfg, db, provider, logger)
		if err != nil {
			return nil, nil, err
		}
		return nil, discover, nil
	}

	clientCfg := github.ClientConfig{
		BaseURL: cfg.Source.BaseURL,
		Token:   cfg.Source.Token,
		Logger:  logger,
	}
	if cfg.Source.AppID != 0 {
		clientCfg.App = &github.AppConfig{
			AppID:          cfg.Source.AppID,
			PrivateKey:     cfg.Source.AppPrivateKey,
			InstallationID: cfg.Source.AppInstallationID,
		}
	}
	sourceClient, err := github.NewClient(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create source client: %w", err)
	}

	orgs := cfg.Source.Organizations
	if len(orgs) == 0 {
		logger.Warn("No source organizations configured, discovery endpoint disabled")
		return sourceClient, nil, nil
	}

	collector := discovery.NewCollector(sourceClient, db, provider, cfg.Discovery, logger)
	discover := func(ctx context.Context) (*discovery.RunResult, error) {
		var merged *discovery.RunResult
		for _, org := range orgs {
			result, err := collector.DiscoverOrganization(ctx, org)
			if err != nil {
				return merged, fmt.Errorf("discovery of %s failed: %w", org, err)
			}
			merged = mergeRunResults(merged, result)
		}
		return merged, nil
	}

	return sourceClient, discover, nil
}

// buildADODiscovery creates one discoverer per configured ADO organization
// and returns a single entry point that runs them in sequence.
func buildADODiscovery(ctx context.Context, cfg *config.Config, db *storage.Database, provider source.Provider, logger *slog.Logger) (api.DiscoveryFunc, error) {
	discoverers := make([]*ado.Discoverer, 0, len(cfg.Source.ADOOrganizations))
	for _, orgURL := range cfg.Source.ADOOrganizations {
		client, err := ado.NewClient(ctx, ado.ClientConfig{
			OrganizationURL:     orgURL,
			PersonalAccessToken: cfg.Source.Token,
			Logger:              logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ADO client for %s: %w", orgURL, err)
		}
		discoverers = append(discoverers, ado.NewDiscoverer(client, db, provider, cfg.Discovery, logger))
	}

	return func(ctx context.Context) (*discovery.RunResult, error) {
		var merged *discovery.RunResult
		for _, d := range discoverers {
			result, err := d.DiscoverOrganization(ctx)
			if err != nil {
				return merged, err
			}
			merged = mergeRunResults(merged, result)
		}
		return merged, nil
	}, nil
}

func mergeRunResults(into, from *discovery.RunResult) *discovery.RunResult {
	if into == nil {
		return from
	}
	if from == nil {
		return into
	}
	into.Total += from.Total
	into.Succeeded += from.Succeeded
	into.Failed += from.Failed
	into.FailedRepos = append(into.FailedRepos, from.FailedRepos...)
	return into
}
