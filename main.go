package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/insightlabs/insight-engine/pkg/adapters/tabular"
	pgadapter "github.com/insightlabs/insight-engine/pkg/adapters/tabular/postgres"
	"github.com/insightlabs/insight-engine/pkg/adapters/tabular/sqlite"
	"github.com/insightlabs/insight-engine/pkg/config"
	"github.com/insightlabs/insight-engine/pkg/database"
	"github.com/insightlabs/insight-engine/pkg/handlers"
	"github.com/insightlabs/insight-engine/pkg/logging"
	"github.com/insightlabs/insight-engine/pkg/middleware"
	"github.com/insightlabs/insight-engine/pkg/models"
	"github.com/insightlabs/insight-engine/pkg/repositories"
	"github.com/insightlabs/insight-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded", zap.String("config", cfg.Redacted()))

	ctx := context.Background()

	// Index-store schema first, over a plain database/sql connection.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to index store", zap.Error(err))
	}
	defer db.Close()

	datasetRepo := repositories.NewDatasetRepository(db)
	indexRepo := repositories.NewIndexRepository(db)

	engineFactory := tabular.NewEngineFactory(map[models.SourceType]tabular.EngineConstructor{
		models.SourceTypeSQLite:   sqlite.Constructor(cfg.Tabular.SQLitePath),
		models.SourceTypePostgres: pgadapter.Constructor(),
	})

	indexService, err := services.NewIndexService(datasetRepo, indexRepo, engineFactory, services.IndexServiceConfig{
		ColumnWorkers: cfg.Indexing.ColumnWorkers,
		StageTimeout:  cfg.Indexing.StageTimeout(),
		QueryTimeout:  cfg.Tabular.QueryTimeout(),
		CacheSize:     cfg.Indexing.IndexCacheSize,
		Defaults: models.IndexBuildOptions{
			MaxColumnsForCorrelation: cfg.Indexing.MaxColumnsForCorrelation,
			TopKEdgesPerColumn:       cfg.Indexing.TopKEdgesPerColumn,
			SampleRows:               cfg.Indexing.SampleRows,
			IncludeStringPatterns:    true,
			IncludeDistributions:     true,
		},
	}, logger)
	if err != nil {
		logger.Fatal("failed to create index service", zap.Error(err))
	}
	datasetService := services.NewDatasetService(datasetRepo, indexService, cfg.Tabular.SQLitePath, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDatasetHandler(datasetService, logger).RegisterRoutes(mux)
	handlers.NewIndexHandler(indexService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting insight-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
