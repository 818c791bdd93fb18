// Package server initializes and runs the application server: database,
// capability registry, storage adapters, orchestration services and the
// HTTP surface, with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/config"
	"github.com/futuravault/futuravault/internal/server/httpapi"
	"github.com/futuravault/futuravault/internal/server/models"
	"github.com/futuravault/futuravault/internal/server/repositories/repomanager"
	"github.com/futuravault/futuravault/internal/server/services"
	"github.com/futuravault/futuravault/internal/storage"
	"github.com/futuravault/futuravault/internal/storage/blobput"
	"github.com/futuravault/futuravault/internal/storage/canister"
	"github.com/futuravault/futuravault/internal/storage/registry"
	"github.com/futuravault/futuravault/internal/storage/s3multi"
	"github.com/futuravault/futuravault/internal/transform"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	server *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()

	reg := registry.New(registry.Config{
		NeonConfigured: cfg.NeonConfigured(),
		ICPConfigured:  cfg.ICPConfigured(),
		CanisterID:     cfg.CanisterID,
		GrantTTL:       cfg.GrantTTL,
	})

	objectPut := blobput.New(cfg.BlobBaseEndpoint, cfg.BlobPublicBase, cfg.BlobToken, logger)

	neonDesc, _ := reg.Describe(models.BackendNeon)
	multipart := s3multi.New(s3multi.Config{
		Region:       cfg.S3Region,
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
		PublicBase:   cfg.S3PublicBase,
	}, neonDesc.Limits.PartSize, logger)

	var canisterAdapter storage.Adapter
	if cfg.ICPConfigured() {
		identity := canister.DeriveIdentity([]byte(cfg.IdentitySecret), []byte(cfg.IdentitySalt))
		agent := canister.NewHTTPAgent(cfg.ICPGatewayEndpoint, cfg.CanisterID, identity)
		icpDesc, _ := reg.Describe(models.BackendICP)
		canisterAdapter = canister.NewAdapter(agent, identity, cfg.CapsuleID, icpDesc.Limits, logger)
	} else {
		// Unrouted while unconfigured; fails with an identity error if
		// something reaches it anyway.
		canisterAdapter = canister.NewAdapter(nil, nil, "", models.BackendLimits{}, logger)
	}

	selector := services.NewSelector(reg, services.AdapterSet{
		ObjectPut: objectPut,
		Multipart: multipart,
		Canister:  canisterAdapter,
	})

	var transformer transform.Transformer
	if cfg.ResizerEndpoint != "" {
		transformer = transform.NewHTTPTransformer(cfg.ResizerEndpoint)
	}

	recorder := services.NewRecorder(db, repos, logger)
	cleanup := services.NewCleanupCoordinator(db, repos, selector, logger)
	uploads := services.NewUploadService(db, repos, reg, selector, transformer, recorder, logger)
	memories := services.NewMemoryService(db, repos, reg, recorder, cleanup, logger)

	srv := httpapi.NewServer(cfg.EndpointAddrHTTP, logger, uploads, memories, cfg.SecretKey)

	return &App{config: cfg, logger: logger, db: db, repos: repos, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migrations failed", "error", err)
		return
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
