package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-stock/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-stock/internal/audit/http"
	"github.com/odyssey-erp/odyssey-stock/internal/batch"
	"github.com/odyssey-erp/odyssey-stock/internal/erpsync"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/migrate"
	"github.com/odyssey-erp/odyssey-stock/internal/procurement"
	"github.com/odyssey-erp/odyssey-stock/internal/rbac"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/stocktake"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "api")

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		opts := cli.MigrateOptions{}
		if len(os.Args) > 2 {
			opts.Command = os.Args[2]
			opts.Args = os.Args[3:]
		}
		code := cli.MigrateCommand(ctx, migrate.OpenDB(dbpool), opts)
		dbpool.Close()
		os.Exit(code)
	}
	if cfg.MigrateOnStart {
		if err := migrate.Up(ctx, migrate.OpenDB(dbpool)); err != nil {
			logger.Error("migrate on start", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, rbac cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := cfg.Redis().AsynqOpt()
	notifier := jobs.NewClient(redisOpts)
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	runner := db.NewRunner(dbpool, cfg.TxProfiles())
	seq := sequence.New(nil)
	operator := batch.New(cfg.BatchConcurrency, logger)
	operator.SetObserver(metrics)

	masterService := masterdata.NewService(masterdata.NewRepository(dbpool))
	catalog := masterService.Catalog()

	inventoryService := inventory.NewService(
		inventory.NewRepository(runner),
		inventory.NewLedger(),
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
		notifier,
		logger,
	)

	procurementService := procurement.NewService(procurement.NewRepository(runner), catalog, inventoryService, seq, notifier, logger)
	procurementService.SetObserver(metrics)

	movementService := movement.NewService(movement.NewRepository(runner), catalog, inventoryService, seq, notifier, logger)
	movementService.SetObserver(metrics)

	stockTakeService := stocktake.NewService(stocktake.NewRepository(runner), catalog, movementService, seq, notifier, logger)

	rbacService := rbac.NewService(rbac.NewStore(dbpool), redisClient, cfg.RBACCacheTTL, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	auditService := audit.NewService(audit.NewRepository(dbpool))

	keys, err := erpsync.NewKeyChecker(cfg.ERPAPIKeys)
	if err != nil {
		logger.Error("erp api keys", slog.Any("error", err))
		os.Exit(1)
	}
	var erpHandler *erpsync.Handler
	if !keys.Empty() {
		erpService := erpsync.NewService(
			catalog,
			movementService,
			erpsync.NewLogStore(dbpool),
			erpsync.Config{SystemUserID: cfg.ERPSystemUserID},
			logger,
		)
		erpHandler = erpsync.NewHandler(logger, erpService, keys)
	} else {
		logger.Info("erp sync disabled, no api keys configured")
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RBACMiddleware:     rbacMiddleware,
		ProcurementHandler: procurement.NewHandler(logger, procurementService, operator),
		MovementHandler:    movement.NewHandler(logger, movementService, operator),
		StockTakeHandler:   stocktake.NewHandler(logger, stockTakeService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		MasterDataHandler:  masterdata.NewHandler(logger, masterService),
		AuditHandler:       audithttp.NewHandler(logger, auditService),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		ERPHandler:         erpHandler,
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	opts := cli.JobsOptions{}
	if len(args) > 0 {
		opts.Command = args[0]
		opts.Args = args[1:]
	}
	c, err := cli.NewJobsCLI(cfg.Redis().AsynqOpt())
	if err != nil {
		return cli.JobsCommand(ctx, nil, opts)
	}
	defer c.Close()
	return cli.JobsCommand(ctx, c, opts)
}
