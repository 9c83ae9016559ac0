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
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/admin"
	"github.com/odyssey-erp/msbot/internal/app"
	"github.com/odyssey-erp/msbot/internal/dispatch"
	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/identity"
	jobmetrics "github.com/odyssey-erp/msbot/internal/jobs"
	"github.com/odyssey-erp/msbot/internal/observability"
	"github.com/odyssey-erp/msbot/internal/sessions"
	"github.com/odyssey-erp/msbot/internal/transport"
	"github.com/odyssey-erp/msbot/jobs"
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

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, release, err := app.OpenStore(ctx, cfg, logger, identity.OnPersistFailure(func(error) {
		metrics.IncPersistFailure()
	}))
	if err != nil {
		logger.Error("open identity store", slog.Any("error", err))
		os.Exit(1)
	}
	defer release()

	table := sessions.NewTable()
	controller := access.NewController(store, table, logger)

	registry := handler.NewRegistry(logger)
	if err := app.LoadHandlers(cfg, registry, handler.BuildOptions{
		HTTPClient: &http.Client{Timeout: cfg.HandlerTimeout},
		Report:     app.StatsReport(controller, registry),
	}); err != nil {
		logger.Error("load handlers", slog.Any("error", err))
		os.Exit(1)
	}
	if name, ok := registry.Default(); ok {
		logger.Info("handlers registered", slog.Int("count", registry.Len()), slog.String("default", name))
	} else {
		logger.Warn("no default handler registered", slog.Int("count", registry.Len()))
	}

	executor := admin.NewExecutor(controller, registry, table, logger)
	dispatcher := dispatch.New(dispatch.Deps{
		Access:   controller,
		Registry: registry,
		Sessions: table,
		Admin:    executor,
		Recorder: metrics,
		Logger:   logger,
	}, dispatch.WithHandlerTimeout(cfg.HandlerTimeout))

	sweepJob := jobs.NewSessionSweepJob(table, cfg.SessionTimeout, logger, jobmetrics.NewMetrics(metrics.Registerer()))
	sweepJob.Gauge = metrics

	group, gctx := errgroup.WithContext(ctx)

	var jobHandler *jobs.Handler
	if cfg.JobsEnabled {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		sweepTask, err := jobs.NewSessionSweepTask(jobs.SessionSweepPayload{RequestedBy: "scheduler"})
		if err != nil {
			logger.Error("build sweep task", slog.Any("error", err))
			os.Exit(1)
		}
		worker, err := jobs.NewWorker(jobs.WorkerConfig{
			RedisOpts: redisOpts,
			Logger:    logger,
			Handlers: []jobs.TaskHandler{
				{Type: jobs.TaskSessionSweep, Handler: sweepJob.Handle},
			},
			Cron: []jobs.CronRegistration{
				{Spec: jobs.SweepCron(cfg.SessionSweepInterval), Task: sweepTask},
			},
		})
		if err != nil {
			logger.Error("init worker", slog.Any("error", err))
			os.Exit(1)
		}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
		group.Go(func() error { return worker.Run(gctx) })
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
		group.Go(func() error { return sweepJob.RunTicker(gctx, cfg.SessionSweepInterval) })
	}

	if cfg.NATSEnabled() {
		subscriber := transport.NewNATSSubscriber(transport.NATSConfig{
			URL:            cfg.NATSURL,
			Subject:        cfg.NATSSubject,
			Name:           "msbot",
			RequestTimeout: cfg.HandlerTimeout + 5*time.Second,
		}, dispatcher, logger)
		group.Go(func() error { return subscriber.Run(gctx) })
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Messages:   transport.NewHandler(logger, dispatcher),
		JobHandler: jobHandler,
		Metrics:    metrics,
	})

	server := app.NewServer(cfg, router)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if err := store.Persist(shutdownCtx); err != nil {
			logger.Warn("final identity persist", slog.Any("error", err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("msbot run", slog.Any("error", err))
		os.Exit(1)
	}
}
