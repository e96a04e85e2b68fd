package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/incidence-service/internal/api/http"
	"github.com/spec-kit/incidence-service/internal/api/http/handlers"
	"github.com/spec-kit/incidence-service/internal/auth"
	"github.com/spec-kit/incidence-service/internal/clock"
	"github.com/spec-kit/incidence-service/internal/config"
	"github.com/spec-kit/incidence-service/internal/correlation"
	"github.com/spec-kit/incidence-service/internal/dedup"
	"github.com/spec-kit/incidence-service/internal/events"
	"github.com/spec-kit/incidence-service/internal/observability"
	"github.com/spec-kit/incidence-service/internal/persistence"
	"github.com/spec-kit/incidence-service/internal/repository"
	"github.com/spec-kit/incidence-service/internal/routing"
	"github.com/spec-kit/incidence-service/internal/service"
	"github.com/spec-kit/incidence-service/internal/transport"
	"github.com/spec-kit/incidence-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("incidence-bot: %v", err)
	}
}

func run() error {
	var envFile, routingFile string
	var hashPassword bool

	flagSet := pflag.NewFlagSet("incidence-bot", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment variables from this file (default: .env)")
	flagSet.StringVar(&routingFile, "routing", "", "routing file with categories, dictionaries and users (overrides ROUTING_FILE)")
	flagSet.BoolVar(&hashPassword, "hash-password", false, "read a password from stdin, print its bcrypt hash and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if hashPassword {
		return printPasswordHash()
	}

	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if routingFile != "" {
		cfg.Routing.File = routingFile
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	location, err := cfg.Business.Location()
	if err != nil {
		return err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var (
		incidenceRepo repository.IncidenceRepository
		historyRepo   repository.HistoryRepository
	)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		incidenceRepo = repository.NewIncidenceRepository(pg.Pool)
		historyRepo = repository.NewHistoryRepository(pg.Pool)
	} else {
		logger.Warn("POSTGRES_DSN not provided; incidences are kept in memory only")
		incidenceRepo = repository.NewMemoryIncidenceRepository()
		historyRepo = repository.NewMemoryHistoryRepository()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		chatTransport transport.Transport
		listen        func(context.Context, transport.Handler) error
		clearNames    func()
	)
	if cfg.Slack.Enabled() {
		slackTransport := transport.NewSlackTransport(cfg.Slack, logger)
		chatTransport = slackTransport
		listen = slackTransport.Listen
		clearNames = slackTransport.ClearCache
	} else {
		logger.Warn("slack tokens not provided; outbound messages are only logged")
		chatTransport = transport.NewLogTransport(logger)
	}

	routingStore, err := routing.Open(ctx, cfg.Routing.File, func(ctx context.Context, nameOrID string) (string, error) {
		conv, err := chatTransport.ResolveConversation(ctx, nameOrID)
		return conv.ID, err
	})
	if err != nil {
		return fmt.Errorf("load routing: %w", err)
	}
	if clearNames != nil {
		routingStore.OnReload(clearNames)
	}
	snap := routingStore.Current()
	logger.Info("routing loaded",
		zap.String("file", cfg.Routing.File),
		zap.Int64("version", snap.Version),
		zap.Int("categories", len(snap.Categories)),
		zap.Int("users", len(snap.Users)))

	clk := clock.Real()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, chatTransport, metrics, logger).RegisterHandlers()
	service.NewHistoryRecorder(dispatcher, historyRepo, logger).RegisterHandlers()

	router := service.NewRouter(service.RouterDependencies{
		Routing:   routingStore,
		Transport: chatTransport,
		Resolver:  correlation.NewResolver(incidenceRepo),
		Dedup:     dedup.New(redis.Client, cfg.Dedup.TTL, logger),
		Commands: service.NewCommandService(service.CommandDependencies{
			IncidenceRepo: incidenceRepo,
			Routing:       routingStore,
			Transport:     chatTransport,
			Clock:         clk,
			Location:      location,
			Logger:        logger,
		}),
		Intake: service.NewIntakeService(service.IntakeDependencies{
			IncidenceRepo: incidenceRepo,
			Dispatcher:    dispatcher,
			Clock:         clk,
			Logger:        logger,
		}),
		Reconciliation: service.NewReconciliationService(service.ReconciliationDependencies{
			IncidenceRepo: incidenceRepo,
			Dispatcher:    dispatcher,
			Clock:         clk,
			Logger:        logger,
		}),
		Metrics: metrics,
		Logger:  logger,
	})

	scheduler := worker.NewReminderScheduler(worker.ReminderDependencies{
		IncidenceRepo: incidenceRepo,
		Dispatcher:    dispatcher,
		Routing:       routingStore,
		Clock:         clk,
		Location:      location,
		StartHour:     cfg.Business.StartHour,
		EndHour:       cfg.Business.EndHour,
		Interval:      cfg.Reminders.Interval,
		OverdueAfter:  cfg.Reminders.OverdueAfter,
		Metrics:       metrics,
		Logger:        logger,
	})

	authService := service.NewAuthService(cfg.Auth, routingStore, logger)
	app := httptransport.NewApp(cfg.App, logger, metrics)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, routingStore),
		Auth:           handlers.NewAuthHandler(authService),
		Incidences:     handlers.NewIncidencesHandler(service.NewQueryService(incidenceRepo, historyRepo), clk),
		Admin:          handlers.NewAdminHandler(routingStore, metrics, logger),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), routingStore),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("admin api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	if listen != nil {
		g.Go(func() error {
			return listen(gctx, router)
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printPasswordHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
