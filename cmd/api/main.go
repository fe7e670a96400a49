package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/tire-request-service/internal/api/http"
	"github.com/spec-kit/tire-request-service/internal/api/http/handlers"
	"github.com/spec-kit/tire-request-service/internal/auth"
	"github.com/spec-kit/tire-request-service/internal/config"
	"github.com/spec-kit/tire-request-service/internal/domain"
	"github.com/spec-kit/tire-request-service/internal/events"
	"github.com/spec-kit/tire-request-service/internal/lifecycle"
	"github.com/spec-kit/tire-request-service/internal/observability"
	"github.com/spec-kit/tire-request-service/internal/persistence"
	"github.com/spec-kit/tire-request-service/internal/realtime"
	"github.com/spec-kit/tire-request-service/internal/repository"
	"github.com/spec-kit/tire-request-service/internal/service"
	"github.com/spec-kit/tire-request-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redis *persistence.Redis
	if cfg.Redis.Addr != "" {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
	}

	var (
		requestRepo repository.RequestRepository
		actorRepo   repository.ActorRepository
		eventLog    repository.EventLogRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		requestRepo = repository.NewRequestRepository(pool)
		actorRepo = repository.NewActorRepository(pool)
		eventLog = repository.NewEventLogRepository(pool)
	} else {
		logger.Warn("no postgres DSN configured; using in-memory stores")
		requestRepo = repository.NewMemoryRequestRepository()
		actorRepo = repository.NewMemoryActorRepository(devActors(cfg.Auth.BcryptCost, logger))
		eventLog = repository.NewMemoryEventLog()
	}

	var bus events.Bus
	if redis != nil {
		bus = events.NewRedisBus(redis.Client, logger)
	} else {
		bus = events.NewInMemoryBus()
	}
	defer bus.Close() //nolint:errcheck

	engine := lifecycle.NewEngine(lifecycle.Dependencies{
		Requests: requestRepo,
		EventLog: eventLog,
		Bus:      bus,
		Logger:   logger,
	})

	requestService := service.NewRequestService(service.RequestDependencies{
		Engine:      engine,
		RequestRepo: requestRepo,
		EventLog:    eventLog,
	})
	identityService := service.NewIdentityService(*cfg, actorRepo)
	notificationService := service.NewNotificationService(bus, logger, cfg.Notification)
	if err := worker.StartNotificationWorker(notificationService); err != nil {
		logger.Fatal("failed to start notification worker", zap.Error(err))
	}
	defer notificationService.Stop()

	authMiddleware := auth.NewAuthMiddleware(identityService.TokenManager(), actorRepo)
	hub := realtime.NewHub(bus, identityService, logger, metrics, cfg.Realtime)
	defer hub.Shutdown()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(identityService),
		Requests:       handlers.NewRequestsHandler(requestService),
		Hub:            hub,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// devActors seeds one actor per role for running without a database. The
// shared password is "password".
func devActors(bcryptCost int, logger *zap.Logger) []domain.ActorRecord {
	hash, err := auth.HashPassword("password", bcryptCost)
	if err != nil {
		logger.Fatal("failed to hash dev password", zap.Error(err))
	}
	roles := map[string]domain.Role{
		"user-1":              domain.RoleUser,
		"supervisor-1":        domain.RoleSupervisor,
		"technical-manager-1": domain.RoleTechnicalManager,
		"engineer-1":          domain.RoleEngineer,
		"customer-officer-1":  domain.RoleCustomerOfficer,
	}
	records := make([]domain.ActorRecord, 0, len(roles))
	for id, role := range roles {
		records = append(records, domain.ActorRecord{
			ID:           id,
			Name:         id,
			Email:        id + "@example.com",
			PasswordHash: hash,
			Role:         role,
			Active:       true,
		})
	}
	return records
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
