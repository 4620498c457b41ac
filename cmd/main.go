package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/edusight/observation-service/internal/clients/core"
	"github.com/edusight/observation-service/internal/clients/redis"
	"github.com/edusight/observation-service/internal/clients/sunbird"
	"github.com/edusight/observation-service/internal/db"
	"github.com/edusight/observation-service/internal/handlers"
	"github.com/edusight/observation-service/internal/middleware"
	"github.com/edusight/observation-service/internal/observability"
	"github.com/edusight/observation-service/internal/platform/envutil"
	"github.com/edusight/observation-service/internal/platform/logger"
	"github.com/edusight/observation-service/internal/repos"
	"github.com/edusight/observation-service/internal/server"
	"github.com/edusight/observation-service/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "observation-service",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	observationRepo := repos.NewObservationRepo(thePG, log)
	submissionRepo := repos.NewSubmissionRepo(thePG, log)
	solutionRepo := repos.NewSolutionRepo(thePG, log)
	programRepo := repos.NewProgramRepo(thePG, log)
	userRoleRepo := repos.NewUserRoleRepo(thePG, log)

	// External clients
	log.Info("Setting up external clients from main...")
	directoryClient, err := sunbird.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Sunbird client", "error", err)
		os.Exit(1)
	}
	coreClient, err := core.NewFromEnv(log)
	if err != nil {
		log.Warn("Could not init core service client, dashboard merge degraded", "error", err)
	}
	cache, err := redis.NewCache(log)
	if err != nil {
		log.Warn("Could not init redis cache, hierarchy lookups uncached", "error", err)
	}
	notifier, err := redis.NewNotificationQueue(log)
	if err != nil {
		log.Warn("Could not init notification queue", "error", err)
	}
	pusher, err := redis.NewSubmissionPusher(log)
	if err != nil {
		log.Warn("Could not init submission pusher", "error", err)
	}

	// Services
	log.Info("Setting up Services from main...")
	solutionService := services.NewSolutionService(thePG, solutionRepo, programRepo, log)
	programService := services.NewProgramService(programRepo, log)
	userRoleService := services.NewUserRoleService(userRoleRepo, log)
	hierarchyProvider, err := services.NewHierarchyProvider(log)
	if err != nil {
		log.Error("Could not init hierarchy provider", "error", err)
		os.Exit(1)
	}
	entityResolver := services.NewEntityResolver(directoryClient, log)
	roleTargeting := services.NewRoleTargeting(userRoleService, hierarchyProvider, directoryClient, cache, log)
	profileReconciler := services.NewProfileReconciler(entityResolver, log)
	observationService := services.NewObservationService(services.ObservationServiceDeps{
		ObservationRepo: observationRepo,
		SubmissionRepo:  submissionRepo,
		Solutions:       solutionService,
		Programs:        programService,
		Resolver:        entityResolver,
		Targeting:       roleTargeting,
		Reconciler:      profileReconciler,
		Directory:       directoryClient,
		Core:            coreClient,
		Notifier:        notifier,
		Pusher:          pusher,
	}, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	observationHandler := handlers.NewObservationHandler(log, observationService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ObservationHandler: observationHandler,
		AuthMiddleware:     authMiddleware,
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
