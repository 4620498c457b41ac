package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/edusight/observation-service/internal/handlers"
	"github.com/edusight/observation-service/internal/middleware"
	"github.com/edusight/observation-service/internal/platform/envutil"
)

type RouterConfig struct {
	ObservationHandler *handlers.ObservationHandler
	AuthMiddleware     *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	allowedOrigins := strings.Split(envutil.String("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "x-authenticated-user-token"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("observation-service"))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	obs := cfg.ObservationHandler

	v1 := router.Group("/v1/observations")
	v1.Use(cfg.AuthMiddleware.RequireAuth())
	v1.POST("/create", obs.Create)
	v1.GET("/list", obs.ListV1)
	v1.POST("/bulkCreate", obs.BulkCreate)
	v1.GET("/details", obs.Details)
	v1.GET("/link/:solutionExternalId", obs.GetObservationLink)
	v1.POST("/verifyLink/:link", obs.VerifyLink)
	v1.POST("/entities", obs.ListEntities)
	v1.POST("/addEntityToObservation/:observationId", obs.AddEntity)
	v1.POST("/removeEntityFromObservation/:observationId", obs.RemoveEntity)
	v1.GET("/submissionStatus/:observationId", obs.SubmissionStatus)
	v1.POST("/findSubmission/:observationId", obs.FindSubmission)
	v1.GET("/lastSubmission/:observationId", obs.LastSubmission)
	v1.GET("/userAssigned", obs.UserAssigned)
	v1.POST("/getObservation", obs.GetObservation)
	v1.GET("/pendingObservations", obs.PendingObservations)
	v1.GET("/completedObservations", obs.CompletedObservations)
	v1.POST("/update/:observationId", obs.Update)

	v2 := router.Group("/v2/observations")
	v2.Use(cfg.AuthMiddleware.RequireAuth())
	v2.POST("/create", obs.CreateV2)
	v2.GET("/list", obs.ListV2)

	return router
}
