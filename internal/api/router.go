package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trasealla/delivery-tracking/internal/api/handler"
	"github.com/trasealla/delivery-tracking/internal/api/middleware"
	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/internal/infrastructure/queue"
	"github.com/trasealla/delivery-tracking/internal/realtime"
)

// Deps bundles everything the router needs. Long-lived components (hub,
// dispatcher) are constructed by the caller so their lifecycle is owned
// by main, not by the router.
type Deps struct {
	Mongo      *mongo.Database
	Redis      *redis.Client
	Hub        *realtime.Hub
	Dispatcher *queue.Dispatcher
	Tracking   ports.TrackingService
	Positions  ports.PositionService
	JWTSecret  string
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("tracking"))

	// --- Handlers ---
	trackingHandler := handler.NewTrackingHandler(d.Tracking)
	positionHandler := handler.NewPositionHandler(d.Dispatcher, d.Positions)
	wsHandler := handler.NewWSHandler(d.Hub, d.Log)
	authMiddleware := middleware.Auth(d.JWTSecret)

	// --- Public tracking routes (token is the credential) ---
	e.GET("/tracking/:token", trackingHandler.Get)
	e.GET("/tracking/:token/order", trackingHandler.GetOrder)
	e.POST("/tracking/:token/scan", trackingHandler.Scan)
	e.PATCH("/tracking/:token/status", trackingHandler.Transition)

	// --- Authenticated agent/operations routes ---
	v1 := e.Group("/v1", authMiddleware)
	v1.POST("/agents/:agent_id/location", positionHandler.PushLocation)
	v1.GET("/agents/live-locations", positionHandler.LiveLocations)

	// --- Realtime channel (anonymous clients may join order rooms) ---
	e.GET("/ws", wsHandler.Serve, middleware.OptionalAuth(d.JWTSecret))

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Mongo, d.Redis)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
