package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/internal/app"
	iauth "github.com/oakdesk/oakdesk/internal/auth"
	"github.com/oakdesk/oakdesk/internal/handlers"
	"github.com/oakdesk/oakdesk/internal/middleware"
	"github.com/oakdesk/oakdesk/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	users, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	roles, err := services.NewRoleService(db, audit)
	if err != nil {
		return nil, err
	}
	departments, err := services.NewDepartmentService(db, audit)
	if err != nil {
		return nil, err
	}
	assignments, err := services.NewAssignmentService(db, audit, services.WithDurationPolicy(access.DurationPolicy{
		MaxMinutes: cfg.Access.Temporal.MaxMinutes,
		MaxHours:   cfg.Access.Temporal.MaxHours,
		MaxDays:    cfg.Access.Temporal.MaxDays,
	}))
	if err != nil {
		return nil, err
	}
	emergency, err := services.NewEmergencyService(db, audit)
	if err != nil {
		return nil, err
	}
	evaluator, err := access.NewEvaluator(db)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}

	authHandler := handlers.NewAuthHandler(users, jwt, evaluator)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	requireAuth := middleware.Auth(jwt)
	require := func(permission string) gin.HandlerFunc {
		return middleware.RequirePermission(evaluator, audit, permission)
	}

	api := r.Group("/api")
	api.Use(requireAuth)

	// Authenticated auth routes
	api.GET("/auth/me", authHandler.Me)

	registerUserRoutes(api, require, handlers.NewUserHandler(users))
	registerDepartmentRoutes(api, require, handlers.NewDepartmentHandler(departments))
	registerRoleRoutes(api, require, handlers.NewRoleHandler(roles))
	registerAssignmentRoutes(api, require, handlers.NewAssignmentHandler(assignments))
	registerEmergencyRoutes(api, require, handlers.NewEmergencyHandler(emergency))
	registerAccessRoutes(api, handlers.NewAccessHandler(evaluator))
	registerAuditRoutes(api, require, handlers.NewAuditHandler(audit))

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
