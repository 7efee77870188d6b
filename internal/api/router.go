package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/gandretiraghu/gptr-road-safety/internal/api/handlers"
	"github.com/gandretiraghu/gptr-road-safety/internal/config"
	"github.com/gandretiraghu/gptr-road-safety/internal/core/policy"
	"github.com/gandretiraghu/gptr-road-safety/internal/metrics"
)

// Dependencies are the collaborators the routes are served by.
type Dependencies struct {
	Submissions handlers.Submitter
	Hazards     handlers.HazardQuerier
	Feeds       handlers.FeedSource
	Store       handlers.Pinger // optional
	Metrics     *metrics.Metrics
	Limiter     policy.RateLimiter // per client IP; nil disables
	Logger      *slog.Logger
}

func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "HTTP")
	limiter := deps.Limiter
	if limiter == nil {
		limiter = policy.NoLimit{}
	}

	router := gin.New()
	router.Use(Recovery(logger), RequestLogger(logger), SecurityHeaders())

	router.GET("/health", handlers.NewHealthHandler(deps.Store).HealthCheck)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	submissions := handlers.NewSubmissionHandler(deps.Submissions)
	hazards := handlers.NewHazardHandler(deps.Hazards)
	feeds := handlers.NewFeedHandler(deps.Feeds, cfg.Feeds.NavigationKey, cfg.Feeds.CivicKey)

	v1Router := router.Group("/v1", RateLimit(limiter))
	{
		v1Router.POST("/submissions/check", submissions.Check)
		v1Router.POST("/submissions", submissions.Submit)

		v1Router.GET("/hazards", hazards.List)
		v1Router.GET("/hazards/nearest", hazards.Nearest)
		v1Router.GET("/hazards/:id/history", hazards.History)
		v1Router.GET("/stats", hazards.Stats)

		v1Router.GET("/navigate", feeds.Navigate)
		v1Router.GET("/civic", feeds.Civic)
	}

	return router
}
