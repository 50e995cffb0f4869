package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	subscribeRate  = rate.Limit(10.0 / 60.0)
	subscribeBurst = 5
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	setupRoutes(r, handler)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler) {
	limiter := newClientLimiter(subscribeRate, subscribeBurst)

	r.POST("/subscribe", rateLimitMiddleware(limiter), handler.Subscribe)
	r.GET("/confirm", handler.Confirm)
	r.GET("/health", handler.GetHealth)

	secured := r.Group("/")
	secured.Use(authMiddleware(handler.cfg.CronSecret, handler.cfg.TriggerSecret))
	{
		secured.POST("/newsletter", handler.TriggerNewsletter)
		// Cron platforms call the endpoint with GET.
		secured.GET("/newsletter", handler.TriggerNewsletter)
		secured.POST("/trigger", handler.TriggerNewsletter)
		secured.GET("/api/runs", handler.ListRuns)
		secured.GET("/api/runs/:id", handler.GetRun)
		secured.GET("/api/campaigns", handler.ListCampaigns)
	}

	if handler.cfg.CronSecret == "" && handler.cfg.TriggerSecret == "" {
		slog.Warn("Trigger endpoints locked, neither CRON_SECRET nor TRIGGER_SECRET is set")
	}

	r.GET("/", handler.GetInfo)

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
