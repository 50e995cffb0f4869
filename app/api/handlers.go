package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/ai-newsletter/app/cfg"
	"github.com/lysyi3m/ai-newsletter/app/database"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
	"github.com/lysyi3m/ai-newsletter/app/plunk"
	"github.com/lysyi3m/ai-newsletter/app/subscription"
)

// NewHandler wires the HTTP handlers. runs and campaigns may be nil.
func NewHandler(config *cfg.Cfg, runner RunnerInterface, subscriptions SubscriptionsInterface,
	runs database.RunRepositoryInterface, campaigns database.CampaignRepositoryInterface) *Handler {
	return &Handler{
		cfg:           config,
		runner:        runner,
		subscriptions: subscriptions,
		runs:          runs,
		campaigns:     campaigns,
		now:           time.Now,
	}
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.Debug("Invalid subscribe payload", "error", err)
	}

	result, err := h.subscriptions.Subscribe(c.Request.Context(), req.Email)
	if err != nil {
		status, message := subscribeFailure(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Subscription failed", "error", err)
		}
		c.JSON(status, subscribeResponse{Success: false, Error: message})
		return
	}

	if result.AlreadySubscribed {
		c.JSON(http.StatusOK, subscribeResponse{
			Success:           true,
			Message:           "You are already subscribed!",
			AlreadySubscribed: true,
		})
		return
	}

	c.JSON(http.StatusOK, subscribeResponse{
		Success: true,
		Message: "Successfully subscribed! Check your email.",
		Contact: &contactResponse{ID: result.Contact.ID, Email: result.Contact.Email},
	})
}

func subscribeFailure(err error) (int, string) {
	switch {
	case errors.Is(err, subscription.ErrEmailRequired), errors.Is(err, subscription.ErrInvalidEmail):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, newsletter.ErrConfiguration):
		return http.StatusInternalServerError, "Server configuration error"
	}
	if status := plunk.StatusOf(err); status != 0 {
		return status, "Failed to subscribe. Please try again."
	}
	return http.StatusInternalServerError, "An unexpected error occurred. Please try again."
}

func (h *Handler) Confirm(c *gin.Context) {
	outcome := h.subscriptions.Confirm(c.Request.Context(), c.Query("confirm"))
	c.Redirect(http.StatusFound, outcome.RedirectURL(h.cfg.StatusURL()))
}

func (h *Handler) GetHealth(c *gin.Context) {
	_, running := h.runner.Running()

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        h.timestamp(),
		"environment":      h.cfg.Environment,
		"version":          h.cfg.Version,
		"emailProvider":    h.cfg.EmailProvider,
		"broadcastMode":    h.cfg.BroadcastMode,
		"scheduleEnabled":  h.cfg.ScheduleEnabled,
		"runInProgress":    running,
		"hasOpenAIKey":     h.cfg.LLMAPIKey != "",
		"hasPlunkKey":      h.cfg.PlunkAPIKey != "",
		"hasResendKey":     h.cfg.ResendAPIKey != "",
		"hasCronSecret":    h.cfg.CronSecret != "",
		"hasTriggerSecret": h.cfg.TriggerSecret != "",
	})
}

// TriggerNewsletter runs the pipeline synchronously and reports its result.
func (h *Handler) TriggerNewsletter(c *gin.Context) {
	trigger := pipeline.TriggerManual
	if v, ok := c.Get(triggerKey); ok {
		trigger = v.(pipeline.Trigger)
	}

	opts := pipeline.Options{Recipient: c.Query("recipient")}
	if raw := c.Query("broadcast"); raw != "" {
		broadcast, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, triggerResponse{
				Success:   false,
				Error:     "broadcast must be true or false",
				Timestamp: h.timestamp(),
			})
			return
		}
		opts.Broadcast = &broadcast
	}

	if err := h.cfg.ValidateForPipeline(); err != nil {
		slog.Error("Newsletter run refused", "trigger", trigger, "error", err)
		c.JSON(http.StatusInternalServerError, triggerResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: h.timestamp(),
		})
		return
	}

	slog.Info("Newsletter triggered", "trigger", trigger, "broadcast_override", opts.Broadcast != nil)

	// A disconnecting caller must not abort a run midway through delivery.
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.runner.Run(ctx, trigger, opts)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		active, _ := h.runner.Running()
		c.JSON(http.StatusConflict, triggerResponse{
			Success:   false,
			Error:     err.Error(),
			RunID:     active,
			Timestamp: h.timestamp(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, triggerResponse{
			Success:   false,
			Error:     err.Error(),
			Timestamp: h.timestamp(),
		})
		return
	}

	if !result.Success {
		c.JSON(http.StatusInternalServerError, triggerResponse{
			Success:   false,
			Error:     result.Error,
			Stage:     result.Stage,
			RunID:     result.RunID,
			Timestamp: h.timestamp(),
		})
		return
	}

	c.JSON(http.StatusOK, triggerResponse{
		Success:   true,
		Message:   "Newsletter sent successfully",
		Output:    result.Output,
		RunID:     result.RunID,
		Timestamp: h.timestamp(),
	})
}

// parseLimit reads ?limit= (1..200, default 20). It writes the 400 itself.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 20, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return 0, false
	}
	return n, true
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	runs := []newsletter.Run{}
	if h.runs != nil {
		found, err := h.runs.RecentRuns(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Database error", "operation", "recent_runs", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if found != nil {
			runs = found
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *Handler) GetRun(c *gin.Context) {
	id := c.Param("id")

	var run *newsletter.Run
	if h.runs != nil {
		found, err := h.runs.GetRun(c.Request.Context(), id)
		if err != nil {
			slog.Error("Database error", "operation", "get_run", "run_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		run = found
	}

	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	campaigns := []database.Campaign{}
	if h.campaigns != nil {
		found, err := h.campaigns.ListCampaigns(c.Request.Context(), limit)
		if err != nil {
			slog.Error("Database error", "operation", "list_campaigns", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if found != nil {
			campaigns = found
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"total":     len(campaigns),
	})
}

func (h *Handler) GetInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     h.cfg.NewsletterTitle,
		"version":     h.cfg.Version,
		"description": "Daily AI newsletter: discovery, curation and delivery pipeline",
		"endpoints": map[string]string{
			"subscribe":  "POST /subscribe",
			"confirm":    "GET /confirm?confirm=<contact id>",
			"health":     "GET /health",
			"newsletter": "GET|POST /newsletter (requires Authorization: Bearer <secret>)",
			"trigger":    "POST /trigger (requires Authorization: Bearer <secret>)",
			"runs":       "GET /api/runs, GET /api/runs/:id (requires Authorization: Bearer <secret>)",
			"campaigns":  "GET /api/campaigns (requires Authorization: Bearer <secret>)",
		},
	})
}
