package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/resend/resend-go/v2"

	"github.com/lysyi3m/ai-newsletter/app/api"
	"github.com/lysyi3m/ai-newsletter/app/cfg"
	"github.com/lysyi3m/ai-newsletter/app/curation"
	"github.com/lysyi3m/ai-newsletter/app/database"
	"github.com/lysyi3m/ai-newsletter/app/delivery"
	"github.com/lysyi3m/ai-newsletter/app/discovery"
	"github.com/lysyi3m/ai-newsletter/app/feed"
	"github.com/lysyi3m/ai-newsletter/app/llm"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/pipeline"
	"github.com/lysyi3m/ai-newsletter/app/plunk"
	"github.com/lysyi3m/ai-newsletter/app/subscription"
	"github.com/lysyi3m/ai-newsletter/app/tasks"
)

func main() {
	config, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(2)
	}
	if config == nil {
		// Help was shown
		return
	}

	setupLogger(config.Debug)

	if config.RunOnce {
		os.Exit(runOnce(config))
	}

	if err := serve(config); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// components holds everything both run modes share.
type components struct {
	db        *database.DB
	runs      *database.RunRepository
	campaigns *database.CampaignRepository
	sources   *feed.Registry
	renderer  *newsletter.Renderer
	plunk     *plunk.Client
	gateway   delivery.Gateway
	runner    *pipeline.Runner
}

func build(config *cfg.Cfg) (*components, error) {
	db, version, err := database.Connect(config.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	slog.Info("Database ready", "path", config.DBPath, "schema_version", version)

	sources := feed.NewRegistry(config.SourcesDir)
	if err := sources.Run(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to load sources")
	}
	slog.Info("Sources loaded", "count", sources.Count(), "dir", config.SourcesDir)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	fetcher := feed.NewFetcher(httpClient, config.UserAgent)

	completer := llm.NewClient(llm.Config{
		APIKey:  config.LLMAPIKey,
		BaseURL: config.LLMBaseURL,
		Model:   config.LLMModel,
		Title:   config.NewsletterTitle,
	})

	collector := discovery.NewCollector(sources, fetcher, feed.NewParser(), feed.NewFilterer(), config.FetchConcurrency)
	discoverer := discovery.NewDiscoverer(collector, completer, discovery.Config{
		Queries:   config.DiscoveryQueries,
		WebSearch: config.LLMWebSearch,
	})
	curator := curation.NewCurator(completer, fetcher, feed.NewContentExtractor(), curation.Config{
		ReadArticles: config.ReadArticles,
		Concurrency:  config.FetchConcurrency,
	})

	plunkClient := plunk.NewClient(config.PlunkAPIKey, config.PlunkBaseURL, httpClient)
	gateway := newGateway(config, plunkClient)
	renderer := newsletter.NewRenderer(config.NewsletterTitle)

	campaigns := database.NewCampaignRepository(db)
	deliverer := delivery.NewService(gateway, renderer, campaigns, delivery.Config{
		DefaultRecipient: config.RecipientEmail,
		BroadcastMode:    config.BroadcastMode,
	})

	runs := database.NewRunRepository(db)
	orchestrator := pipeline.NewOrchestrator(discoverer, curator, deliverer)

	return &components{
		db:        db,
		runs:      runs,
		campaigns: campaigns,
		sources:   sources,
		renderer:  renderer,
		plunk:     plunkClient,
		gateway:   gateway,
		runner:    pipeline.NewRunner(orchestrator, runs, config.RunTimeout),
	}, nil
}

func newGateway(config *cfg.Cfg, plunkClient *plunk.Client) delivery.Gateway {
	switch config.EmailProvider {
	case cfg.EmailProviderResend:
		return delivery.NewResendGateway(resend.NewClient(config.ResendAPIKey), config.ResendFrom, config.ResendAudienceID)
	case cfg.EmailProviderLog:
		return delivery.NewLogGateway()
	default:
		return delivery.NewPlunkGateway(plunkClient)
	}
}

// runOnce runs the pipeline directly and maps the outcome to an exit code.
func runOnce(config *cfg.Cfg) int {
	if err := config.ValidateForPipeline(); err != nil {
		slog.Error("Cannot run newsletter", "kind", newsletter.Kind(err), "error", err)
		return 2
	}

	c, err := build(config)
	if err != nil {
		slog.Error("Startup failed", "error", err)
		return 1
	}
	defer c.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := c.runner.Run(ctx, pipeline.TriggerDirect, pipeline.Options{})
	if err != nil {
		slog.Error("Newsletter run failed", "error", err)
		return 1
	}
	if !result.Success {
		slog.Error("Newsletter run failed", "run_id", result.RunID, "stage", result.Stage, "error", result.Error)
		return 1
	}

	slog.Info("Newsletter run succeeded",
		"run_id", result.RunID,
		"recipient", result.Output.Recipient,
		"items", result.Output.ItemCount,
		"message_id", result.Output.MessageID)
	return 0
}

func serve(config *cfg.Cfg) error {
	slog.Info("Starting AI newsletter server", "version", config.Version, "environment", config.Environment)

	if err := config.ValidateForPipeline(); err != nil {
		slog.Warn("Newsletter runs will be refused until configured", "error", err)
	}
	if err := config.ValidateForSubscriptions(); err != nil {
		slog.Warn("Subscription endpoints will answer with a server error", "error", err)
	}

	c, err := build(config)
	if err != nil {
		return err
	}
	defer c.db.Close()

	scheduler := tasks.NewScheduler(tasks.Config{
		Interval:        time.Duration(config.SchedulerInterval) * time.Second,
		WorkerCount:     config.WorkerCount,
		ScheduleEnabled: config.ScheduleEnabled && config.ValidateForPipeline() == nil,
		ScheduleHour:    config.ScheduleHour,
		ScheduleMinute:  config.ScheduleMinute,
		Timezone:        config.Timezone,
	}, c.runner, c.sources, c.gateway, c.renderer)
	scheduler.Start()
	defer scheduler.Stop()

	subscriptions := subscription.NewService(c.plunk, scheduler, "website")
	handler := api.NewHandler(config, c.runner, subscriptions, c.runs, c.campaigns)

	httpServer := &http.Server{
		Addr:        ":" + config.Port,
		Handler:     api.NewServer(handler),
		ReadTimeout: 30 * time.Second,
		// Triggers answer only after the whole run.
		WriteTimeout: config.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	if config.RunTimeout == 0 {
		httpServer.WriteTimeout = 0
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- errors.Wrap(err, "HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		return err
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}
