package cfg

import (
	"cmp"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jessevdk/go-flags"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

var defaultQueries = []string{
	"AI news today {date}",
	"latest AI developments",
	"breaking AI announcements",
	"new AI models released",
	"AI research papers this week",
	"AI startup funding news",
}

type rawCfg struct {
	// LLM configuration
	LLMAPIKey    string `long:"llm-api-key" env:"OPENAI_API_KEY" description:"API key for the LLM stages (required to run the pipeline)"`
	LLMBaseURL   string `long:"llm-base-url" env:"LLM_BASE_URL" default:"https://api.openai.com/v1" description:"OpenAI-compatible chat completions base URL"`
	LLMModel     string `long:"llm-model" env:"LLM_MODEL" default:"gpt-4o-mini" description:"Model used by discovery and curation"`
	LLMWebSearch string `long:"llm-web-search" env:"LLM_WEB_SEARCH" default:"false" description:"Ask the LLM provider to run its own web search during discovery"`
	ReadArticles string `long:"read-articles" env:"CURATION_READ_ARTICLES" default:"true" description:"Fetch article pages so curation can summarize full text"`

	// Email provider configuration
	EmailProvider    string `long:"email-provider" env:"EMAIL_PROVIDER" default:"plunk" choice:"plunk" choice:"resend" choice:"log" description:"Delivery backend (log only logs the rendered newsletter)"`
	PlunkAPIKey      string `long:"plunk-api-key" env:"PLUNK_API_KEY" description:"Plunk API key"`
	PlunkBaseURL     string `long:"plunk-base-url" env:"PLUNK_BASE_URL" default:"https://api.useplunk.com/v1" description:"Plunk API base URL"`
	ResendAPIKey     string `long:"resend-api-key" env:"RESEND_API_KEY" description:"Resend API key (email-provider=resend)"`
	ResendFrom       string `long:"resend-from" env:"RESEND_FROM" description:"Sender address for Resend deliveries"`
	ResendAudienceID string `long:"resend-audience-id" env:"RESEND_AUDIENCE_ID" description:"Resend audience used for broadcasts"`
	RecipientEmail   string `long:"recipient-email" env:"RECIPIENT_EMAIL" description:"Default single-recipient address"`
	BroadcastMode    string `long:"broadcast-mode" env:"PLUNK_BROADCAST_MODE" default:"false" description:"Broadcast to all contacts unless a run overrides it"`

	// Trigger secrets
	CronSecret    string `long:"cron-secret" env:"CRON_SECRET" description:"Bearer secret sent by the cron platform"`
	TriggerSecret string `long:"trigger-secret" env:"TRIGGER_SECRET" description:"Bearer secret for manual triggers"`

	// Application configuration
	Port              string   `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string   `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	StatusRedirectURL string   `long:"status-redirect-url" env:"STATUS_REDIRECT_URL" default:"/" description:"Page /confirm redirects to"`
	DBPath            string   `long:"db-path" env:"DB_PATH" default:"./newsletter.db" description:"SQLite database file"`
	SourcesDir        string   `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing news source configuration files"`
	DiscoveryQueries  []string `long:"query" env:"DISCOVERY_QUERIES" env-delim:";" description:"Discovery search queries (repeatable)"`
	ScheduleEnabled   string   `long:"schedule-enabled" env:"SCHEDULE_ENABLED" default:"true" description:"Run the newsletter daily from the built-in scheduler"`
	ScheduleTime      string   `long:"schedule-time" env:"SCHEDULE_TIME" default:"08:00" description:"Daily run time (HH:MM, in TZ)"`
	RunTimeout        int      `long:"run-timeout" env:"RUN_TIMEOUT" default:"900" description:"Upper bound for one pipeline run in seconds (0 disables)"`
	WorkerCount       int      `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	SchedulerInterval int      `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	FetchConcurrency  int      `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Parallel source and article fetches"`
	NewsletterTitle   string   `long:"newsletter-title" env:"NEWSLETTER_TITLE" default:"AI News Daily" description:"Newsletter title used in subjects and headers"`
	RunOnce           bool     `long:"run-once" description:"Run the pipeline once and exit"`

	// Application metadata
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"AI Newsletter/1.0" description:"User agent string for HTTP requests"`
	Timezone    string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps and the schedule (e.g., UTC, America/New_York)"`
	Environment string `long:"environment" env:"APP_ENV" default:"production" description:"Deployment environment name"`
	Debug       bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args and the environment. It returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, errors.Wrap(err, "failed to parse configuration")
	}

	return build(raw)
}

func build(raw rawCfg) (*Cfg, error) {
	webSearch, err := parseBool("llm-web-search", raw.LLMWebSearch)
	if err != nil {
		return nil, err
	}
	readArticles, err := parseBool("read-articles", raw.ReadArticles)
	if err != nil {
		return nil, err
	}
	broadcast, err := parseBool("broadcast-mode", raw.BroadcastMode)
	if err != nil {
		return nil, err
	}
	scheduleEnabled, err := parseBool("schedule-enabled", raw.ScheduleEnabled)
	if err != nil {
		return nil, err
	}
	hour, minute, err := parseClock(raw.ScheduleTime)
	if err != nil {
		return nil, err
	}
	if raw.RunTimeout < 0 {
		return nil, newsletter.ConfigurationErrorf("run-timeout must be non-negative")
	}
	if raw.WorkerCount <= 0 {
		return nil, newsletter.ConfigurationErrorf("worker-count must be positive")
	}
	if raw.FetchConcurrency <= 0 {
		return nil, newsletter.ConfigurationErrorf("fetch-concurrency must be positive")
	}
	if raw.SchedulerInterval <= 0 {
		return nil, newsletter.ConfigurationErrorf("scheduler-interval must be positive")
	}

	queries := raw.DiscoveryQueries
	if len(queries) == 0 {
		queries = defaultQueries
	}

	cfg := &Cfg{
		LLMAPIKey:         strings.TrimSpace(raw.LLMAPIKey),
		LLMBaseURL:        strings.TrimRight(raw.LLMBaseURL, "/"),
		LLMModel:          raw.LLMModel,
		LLMWebSearch:      webSearch,
		ReadArticles:      readArticles,
		EmailProvider:     raw.EmailProvider,
		PlunkAPIKey:       strings.TrimSpace(raw.PlunkAPIKey),
		PlunkBaseURL:      strings.TrimRight(raw.PlunkBaseURL, "/"),
		ResendAPIKey:      strings.TrimSpace(raw.ResendAPIKey),
		ResendFrom:        raw.ResendFrom,
		ResendAudienceID:  raw.ResendAudienceID,
		RecipientEmail:    strings.TrimSpace(raw.RecipientEmail),
		BroadcastMode:     broadcast,
		CronSecret:        raw.CronSecret,
		TriggerSecret:     raw.TriggerSecret,
		Port:              raw.Port,
		BaseUrl:           strings.TrimRight(raw.BaseUrl, "/"),
		StatusRedirectURL: raw.StatusRedirectURL,
		DBPath:            raw.DBPath,
		SourcesDir:        raw.SourcesDir,
		DiscoveryQueries:  queries,
		ScheduleEnabled:   scheduleEnabled,
		ScheduleHour:      hour,
		ScheduleMinute:    minute,
		RunTimeout:        time.Duration(raw.RunTimeout) * time.Second,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		FetchConcurrency:  raw.FetchConcurrency,
		NewsletterTitle:   raw.NewsletterTitle,
		RunOnce:           raw.RunOnce,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Environment:       raw.Environment,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if cfg.RecipientEmail != "" && !newsletter.IsValidEmail(cfg.RecipientEmail) {
		return nil, newsletter.ConfigurationErrorf("recipient-email %q is not a valid address", cfg.RecipientEmail)
	}
	if cfg.BaseUrl != "" && !newsletter.IsValidURL(cfg.BaseUrl) {
		return nil, newsletter.ConfigurationErrorf("base-url %q must be an absolute http(s) URL", cfg.BaseUrl)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

// ValidateForPipeline reports the secrets a newsletter run cannot do without.
func (c *Cfg) ValidateForPipeline() error {
	if c.LLMAPIKey == "" {
		return newsletter.ConfigurationErrorf("OPENAI_API_KEY not set")
	}
	switch c.EmailProvider {
	case EmailProviderLog:
	case EmailProviderResend:
		if c.ResendAPIKey == "" {
			return newsletter.ConfigurationErrorf("RESEND_API_KEY not set")
		}
		if c.ResendFrom == "" {
			return newsletter.ConfigurationErrorf("RESEND_FROM not set")
		}
	default:
		if c.PlunkAPIKey == "" {
			return newsletter.ConfigurationErrorf("PLUNK_API_KEY not set")
		}
	}
	return nil
}

// ValidateForSubscriptions reports whether the contact endpoints can reach the provider.
func (c *Cfg) ValidateForSubscriptions() error {
	if c.PlunkAPIKey == "" {
		return newsletter.ConfigurationErrorf("PLUNK_API_KEY not set")
	}
	return nil
}

func parseBool(name, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, newsletter.ConfigurationErrorf("%s must be a boolean, got %q", name, value)
	}
	return b, nil
}

func parseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, errors.Mark(
			errors.Wrapf(err, "schedule-time must be HH:MM, got %q", value),
			newsletter.ErrConfiguration)
	}
	return t.Hour(), t.Minute(), nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
