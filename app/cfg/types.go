package cfg

import (
	"cmp"
	"strings"
	"time"
)

type Cfg struct {
	// LLM configuration
	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMWebSearch bool
	ReadArticles bool

	// Email provider configuration
	EmailProvider    string
	PlunkAPIKey      string
	PlunkBaseURL     string
	ResendAPIKey     string
	ResendFrom       string
	ResendAudienceID string
	RecipientEmail   string
	BroadcastMode    bool

	// Trigger secrets
	CronSecret    string
	TriggerSecret string

	// Application configuration
	Port              string
	BaseUrl           string
	StatusRedirectURL string
	DBPath            string
	SourcesDir        string
	DiscoveryQueries  []string
	ScheduleEnabled   bool
	ScheduleHour      int
	ScheduleMinute    int
	RunTimeout        time.Duration
	WorkerCount       int
	SchedulerInterval int
	FetchConcurrency  int
	NewsletterTitle   string
	RunOnce           bool

	// Application metadata
	UserAgent   string
	Timezone    string
	Environment string
	Debug       bool
	Version     string
}

const (
	EmailProviderPlunk  = "plunk"
	EmailProviderResend = "resend"
	EmailProviderLog    = "log"
)

// DeliveryAPIKey returns the key of the configured email provider.
func (c *Cfg) DeliveryAPIKey() string {
	switch c.EmailProvider {
	case EmailProviderResend:
		return c.ResendAPIKey
	case EmailProviderLog:
		return ""
	default:
		return c.PlunkAPIKey
	}
}

// StatusURL is where /confirm redirects. A relative STATUS_REDIRECT_URL is
// resolved against BASE_URL when one is set.
func (c *Cfg) StatusURL() string {
	target := cmp.Or(c.StatusRedirectURL, "/")
	if c.BaseUrl == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return target
	}
	return c.BaseUrl + target
}
