package newsletter

import "time"

// Stage names a unit of the pipeline.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageCuration  Stage = "curation"
	StageDelivery  Stage = "delivery"
)

const (
	MinDiscovered = 15
	MaxDiscovered = 20
	CuratedSize   = 10

	BroadcastRecipient = "all contacts (broadcast)"
)

type DiscoveredItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// DiscoveredBatch keeps insertion order; order carries no ranking.
type DiscoveredBatch []DiscoveredItem

type CuratedItem struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type CuratedBatch []CuratedItem

type DeliveryRequest struct {
	Items     CuratedBatch
	Broadcast bool
	Recipient string
	Date      string
}

type Receipt struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"messageId,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	ItemCount  int    `json:"itemCount"`
	Date       string `json:"date,omitempty"`
	Broadcast  bool   `json:"broadcast"`
	Error      string `json:"error,omitempty"`
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	Success   bool      `json:"success"`
	Output    *Receipt  `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Stage     Stage     `json:"stage,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Contact struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Subscribed bool   `json:"subscribed"`
}

// Document is a rendered newsletter ready for a provider.
type Document struct {
	Subject string
	HTML    string
}

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Trigger    string     `json:"trigger"`
	State      string     `json:"state"`
	Stage      Stage      `json:"stage,omitempty"`
	Error      string     `json:"error,omitempty"`
	Broadcast  bool       `json:"broadcast"`
	Recipient  string     `json:"recipient,omitempty"`
	ItemCount  int        `json:"itemCount"`
	MessageID  string     `json:"messageId,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
