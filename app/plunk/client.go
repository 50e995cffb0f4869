// Package plunk is a client for the Plunk email API: contacts,
// transactional sends, campaigns and events.
package plunk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const DefaultBaseURL = "https://api.useplunk.com/v1"

// ProviderError is a non-2xx reply from Plunk.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("plunk API error (status %d): %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status of a provider error, or 0.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type SendResponse struct {
	Success bool `json:"success"`
	Emails  []struct {
		Contact Contact `json:"contact"`
		Email   string  `json:"email"`
	} `json:"emails"`
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

// ReferenceID is the provider's identifier for the sent message.
func (r *SendResponse) ReferenceID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	if r.ID != "" {
		return r.ID
	}
	if len(r.Emails) > 0 {
		return r.Emails[0].Email
	}
	return ""
}

type CreateCampaignRequest struct {
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Style   string `json:"style,omitempty"`
}

type Campaign struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Status  string `json:"status"`
}

type Contact struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Subscribed bool           `json:"subscribed"`
	Data       map[string]any `json:"data,omitempty"`
}

type CreateContactRequest struct {
	Email      string         `json:"email"`
	Subscribed bool           `json:"subscribed"`
	Data       map[string]any `json:"data,omitempty"`
}

type TrackRequest struct {
	Event      string         `json:"event"`
	Email      string         `json:"email"`
	Subscribed bool           `json:"subscribed"`
	Data       map[string]any `json:"data,omitempty"`
}

func (c *Client) SendEmail(ctx context.Context, req SendRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/send", req, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to send email")
	}
	return &resp, nil
}

func (c *Client) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*Campaign, error) {
	var campaign Campaign
	if err := c.do(ctx, http.MethodPost, "/campaigns", req, &campaign); err != nil {
		return nil, errors.Wrap(err, "failed to create campaign")
	}
	if campaign.ID == "" {
		return nil, errors.Mark(errors.New("campaign created without an id"), newsletter.ErrProvider)
	}
	return &campaign, nil
}

// SendCampaign sends a created campaign to all subscribed contacts.
func (c *Client) SendCampaign(ctx context.Context, campaignID string) error {
	body := map[string]any{"id": campaignID, "live": true}
	if err := c.do(ctx, http.MethodPost, "/campaigns/send", body, nil); err != nil {
		return errors.Wrapf(err, "failed to send campaign %s", campaignID)
	}
	return nil
}

func (c *Client) CreateContact(ctx context.Context, req CreateContactRequest) (*Contact, error) {
	var contact Contact
	if err := c.do(ctx, http.MethodPost, "/contacts", req, &contact); err != nil {
		return nil, errors.Wrap(err, "failed to create contact")
	}
	return &contact, nil
}

func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(id), nil, &contact); err != nil {
		return nil, errors.Wrap(err, "failed to get contact")
	}
	return &contact, nil
}

func (c *Client) SubscribeContact(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := c.do(ctx, http.MethodPost, "/contacts/subscribe", map[string]string{"id": id}, &contact); err != nil {
		return nil, errors.Wrap(err, "failed to subscribe contact")
	}
	return &contact, nil
}

func (c *Client) Track(ctx context.Context, req TrackRequest) error {
	if err := c.do(ctx, http.MethodPost, "/track", req, nil); err != nil {
		return errors.Wrapf(err, "failed to track event %s", req.Event)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.apiKey == "" {
		return newsletter.ConfigurationErrorf("PLUNK_API_KEY not set")
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newsletter.MarkNetwork(errors.Wrapf(err, "%s %s", method, path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newsletter.MarkNetwork(errors.Wrap(err, "failed to read response"))
	}

	slog.Debug("Plunk request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Mark(&ProviderError{Status: resp.StatusCode, Message: errorMessage(respBody)}, newsletter.ErrProvider)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Mark(errors.Wrap(err, "failed to decode response"), newsletter.ErrProvider)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		s, _ := payload.Error.(string)
		switch {
		case s != "" && payload.Message != "" && s != payload.Message:
			return s + ": " + payload.Message
		case s != "":
			return s
		case payload.Message != "":
			return payload.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response"
}
