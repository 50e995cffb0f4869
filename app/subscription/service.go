// Package subscription implements the subscribe and confirm flows over
// the provider's contact list.
package subscription

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
	"github.com/lysyi3m/ai-newsletter/app/plunk"
)

const ConfirmedEvent = "subscription-confirmed"

var (
	ErrEmailRequired = errors.New("Email address is required")
	ErrInvalidEmail  = errors.New("Please enter a valid email address")
)

type Contacts interface {
	CreateContact(ctx context.Context, req plunk.CreateContactRequest) (*plunk.Contact, error)
	GetContact(ctx context.Context, id string) (*plunk.Contact, error)
	SubscribeContact(ctx context.Context, id string) (*plunk.Contact, error)
	Track(ctx context.Context, req plunk.TrackRequest) error
}

// WelcomeQueue schedules the welcome email for a new subscriber.
type WelcomeQueue interface {
	EnqueueWelcome(email string) error
}

type Service struct {
	contacts Contacts
	welcome  WelcomeQueue
	source   string
	now      func() time.Time
}

// NewService builds the flows. welcome may be nil.
func NewService(contacts Contacts, welcome WelcomeQueue, source string) *Service {
	if source == "" {
		source = "website"
	}
	return &Service{
		contacts: contacts,
		welcome:  welcome,
		source:   source,
		now:      time.Now,
	}
}

type SubscribeResult struct {
	Contact           newsletter.Contact
	AlreadySubscribed bool
}

func (s *Service) Subscribe(ctx context.Context, email string) (*SubscribeResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if !newsletter.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	slog.Info("New subscription request", "email", email)

	contact, err := s.contacts.CreateContact(ctx, plunk.CreateContactRequest{
		Email:      email,
		Subscribed: true,
		Data: map[string]any{
			"source":       s.source,
			"subscribedAt": s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		if isAlreadyExists(err) {
			slog.Info("Contact already subscribed", "email", email)
			return &SubscribeResult{
				Contact:           newsletter.Contact{Email: email, Subscribed: true},
				AlreadySubscribed: true,
			}, nil
		}
		return nil, err
	}

	if s.welcome != nil {
		if err := s.welcome.EnqueueWelcome(email); err != nil {
			slog.Warn("Failed to queue welcome email", "email", email, "error", err)
		}
	}

	slog.Info("Subscribed", "email", email, "contact_id", contact.ID)

	return &SubscribeResult{
		Contact: newsletter.Contact{ID: contact.ID, Email: email, Subscribed: contact.Subscribed},
	}, nil
}

func isAlreadyExists(err error) bool {
	var pe *plunk.ProviderError
	return errors.As(err, &pe) &&
		pe.Status == 400 &&
		strings.Contains(strings.ToLower(pe.Message), "already exists")
}

// ConfirmOutcome is the status reported back to the landing page.
type ConfirmOutcome struct {
	Error   string
	Email   string
	Already bool
}

// RedirectURL appends the outcome to base as query parameters.
func (o ConfirmOutcome) RedirectURL(base string) string {
	var params []string
	if o.Error != "" {
		params = append(params, "error="+url.QueryEscape(o.Error))
	} else {
		params = append(params, "confirm="+url.QueryEscape(o.Email))
		if o.Already {
			params = append(params, "already=true")
		}
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(params, "&")
}

// Confirm verifies the contact and marks it subscribed. It never fails;
// every problem is reported in the outcome.
func (s *Service) Confirm(ctx context.Context, contactID string) ConfirmOutcome {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return ConfirmOutcome{Error: "missing_contact_id"}
	}

	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		switch {
		case errors.Is(err, newsletter.ErrConfiguration):
			slog.Error("Contacts unavailable", "error", err)
			return ConfirmOutcome{Error: "server_error"}
		case plunk.StatusOf(err) != 0:
			slog.Warn("Contact not found", "contact_id", contactID, "error", err)
			return ConfirmOutcome{Error: "contact_not_found"}
		default:
			slog.Error("Contact lookup failed", "contact_id", contactID, "error", err)
			return ConfirmOutcome{Error: "unexpected_error"}
		}
	}

	if contact.Subscribed {
		slog.Info("Contact already subscribed", "email", contact.Email)
		return ConfirmOutcome{Email: contact.Email, Already: true}
	}

	if _, err := s.contacts.SubscribeContact(ctx, contactID); err != nil {
		var pe *plunk.ProviderError
		if errors.As(err, &pe) {
			slog.Warn("Subscription confirmation rejected", "contact_id", contactID, "error", err)
			return ConfirmOutcome{Error: pe.Message}
		}
		slog.Error("Subscription confirmation failed", "contact_id", contactID, "error", err)
		return ConfirmOutcome{Error: "unexpected_error"}
	}

	slog.Info("Subscription confirmed", "email", contact.Email)

	err = s.contacts.Track(ctx, plunk.TrackRequest{
		Event:      ConfirmedEvent,
		Email:      contact.Email,
		Subscribed: true,
	})
	if err != nil {
		slog.Warn("Failed to track event", "event", ConfirmedEvent, "email", contact.Email, "error", err)
	}

	return ConfirmOutcome{Email: contact.Email}
}
