package delivery

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

type fakeGateway struct {
	sendErr         error
	createErr       error
	sendCampaignErr error

	singles   []string
	docs      []newsletter.Document
	created   []string
	sentCamps []string
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) SendSingle(ctx context.Context, doc newsletter.Document, recipient string) (string, error) {
	g.singles = append(g.singles, recipient)
	g.docs = append(g.docs, doc)
	if g.sendErr != nil {
		return "", g.sendErr
	}
	return "msg_1", nil
}

func (g *fakeGateway) CreateCampaign(ctx context.Context, name string, doc newsletter.Document) (string, error) {
	g.created = append(g.created, name)
	g.docs = append(g.docs, doc)
	if g.createErr != nil {
		return "", g.createErr
	}
	return fmt.Sprintf("camp_%d", len(g.created)), nil
}

func (g *fakeGateway) SendCampaign(ctx context.Context, campaignID string) error {
	g.sentCamps = append(g.sentCamps, campaignID)
	return g.sendCampaignErr
}

func (g *fakeGateway) UnsubscribePlaceholder() string { return "{{unsub}}" }

func (g *fakeGateway) calls() int {
	return len(g.singles) + len(g.created) + len(g.sentCamps)
}

type ledgerRow struct {
	provider, id, date, hash string
	sent                     bool
}

type fakeLedger struct {
	rows  []ledgerRow
	saved []string
	sent  []string
	err   error
}

func (l *fakeLedger) PendingCampaign(ctx context.Context, provider, date, hash string) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	for i := len(l.rows) - 1; i >= 0; i-- {
		r := l.rows[i]
		if r.provider == provider && r.date == date && r.hash == hash && !r.sent {
			return r.id, true, nil
		}
	}
	return "", false, nil
}

func (l *fakeLedger) SaveCampaign(ctx context.Context, provider, campaignID, date, hash string) error {
	l.saved = append(l.saved, campaignID)
	if l.err != nil {
		return l.err
	}
	l.rows = append(l.rows, ledgerRow{provider: provider, id: campaignID, date: date, hash: hash})
	return nil
}

func (l *fakeLedger) MarkCampaignSent(ctx context.Context, provider, campaignID string) error {
	l.sent = append(l.sent, campaignID)
	if l.err != nil {
		return l.err
	}
	for i := range l.rows {
		if l.rows[i].provider == provider && l.rows[i].id == campaignID {
			l.rows[i].sent = true
		}
	}
	return nil
}

const testDate = "Friday, October 16, 2026"

func curated(n int) newsletter.CuratedBatch {
	batch := make(newsletter.CuratedBatch, n)
	for i := range batch {
		batch[i] = newsletter.CuratedItem{
			Headline: fmt.Sprintf("Headline %d", i+1),
			Summary:  "Summary.",
			URL:      fmt.Sprintf("https://news.example.com/%d", i+1),
		}
	}
	return batch
}

func newService(g Gateway, ledger CampaignStore, config Config) *Service {
	return NewService(g, newsletter.NewRenderer(""), ledger, config)
}

func TestServiceRequestPrecedence(t *testing.T) {
	s := newService(&fakeGateway{}, nil, Config{DefaultRecipient: "env@example.com", BroadcastMode: true})

	req := s.Request(curated(10), testDate, "", nil)
	assert.True(t, req.Broadcast, "process default applies when the run does not say")
	assert.Empty(t, req.Recipient)

	req = s.Request(curated(10), testDate, "", boolPtr(false))
	assert.False(t, req.Broadcast, "explicit flag wins")
	assert.Equal(t, "env@example.com", req.Recipient)

	req = s.Request(curated(10), testDate, "run@example.com", boolPtr(false))
	assert.Equal(t, "run@example.com", req.Recipient)
}

func TestServiceRequestCopiesItems(t *testing.T) {
	s := newService(&fakeGateway{}, nil, Config{})
	items := curated(10)

	req := s.Request(items, testDate, "a@b.co", nil)
	items[0].Headline = "changed"

	assert.Equal(t, "Headline 1", req.Items[0].Headline)
}

func TestServiceSendSingle(t *testing.T) {
	g := &fakeGateway{}
	s := newService(g, nil, Config{DefaultRecipient: "env@example.com"})

	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.NoError(t, err)

	assert.Equal(t, &newsletter.Receipt{
		Success:   true,
		MessageID: "msg_1",
		Recipient: "env@example.com",
		ItemCount: 10,
		Date:      testDate,
	}, receipt)
	assert.Equal(t, []string{"env@example.com"}, g.singles)
	assert.NotContains(t, g.docs[0].HTML, "{{unsub}}", "single sends carry no unsubscribe footer")
	assert.Equal(t, "🤖 AI News Daily - "+testDate, g.docs[0].Subject)
}

func TestServiceNoRecipientMakesNoCall(t *testing.T) {
	g := &fakeGateway{}
	s := newService(g, nil, Config{})

	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", boolPtr(false)))
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.Zero(t, g.calls())
	assert.Equal(t, "ConfigurationError", newsletter.Kind(err))
	assert.Contains(t, err.Error(), "RECIPIENT_EMAIL not set")

	stage, _ := newsletter.StageOf(err)
	assert.Equal(t, newsletter.StageDelivery, stage)
}

func TestServiceInvalidRecipientMakesNoCall(t *testing.T) {
	g := &fakeGateway{}
	s := newService(g, nil, Config{})

	_, err := s.Run(context.Background(), s.Request(curated(10), testDate, "not-an-email", nil))
	require.Error(t, err)
	assert.Zero(t, g.calls())
	assert.True(t, errors.Is(err, newsletter.ErrSchemaViolation))
}

func TestServiceSendFailure(t *testing.T) {
	g := &fakeGateway{sendErr: errors.Mark(errors.New("status 500"), newsletter.ErrProvider)}
	s := newService(g, nil, Config{})

	_, err := s.Run(context.Background(), s.Request(curated(10), testDate, "a@b.co", nil))
	require.Error(t, err)
	assert.Equal(t, "ProviderError", newsletter.Kind(err))
	stage, _ := newsletter.StageOf(err)
	assert.Equal(t, newsletter.StageDelivery, stage)
}

func TestServiceBroadcast(t *testing.T) {
	g := &fakeGateway{}
	ledger := &fakeLedger{}
	s := newService(g, ledger, Config{BroadcastMode: true})

	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "ignored@example.com", nil))
	require.NoError(t, err)

	assert.Equal(t, &newsletter.Receipt{
		Success:    true,
		MessageID:  "camp_1",
		CampaignID: "camp_1",
		Recipient:  newsletter.BroadcastRecipient,
		ItemCount:  10,
		Date:       testDate,
		Broadcast:  true,
	}, receipt)

	assert.Empty(t, g.singles)
	assert.Equal(t, []string{"AI News Daily - " + testDate}, g.created)
	assert.Equal(t, []string{"camp_1"}, g.sentCamps)
	assert.Contains(t, g.docs[0].HTML, `href="{{unsub}}"`)
	assert.Equal(t, []string{"camp_1"}, ledger.saved)
	assert.Equal(t, []string{"camp_1"}, ledger.sent)
}

func TestServiceBroadcastSendFailureNamesCampaign(t *testing.T) {
	g := &fakeGateway{sendCampaignErr: errors.Mark(errors.New("status 503"), newsletter.ErrProvider)}
	ledger := &fakeLedger{}
	s := newService(g, ledger, Config{})

	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", boolPtr(true)))
	require.Error(t, err)
	assert.Nil(t, receipt)

	var be *BroadcastError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "camp_1", be.CampaignID)
	assert.Contains(t, err.Error(), "camp_1")
	assert.Equal(t, "ProviderError", newsletter.Kind(err))

	assert.Equal(t, []string{"camp_1"}, ledger.saved)
	assert.Empty(t, ledger.sent, "unsent campaign stays pending in the ledger")
}

func TestServiceBroadcastReusesPendingCampaign(t *testing.T) {
	g := &fakeGateway{sendCampaignErr: errors.New("status 503")}
	ledger := &fakeLedger{}
	s := newService(g, ledger, Config{BroadcastMode: true})

	_, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.Error(t, err)

	g.sendCampaignErr = nil
	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.NoError(t, err)

	assert.Len(t, g.created, 1, "no duplicate campaign")
	assert.Equal(t, []string{"camp_1", "camp_1"}, g.sentCamps)
	assert.Equal(t, "camp_1", receipt.CampaignID)
	assert.Equal(t, []string{"camp_1"}, ledger.sent)
}

func TestServiceBroadcastSkipsPendingCampaignWithOtherContent(t *testing.T) {
	g := &fakeGateway{sendCampaignErr: errors.New("status 503")}
	ledger := &fakeLedger{}
	s := newService(g, ledger, Config{BroadcastMode: true})

	_, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.Error(t, err)

	fresh := curated(10)
	for i := range fresh {
		fresh[i].Headline = "FRESH " + fresh[i].Headline
	}

	g.sendCampaignErr = nil
	receipt, err := s.Run(context.Background(), s.Request(fresh, testDate, "", nil))
	require.NoError(t, err)

	require.Len(t, g.created, 2, "stale campaign is not reused")
	assert.Equal(t, []string{"camp_1", "camp_2"}, g.sentCamps)
	assert.Equal(t, "camp_2", receipt.CampaignID)
	assert.Contains(t, g.docs[1].HTML, "FRESH Headline 1")
	assert.NotContains(t, g.docs[0].HTML, "FRESH")
	assert.Equal(t, []string{"camp_2"}, ledger.sent)
}

func TestServiceBroadcastLedgerFailureIsIgnored(t *testing.T) {
	g := &fakeGateway{}
	ledger := &fakeLedger{err: errors.New("database is locked")}
	s := newService(g, ledger, Config{BroadcastMode: true})

	receipt, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Len(t, g.created, 1)
}

func TestServiceBroadcastCreateFailure(t *testing.T) {
	g := &fakeGateway{createErr: errors.Mark(errors.New("status 401"), newsletter.ErrProvider)}
	s := newService(g, nil, Config{BroadcastMode: true})

	_, err := s.Run(context.Background(), s.Request(curated(10), testDate, "", nil))
	require.Error(t, err)

	var be *BroadcastError
	assert.False(t, errors.As(err, &be), "nothing was created")
	assert.Empty(t, g.sentCamps)
}

func TestServiceRejectsWrongCardinality(t *testing.T) {
	g := &fakeGateway{}
	s := newService(g, nil, Config{BroadcastMode: true})

	_, err := s.Run(context.Background(), s.Request(curated(9), testDate, "", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, newsletter.ErrSchemaViolation))
	assert.Zero(t, g.calls())
}
