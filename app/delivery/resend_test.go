package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

func newResendGateway(t *testing.T, handler http.HandlerFunc, audienceID string) *ResendGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := resend.NewCustomClient(server.Client(), "re_test")
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewResendGateway(client, "news@example.com", audienceID)
}

func TestResendGatewaySendSingle(t *testing.T) {
	var got map[string]any
	g := newResendGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "re_msg_1"})
	}, "")

	id, err := g.SendSingle(context.Background(), newsletter.Document{Subject: "S", HTML: "<p>x</p>"}, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "re_msg_1", id)
	assert.Equal(t, "news@example.com", got["from"])
	assert.Equal(t, []any{"a@b.co"}, got["to"])
	assert.Equal(t, "<p>x</p>", got["html"])
}

func TestResendGatewayBroadcast(t *testing.T) {
	var paths []string
	g := newResendGateway(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "bc_1"})
	}, "aud_1")

	id, err := g.CreateCampaign(context.Background(), "AI News Daily - x", newsletter.Document{Subject: "S", HTML: "H"})
	require.NoError(t, err)
	assert.Equal(t, "bc_1", id)

	require.NoError(t, g.SendCampaign(context.Background(), id))
	assert.Equal(t, []string{"/broadcasts", "/broadcasts/bc_1/send"}, paths)
	assert.Equal(t, "{{{RESEND_UNSUBSCRIBE_URL}}}", g.UnsubscribePlaceholder())
}

func TestResendGatewayBroadcastNeedsAudience(t *testing.T) {
	g := newResendGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, "")

	_, err := g.CreateCampaign(context.Background(), "n", newsletter.Document{Subject: "S", HTML: "H"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, newsletter.ErrConfiguration))
}

func TestResendGatewayProviderError(t *testing.T) {
	g := newResendGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"statusCode": 422, "message": "Invalid `to` field", "name": "validation_error"})
	}, "")

	_, err := g.SendSingle(context.Background(), newsletter.Document{Subject: "S", HTML: "H"}, "a@b.co")
	require.Error(t, err)
	assert.Equal(t, "ProviderError", newsletter.Kind(err))
}

func TestResendGatewayNetworkError(t *testing.T) {
	client := resend.NewClient("re_test")
	client.BaseURL, _ = url.Parse("http://127.0.0.1:1/")
	g := NewResendGateway(client, "news@example.com", "")

	_, err := g.SendSingle(context.Background(), newsletter.Document{Subject: "S", HTML: "H"}, "a@b.co")
	require.Error(t, err)
	assert.Equal(t, "NetworkError", newsletter.Kind(err))
}
