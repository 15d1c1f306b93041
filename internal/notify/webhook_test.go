package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendError_SwallowsTransportFailure(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1", time.Millisecond*50, zerolog.Nop())
	err := n.SendError(context.Background(), "boom", "detail", false)
	require.NoError(t, err)
}

func TestSendStartup_DeliversToWebhook(t *testing.T) {
	var gotKind string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		defer r.Body.Close()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotKind = payload.Kind
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, n.SendStartup(context.Background(), "ready"))
	require.Equal(t, "startup", gotKind)
}

func TestSendConfirmationRequest_ReportsAwaitsAnswerOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, zerolog.Nop())
	awaits, err := n.SendConfirmationRequest(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, awaits)
}
