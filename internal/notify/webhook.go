package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/momentum-rebalancer/pkg/httpjson"
	"github.com/aristath/momentum-rebalancer/pkg/retry"
)

// postRetry is the generic N-attempt/fixed-delay retry the chat/webhook
// calls use, per the source's retry wrapper contract.
var postRetry = retry.Config{Attempts: 3, Delay: 300 * time.Millisecond}

// WebhookNotifier posts JSON payloads to a single configured webhook
// URL, following the same request/response envelope pattern used by
// this codebase's other HTTP clients.
type WebhookNotifier struct {
	http *httpjson.Client
	log  zerolog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, log zerolog.Logger) *WebhookNotifier {
	log = log.With().Str("component", "notify").Logger()
	return &WebhookNotifier{
		http: httpjson.New(url, timeout, log, "notify"),
		log:  log,
	}
}

type webhookPayload struct {
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary,omitempty"`
	Days      int       `json:"days,omitempty"`
	NextDate  string    `json:"next_date,omitempty"`
	Previews  []Preview `json:"previews,omitempty"`
	Title     string    `json:"title,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	IsWarning bool      `json:"is_warning,omitempty"`
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	return retry.Do(ctx, postRetry, n.log, "webhook "+payload.Kind, func(ctx context.Context) error {
		return n.http.DoJSON(ctx, "POST", "", nil, payload, nil)
	})
}

func (n *WebhookNotifier) SendStartup(ctx context.Context, summary string) error {
	return n.post(ctx, webhookPayload{Kind: "startup", Summary: summary})
}

func (n *WebhookNotifier) SendCountdown(ctx context.Context, days int, nextDate string) error {
	return n.post(ctx, webhookPayload{Kind: "countdown", Days: days, NextDate: nextDate})
}

func (n *WebhookNotifier) SendRebalancePreview(ctx context.Context, previews []Preview) error {
	return n.post(ctx, webhookPayload{Kind: "rebalance_preview", Previews: previews})
}

// SendError must never let its own failure re-enter the logging path;
// it logs locally and swallows the delivery error.
func (n *WebhookNotifier) SendError(ctx context.Context, title, detail string, isWarning bool) error {
	err := n.post(ctx, webhookPayload{Kind: "error", Title: title, Detail: detail, IsWarning: isWarning})
	if err != nil {
		n.log.Warn().Err(err).Str("title", title).Msg("failed to deliver error notification, suppressing")
	}
	return nil
}

// SendConfirmationRequest posts the request and reports whether a
// caller should now await an answer on its own channel; the webhook
// transport itself carries no inbound reply path, so it always answers
// true on successful delivery and false on failure (nothing to await).
func (n *WebhookNotifier) SendConfirmationRequest(ctx context.Context, previews []Preview) (bool, error) {
	err := n.post(ctx, webhookPayload{Kind: "confirmation_request", Previews: previews})
	if err != nil {
		return false, fmt.Errorf("failed to send confirmation request: %w", err)
	}
	return true, nil
}

var _ Notifier = (*WebhookNotifier)(nil)
