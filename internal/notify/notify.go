// Package notify implements the push-only notification port (C11).
package notify

import "context"

// Preview is one basket-change line shown in a rebalance preview or
// confirmation request.
type Preview struct {
	Strategy string
	Closed   []string
	Opened   []string
}

// Notifier is the outbound notification capability. Delivery is
// best-effort: a failed send must never abort a rebalance.
type Notifier interface {
	SendStartup(ctx context.Context, summary string) error
	SendCountdown(ctx context.Context, days int, nextDate string) error
	SendRebalancePreview(ctx context.Context, previews []Preview) error
	SendError(ctx context.Context, title, detail string, isWarning bool) error
	SendConfirmationRequest(ctx context.Context, previews []Preview) (awaitsAnswer bool, err error)
}
