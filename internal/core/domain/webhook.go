package domain

import (
	"time"

	"github.com/google/uuid"
)

// Gateway events that carry a settlement decision.
const (
	GatewayEventChargeSuccess = "charge.success"
	GatewayEventChargeFailed  = "charge.failed"
)

// WebhookOutcome records what the ledger did with an inbound event.
type WebhookOutcome string

const (
	WebhookOutcomeApplied  WebhookOutcome = "applied"
	WebhookOutcomeReplayed WebhookOutcome = "replayed"
	WebhookOutcomeIgnored  WebhookOutcome = "ignored"
	WebhookOutcomeRejected WebhookOutcome = "rejected"
)

// WebhookEvent is the append-only log of verified gateway notifications.
type WebhookEvent struct {
	ID        uuid.UUID      `json:"id"`
	Event     string         `json:"event"`
	Reference string         `json:"reference"`
	Outcome   WebhookOutcome `json:"outcome"`
	Payload   string         `json:"payload"` // raw JSON body
	CreatedAt time.Time      `json:"created_at"`
}
