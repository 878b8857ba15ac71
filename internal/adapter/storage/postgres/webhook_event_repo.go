package postgres

import (
	"context"
	"fmt"

	"wallet-ledger/internal/core/domain"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a PostgreSQL-backed webhook event log.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create appends a verified gateway event.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, event, reference, outcome, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Event, e.Reference, string(e.Outcome), e.Payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}
