package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// WebhookConfig holds the webhook verification and caching settings.
type WebhookConfig struct {
	Secret     string
	SettledTTL time.Duration
}

// webhookService implements ports.WebhookService.
type webhookService struct {
	sigSvc    ports.SignatureService
	ledger    ports.LedgerService
	eventRepo ports.WebhookEventRepository
	cache     ports.SettlementCache // optional
	metrics   ports.LedgerMetrics
	cfg       WebhookConfig
	log       zerolog.Logger
}

// NewWebhookService creates a new webhook service. cache may be nil.
func NewWebhookService(
	sigSvc ports.SignatureService,
	ledger ports.LedgerService,
	eventRepo ports.WebhookEventRepository,
	cache ports.SettlementCache,
	metrics ports.LedgerMetrics,
	cfg WebhookConfig,
	log zerolog.Logger,
) ports.WebhookService {
	return &webhookService{
		sigSvc:    sigSvc,
		ledger:    ledger,
		eventRepo: eventRepo,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
	}
}

// HandleGatewayEvent verifies the signature over the raw body, then settles
// the referenced deposit. Replays are acknowledged, not errors.
func (s *webhookService) HandleGatewayEvent(ctx context.Context, body []byte, signature string) (*ports.WebhookResult, error) {
	if !s.sigSvc.Verify(s.cfg.Secret, body, signature) {
		s.metrics.WebhookHandled(domain.WebhookOutcomeRejected)
		s.log.Warn().Int("body_bytes", len(body)).Msg("webhook signature rejected")
		return nil, apperror.ErrInvalidSignature()
	}
	if !gjson.ValidBytes(body) {
		return nil, apperror.Validation("webhook body is not valid JSON")
	}

	payload := gjson.ParseBytes(body)
	event := payload.Get("event").String()
	reference := payload.Get("data.reference").String()

	result, err := s.dispatch(ctx, payload, event, reference)
	if err != nil {
		s.record(ctx, event, reference, domain.WebhookOutcomeRejected, body)
		s.metrics.WebhookHandled(domain.WebhookOutcomeRejected)
		return nil, err
	}

	s.record(ctx, event, reference, result.Outcome, body)
	s.metrics.WebhookHandled(result.Outcome)
	s.log.Info().
		Str("event", event).
		Str("reference", reference).
		Str("outcome", string(result.Outcome)).
		Msg("webhook handled")
	return result, nil
}

func (s *webhookService) dispatch(ctx context.Context, payload gjson.Result, event, reference string) (*ports.WebhookResult, error) {
	result := &ports.WebhookResult{Event: event, Reference: reference, Outcome: domain.WebhookOutcomeIgnored}

	var outcome domain.ChargeOutcome
	switch event {
	case domain.GatewayEventChargeSuccess:
		outcome = domain.ChargeOutcomeFromGateway(payload.Get("data.status").String())
	case domain.GatewayEventChargeFailed:
		outcome = domain.ChargeFailed
	default:
		return result, nil
	}
	if reference == "" {
		return nil, apperror.Validation("webhook is missing data.reference")
	}
	if outcome == domain.ChargePending {
		return result, nil
	}

	// A success for a deposit cached as failed still goes to the ledger so
	// the late payment is reported there.
	if status, ok := s.cachedStatus(ctx, reference); ok &&
		!(status == domain.TransactionStatusFailed && outcome == domain.ChargeSucceeded) {
		result.Outcome = domain.WebhookOutcomeReplayed
		result.Status = status
		return result, nil
	}

	var minor int64
	if outcome == domain.ChargeSucceeded {
		amount := payload.Get("data.amount")
		if amount.Type != gjson.Number {
			return nil, apperror.Validation("webhook is missing data.amount")
		}
		// Minor units are whole numbers; a fraction is a malformed event.
		n, err := strconv.ParseInt(amount.Raw, 10, 64)
		if err != nil {
			return nil, apperror.Validation(fmt.Sprintf("webhook data.amount %s is not a whole number of minor units", amount.Raw))
		}
		minor = n
	}

	settled, err := s.ledger.SettleDeposit(ctx, ports.SettleRequest{
		Reference: reference,
		Outcome:   outcome,
		Amount:    money.FromMinor(minor),
	})
	if err != nil {
		return nil, err
	}

	result.Status = settled.Transaction.Status
	result.Outcome = domain.WebhookOutcomeReplayed
	if settled.Applied {
		result.Outcome = domain.WebhookOutcomeApplied
	}
	if settled.Transaction.IsTerminal() {
		s.cacheStatus(ctx, reference, settled.Transaction.Status)
	}
	return result, nil
}

func (s *webhookService) cachedStatus(ctx context.Context, reference string) (domain.TransactionStatus, bool) {
	if s.cache == nil {
		return "", false
	}
	status, ok, err := s.cache.Get(ctx, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("settlement cache read failed")
		return "", false
	}
	return status, ok && status.IsTerminal()
}

func (s *webhookService) cacheStatus(ctx context.Context, reference string, status domain.TransactionStatus) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, reference, status, s.cfg.SettledTTL); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("settlement cache write failed")
	}
}

// record appends the event to the webhook log. Failures are logged only.
func (s *webhookService) record(ctx context.Context, event, reference string, outcome domain.WebhookOutcome, body []byte) {
	if s.eventRepo == nil {
		return
	}
	err := s.eventRepo.Create(ctx, &domain.WebhookEvent{
		ID:        uuid.New(),
		Event:     event,
		Reference: reference,
		Outcome:   outcome,
		Payload:   string(body),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(fmt.Errorf("record webhook event: %w", err)).Str("reference", reference).Msg("webhook event not recorded")
	}
}
