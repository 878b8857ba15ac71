package handler

import (
	"io"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderPaystackSignature carries the HMAC-SHA512 of the raw body.
const HeaderPaystackSignature = "x-paystack-signature"

// WebhookHandler receives gateway notifications.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Paystack handles POST /api/v1/wallet/paystack/webhook. The body is read
// unparsed because the signature covers the exact bytes received.
func (h *WebhookHandler) Paystack(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("unable to read request body"))
		return
	}

	result, err := h.webhookSvc.HandleGatewayEvent(c.Request.Context(), body, c.GetHeader(HeaderPaystackSignature))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WebhookAck{Status: true, Outcome: string(result.Outcome)})
}
