package handler

import (
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeysHandler serves API key management. Routes are session-only.
type KeysHandler struct {
	keySvc ports.APIKeyService
	now    func() time.Time
}

// NewKeysHandler creates a new KeysHandler.
func NewKeysHandler(keySvc ports.APIKeyService) *KeysHandler {
	return &KeysHandler{keySvc: keySvc, now: time.Now}
}

// Create handles POST /api/v1/keys/create.
func (h *KeysHandler) Create(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	var req dto.CreateKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	issued, err := h.keySvc.IssueKey(c.Request.Context(), ports.IssueKeyRequest{
		UserID:      userID,
		Name:        req.Name,
		Permissions: req.Permissions,
		Expiry:      req.Expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToIssuedKeyResponse(issued))
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *KeysHandler) Rollover(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	var req dto.RolloverKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	keyID, err := uuid.Parse(req.ExpiredKeyID)
	if err != nil {
		response.Error(c, apperror.Validation("expired_key_id must be a UUID"))
		return
	}

	issued, err := h.keySvc.RolloverKey(c.Request.Context(), ports.RolloverKeyRequest{
		UserID:       userID,
		ExpiredKeyID: keyID,
		Expiry:       req.Expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ToIssuedKeyResponse(issued))
}

// List handles GET /api/v1/keys.
func (h *KeysHandler) List(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	keys, err := h.keySvc.ListKeys(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := h.now()
	items := make([]dto.KeyResponse, 0, len(keys))
	for _, k := range keys {
		items = append(items, dto.ToKeyResponse(k, now))
	}
	response.OK(c, items)
}

// Revoke handles DELETE /api/v1/keys/:id.
func (h *KeysHandler) Revoke(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("key id must be a UUID"))
		return
	}

	if err := h.keySvc.RevokeKey(c.Request.Context(), userID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"id": keyID.String(), "revoked": true})
}
