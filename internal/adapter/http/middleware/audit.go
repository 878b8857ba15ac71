package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful write operations once the handler has run.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if id, ok := UserID(c); ok {
			userID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"auth_method": c.GetString(CtxAuthMethod),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// mapPathToAction takes the route template, not the concrete URL.
func mapPathToAction(route, method string) (domain.AuditAction, string) {
	route = strings.TrimSuffix(route, "/")
	switch {
	case route == "/api/v1/wallet/deposit" && method == http.MethodPost:
		return domain.AuditActionDepositInitiate, "transaction"
	case route == "/api/v1/wallet/paystack/webhook" && method == http.MethodPost:
		return domain.AuditActionDepositSettle, "transaction"
	case route == "/api/v1/wallet/transfer" && method == http.MethodPost:
		return domain.AuditActionTransfer, "transaction"
	case route == "/api/v1/keys/create" && method == http.MethodPost:
		return domain.AuditActionAPIKeyIssue, "api_key"
	case route == "/api/v1/keys/rollover" && method == http.MethodPost:
		return domain.AuditActionAPIKeyRollover, "api_key"
	case route == "/api/v1/keys/:id" && method == http.MethodDelete:
		return domain.AuditActionAPIKeyRevoke, "api_key"
	}
	return "", ""
}
