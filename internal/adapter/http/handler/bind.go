package handler

import (
	"errors"

	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/money"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// bindJSON decodes and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, money.ErrInvalid) || errors.Is(err, money.ErrTooPrecise) {
			response.Error(c, apperror.ErrInvalidAmount())
			return false
		}
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	return true
}

// principal returns the authenticated user or answers 401.
func principal(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
	}
	return userID, ok
}
