package middleware

import (
	"net/http"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderAPIKey    = "x-api-key"
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxUserID     = "user_id"
	CtxAuthMethod = "auth_method"
	CtxAPIKeyID   = "api_key_id"
	CtxRequestID  = "request_id"

	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// Authenticate accepts a bearer JWT or an API key carrying the required
// permission. A bearer token wins when both are present.
func Authenticate(tokenSvc ports.TokenService, keySvc ports.APIKeyService, required domain.Permission, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			claims, err := tokenSvc.Validate(token)
			if err != nil {
				response.Abort(c, apperror.ErrInvalidToken())
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxAuthMethod, AuthMethodJWT)
			c.Next()
			return
		}

		secret := c.GetHeader(HeaderAPIKey)
		if secret == "" {
			response.Abort(c, apperror.ErrMissingCredentials())
			return
		}
		key, err := keySvc.Authenticate(c.Request.Context(), secret, required)
		if err != nil {
			if apperror.KindOf(err) == apperror.KindInfrastructure {
				log.Error().Err(err).Msg("api key lookup failed")
			}
			response.Abort(c, err)
			return
		}
		c.Set(CtxUserID, key.UserID)
		c.Set(CtxAPIKeyID, key.ID)
		c.Set(CtxAuthMethod, AuthMethodAPIKey)
		c.Next()
	}
}

// JWTAuth admits only session tokens. Key management uses it so an API key
// can never mint or rotate keys.
func JWTAuth(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, apperror.ErrInvalidToken())
			return
		}
		claims, err := tokenSvc.Validate(token)
		if err != nil {
			response.Abort(c, apperror.ErrInvalidToken())
			return
		}
		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxAuthMethod, AuthMethodJWT)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[len("Bearer "):])
	return token, token != ""
}

// UserID returns the authenticated principal set by Authenticate or JWTAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Abort(c, apperror.InternalError(nil))
			}
		}()
		c.Next()
	}
}
