package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type principal struct {
	userID uuid.UUID
	method string
}

func newAuthRouter(handler gin.HandlerFunc, got *principal) *gin.Engine {
	router := gin.New()
	router.GET("/test", handler, func(c *gin.Context) {
		got.userID, _ = UserID(c)
		got.method = c.GetString(CtxAuthMethod)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

func TestAuthenticate_JWT(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	keySvc := mocks.NewMockAPIKeyService(ctrl)

	userID := uuid.New()
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{UserID: userID, Email: "a@example.com"}, nil)

	var got principal
	router := newAuthRouter(Authenticate(tokenSvc, keySvc, domain.PermissionRead, zerolog.Nop()), &got)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	req.Header.Set(HeaderAPIKey, "sk_live_ignored")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, got.userID)
	assert.Equal(t, AuthMethodJWT, got.method)
}

func TestAuthenticate_InvalidJWTDoesNotFallBackToKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	keySvc := mocks.NewMockAPIKeyService(ctrl)

	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	var got principal
	router := newAuthRouter(Authenticate(tokenSvc, keySvc, domain.PermissionRead, zerolog.Nop()), &got)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	req.Header.Set(HeaderAPIKey, "sk_live_abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_002", errorCode(t, w))
}

func TestAuthenticate_APIKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	keySvc := mocks.NewMockAPIKeyService(ctrl)

	userID := uuid.New()
	keySvc.EXPECT().Authenticate(gomock.Any(), "sk_live_abc", domain.PermissionDeposit).
		Return(&domain.APIKey{ID: uuid.New(), UserID: userID}, nil)

	var got principal
	router := newAuthRouter(Authenticate(tokenSvc, keySvc, domain.PermissionDeposit, zerolog.Nop()), &got)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderAPIKey, "sk_live_abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, got.userID)
	assert.Equal(t, AuthMethodAPIKey, got.method)
}

func TestAuthenticate_APIKeyRejected(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown", apperror.ErrAPIKeyNotFound(), http.StatusUnauthorized, "AUTH_003"},
		{"expired", apperror.ErrAPIKeyExpired(), http.StatusUnauthorized, "AUTH_004"},
		{"forbidden", apperror.ErrForbidden("transfer"), http.StatusForbidden, "AUTH_005"},
		{"store down", apperror.InternalError(assert.AnError), http.StatusInternalServerError, "SYS_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tokenSvc := mocks.NewMockTokenService(ctrl)
			keySvc := mocks.NewMockAPIKeyService(ctrl)
			keySvc.EXPECT().Authenticate(gomock.Any(), "sk_live_abc", domain.PermissionTransfer).Return(nil, tt.err)

			var got principal
			router := newAuthRouter(Authenticate(tokenSvc, keySvc, domain.PermissionTransfer, zerolog.Nop()), &got)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(HeaderAPIKey, "sk_live_abc")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
			assert.Equal(t, uuid.Nil, got.userID, "handler must not run")
		})
	}
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	ctrl := gomock.NewController(t)
	var got principal
	router := newAuthRouter(Authenticate(mocks.NewMockTokenService(ctrl), mocks.NewMockAPIKeyService(ctrl), domain.PermissionRead, zerolog.Nop()), &got)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_006", errorCode(t, w))
}

func TestJWTAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	userID := uuid.New()
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{UserID: userID}, nil)

	var got principal
	router := newAuthRouter(JWTAuth(tokenSvc), &got)

	t.Run("api key alone is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderAPIKey, "sk_live_abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer good_token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID, got.userID)
	})
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", errorCode(t, w))
}
