package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/adapter/metrics"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds every request body, webhooks included.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	APIKeySvc      ports.APIKeyService
	WebhookSvc     ports.WebhookService
	TokenSvc       ports.TokenService
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Metrics        *metrics.Metrics   // nil = /metrics not exposed
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	v1 := r.Group("/api/v1")

	auth := func(p domain.Permission) gin.HandlerFunc {
		return middleware.Authenticate(deps.TokenSvc, deps.APIKeySvc, p, deps.Logger)
	}

	walletHandler := NewWalletHandler(deps.LedgerSvc)
	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("/balance", auth(domain.PermissionRead), walletHandler.GetBalance)
		wallet.GET("/transactions", auth(domain.PermissionRead), walletHandler.ListTransactions)
		wallet.POST("/deposit", auth(domain.PermissionDeposit), walletHandler.Deposit)
		wallet.GET("/deposit/:reference/status", auth(domain.PermissionRead), walletHandler.DepositStatus)
		wallet.POST("/transfer", auth(domain.PermissionTransfer), walletHandler.Transfer)
		wallet.POST("/paystack/webhook", webhookHandler.Paystack)
	}

	keysHandler := NewKeysHandler(deps.APIKeySvc)
	keys := v1.Group("/keys", middleware.JWTAuth(deps.TokenSvc))
	{
		keys.POST("/create", keysHandler.Create)
		keys.POST("/rollover", keysHandler.Rollover)
		keys.GET("", keysHandler.List)
		keys.DELETE("/:id", keysHandler.Revoke)
	}

	return r
}
