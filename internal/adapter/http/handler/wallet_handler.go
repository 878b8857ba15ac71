package handler

import (
	"strconv"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves balance, history, deposit and transfer endpoints.
type WalletHandler struct {
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	view, err := h.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		Balance:      view.Balance,
		WalletNumber: view.WalletNumber,
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(ports.DefaultPageSize)))

	txns, err := h.ledgerSvc.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.ToTransactionResponse(txns[i]))
	}
	response.OK(c, items)
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}

	intent, err := h.ledgerSvc.InitiateDeposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		Reference:        intent.Reference,
		AuthorizationURL: intent.AuthorizationURL,
	})
}

// DepositStatus handles GET /api/v1/wallet/deposit/:reference/status.
func (h *WalletHandler) DepositStatus(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	reference := c.Param("reference")
	if !dto.IsSafeID(reference) {
		response.Error(c, apperror.Validation("invalid reference"))
		return
	}

	status, err := h.ledgerSvc.GetDepositStatus(c.Request.Context(), userID, reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DepositStatusResponse{
		Reference:     status.Reference,
		Status:        string(status.Status),
		Amount:        status.Amount,
		GatewayStatus: status.GatewayStatus,
	})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := principal(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.ledgerSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderUserID:          userID,
		RecipientWalletNumber: req.WalletNumber,
		Amount:                req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.TransferResponse{
		Status:  string(result.Status),
		Message: "Transfer completed",
	}
	if result.Debit != nil && result.Debit.Reference != nil {
		resp.Reference = *result.Debit.Reference
	}
	response.OK(c, resp)
}
