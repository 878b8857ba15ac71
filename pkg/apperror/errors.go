package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuth           Kind = "auth"
	KindInfrastructure Kind = "infrastructure"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind              `json:"-"`
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so errors.Is(err, ErrSelfTransfer()) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of e carrying an extra client-visible detail.
func (e *AppError) WithDetail(key, value string) *AppError {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf reports the Kind of the first *AppError in err's chain.
// Errors that are not AppErrors are infrastructure failures.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInfrastructure
}

// ---- Validation (VAL) ----

// Validation returns a generic field validation error.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Amount must be greater than zero with at most 2 decimal places", http.StatusBadRequest)
}

func ErrInvalidPermission(value string) *AppError {
	return New(KindValidation, "VAL_003", fmt.Sprintf("Invalid permission %q: allowed values are deposit, transfer, read", value), http.StatusBadRequest)
}

func ErrInvalidExpiry(value string) *AppError {
	return New(KindValidation, "VAL_004", fmt.Sprintf("Invalid expiry %q: allowed values are 1H, 1D, 1M, 1Y", value), http.StatusBadRequest)
}

// ---- Not found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrUnknownReference() *AppError {
	return New(KindNotFound, "NF_002", "Unknown transaction reference", http.StatusNotFound)
}

// ---- Ledger conflicts (CONF) ----

func ErrInsufficientFunds() *AppError {
	return New(KindConflict, "CONF_001", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrSelfTransfer() *AppError {
	return New(KindConflict, "CONF_002", "Cannot transfer to your own wallet", http.StatusBadRequest)
}

func ErrKeyNotExpired() *AppError {
	return New(KindConflict, "CONF_003", "API key has not expired yet", http.StatusConflict)
}

func ErrKeyLimitReached(limit int) *AppError {
	return New(KindConflict, "CONF_004", fmt.Sprintf("Maximum of %d active API keys reached", limit), http.StatusConflict)
}

func ErrDuplicate(entity string) *AppError {
	return New(KindConflict, "CONF_005", fmt.Sprintf("%s already exists", entity), http.StatusConflict)
}

func ErrAmountMismatch() *AppError {
	return New(KindConflict, "CONF_006", "Gateway amount does not match the requested amount", http.StatusConflict)
}

func ErrNotADeposit() *AppError {
	return New(KindConflict, "CONF_007", "Reference does not belong to a deposit", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidSignature() *AppError {
	return New(KindAuth, "AUTH_001", "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New(KindAuth, "AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrAPIKeyNotFound() *AppError {
	return New(KindAuth, "AUTH_003", "Invalid API key", http.StatusUnauthorized)
}

func ErrAPIKeyExpired() *AppError {
	return New(KindAuth, "AUTH_004", "API key has expired", http.StatusUnauthorized)
}

func ErrForbidden(permission string) *AppError {
	return New(KindAuth, "AUTH_005", fmt.Sprintf("API key lacks %q permission", permission), http.StatusForbidden)
}

func ErrMissingCredentials() *AppError {
	return New(KindAuth, "AUTH_006", "Missing bearer token or API key", http.StatusUnauthorized)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInfrastructure, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrGatewayUnavailable(err error) *AppError {
	return Wrap(KindInfrastructure, "SYS_002", "Payment gateway unavailable, settlement is pending", http.StatusServiceUnavailable, err)
}
