// Package paystack is the payment gateway adapter for the Paystack
// transaction API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/money"

	"github.com/rs/zerolog"
)

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentGateway.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  HTTPClient
	log         zerolog.Logger
}

// New creates a gateway client from configuration.
func New(cfg config.GatewayConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout}, log)
}

// NewWithHTTPClient creates a gateway client with a caller-supplied transport.
func NewWithHTTPClient(cfg config.GatewayConfig, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		httpClient:  httpClient,
		log:         log.With().Str("component", "paystack").Logger(),
	}
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // minor units
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"` // minor units
	Currency  string `json:"currency"`
}

// InitializeCharge registers a charge and returns the hosted payment URL.
func (c *Client) InitializeCharge(ctx context.Context, req ports.ChargeRequest) (*ports.ChargeInit, error) {
	body, err := json.Marshal(initializeRequest{
		Email:       req.Email,
		Amount:      req.Amount.Minor(),
		Reference:   req.Reference,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out envelope[initializeData]
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, fmt.Errorf("initialize charge %s: %w", req.Reference, err)
	}

	c.log.Debug().
		Str("reference", req.Reference).
		Str("amount", req.Amount.String()).
		Msg("Charge initialized")

	return &ports.ChargeInit{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        out.Data.Reference,
	}, nil
}

// VerifyCharge fetches the gateway's current view of a charge.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*ports.ChargeVerification, error) {
	var out envelope[verifyData]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, fmt.Errorf("verify charge %s: %w", reference, err)
	}

	return &ports.ChargeVerification{
		Reference:     out.Data.Reference,
		GatewayStatus: out.Data.Status,
		Outcome:       domain.ChargeOutcomeFromGateway(out.Data.Status),
		Amount:        money.FromMinor(out.Data.Amount),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: %s - %s", resp.Status, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

var _ ports.PaymentGateway = (*Client)(nil)
