package monnify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/lalita/wallet/internal/logger"
)

const (
	CodeAuth    = "auth"    // credentials or bearer token rejected
	CodeGateway = "gateway" // provider answered with non-2xx or unsuccessful body
	CodeTimeout = "timeout" // request deadline exceeded
	CodeUnknown = "unknown"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultAuthTimeout = 10 * time.Second

	// Cached token is dropped this long before the provider expires it
	tokenExpiryMargin = 60 * time.Second

	currencyCode = "NGN"
)

var defaultPaymentMethods = []string{"CARD", "ACCOUNT_TRANSFER"}

type Error struct {
	Code       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("monnify: code: %s, status: %d, error: %v", e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code string, statusCode int, err error) *Error {
	return &Error{Code: code, StatusCode: statusCode, Err: err}
}

type Config struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string

	// Where the provider sends the customer after checkout
	RedirectURL string

	// If not set than default is used
	Timeout     time.Duration
	AuthTimeout time.Duration
}

type InitRequest struct {
	Amount             decimal.Decimal
	CustomerName       string
	CustomerEmail      string
	PaymentReference   string
	PaymentDescription string
}

type InitResult struct {
	CheckoutURL          string
	TransactionReference string
}

// Every provider response is wrapped in the envelope
type envelope[T any] struct {
	RequestSuccessful bool   `json:"requestSuccessful"`
	ResponseMessage   string `json:"responseMessage"`
	ResponseCode      string `json:"responseCode"`
	ResponseBody      T      `json:"responseBody"`
}

type Client struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
	now    func() time.Time

	login singleflight.Group

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.SecretKey == "" || cfg.ContractCode == "" {
		return nil, errors.New("monnify base url, api key, secret key and contract code are required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.AuthTimeout == 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		logger: l,
		now:    time.Now,
	}, nil
}

// Authenticate exchanges api credentials for bearer token.
// The token is reused until shortly before its documented expiry.
// Concurrent callers share one login request; the cache lock is never held across it
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	// Shared by every waiter, so no single caller may cancel it. AuthTimeout bounds it
	loginCtx := context.WithoutCancel(ctx)

	v, err, _ := c.login.Do("login", func() (any, error) {
		// Refreshed by a flight that finished just before this one started
		if token, ok := c.cachedToken(); ok {
			return token, nil
		}
		return c.fetchToken(loginCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	type loginResponse struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.SecretKey)

	body, err := do[loginResponse](c, req)
	if err != nil {
		var mErr *Error
		if errors.As(err, &mErr) && (mErr.StatusCode == http.StatusUnauthorized || mErr.StatusCode == http.StatusForbidden) {
			mErr.Code = CodeAuth
		}
		return "", err
	}
	if body.AccessToken == "" {
		return "", NewError(CodeAuth, http.StatusOK, errors.New("empty access token"))
	}

	var expiresAt time.Time
	if ttl := time.Duration(body.ExpiresIn)*time.Second - tokenExpiryMargin; ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.token = body.AccessToken
	c.tokenExpiresAt = expiresAt
	c.mu.Unlock()

	c.logger.Debug("Monnify token acquired", "expires_in", body.ExpiresIn)
	return body.AccessToken, nil
}

// InitializeTransaction creates transaction at the provider and returns checkout url.
// It never retries
func (c *Client) InitializeTransaction(ctx context.Context, r InitRequest) (InitResult, error) {
	type initPayload struct {
		Amount             json.Number `json:"amount"`
		CustomerName       string      `json:"customerName"`
		CustomerEmail      string      `json:"customerEmail"`
		PaymentReference   string      `json:"paymentReference"`
		PaymentDescription string      `json:"paymentDescription"`
		CurrencyCode       string      `json:"currencyCode"`
		ContractCode       string      `json:"contractCode"`
		RedirectURL        string      `json:"redirectUrl"`
		PaymentMethods     []string    `json:"paymentMethods"`
	}

	type initResponse struct {
		CheckoutURL          string `json:"checkoutUrl"`
		TransactionReference string `json:"transactionReference"`
	}

	var result InitResult

	token, err := c.Authenticate(ctx)
	if err != nil {
		return result, err
	}

	payload, err := json.Marshal(initPayload{
		Amount:             json.Number(r.Amount.StringFixed(2)),
		CustomerName:       r.CustomerName,
		CustomerEmail:      r.CustomerEmail,
		PaymentReference:   r.PaymentReference,
		PaymentDescription: r.PaymentDescription,
		CurrencyCode:       currencyCode,
		ContractCode:       c.cfg.ContractCode,
		RedirectURL:        c.cfg.RedirectURL,
		PaymentMethods:     defaultPaymentMethods,
	})
	if err != nil {
		return result, NewError(CodeUnknown, 0, fmt.Errorf("failed to encode payload: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/api/v1/merchant/transactions/init-transaction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return result, NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := do[initResponse](c, req)
	if err != nil {
		var mErr *Error
		if errors.As(err, &mErr) && mErr.StatusCode == http.StatusUnauthorized {
			mErr.Code = CodeAuth
			c.dropToken(token)
		}
		return result, err
	}
	if body.CheckoutURL == "" {
		return result, NewError(CodeGateway, http.StatusOK, errors.New("empty checkout url"))
	}

	c.logger.Debug("Monnify transaction initialized", "reference", r.PaymentReference, "provider_reference", body.TransactionReference)
	return InitResult{CheckoutURL: body.CheckoutURL, TransactionReference: body.TransactionReference}, nil
}

func (c *Client) dropToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == token {
		c.token = ""
		c.tokenExpiresAt = time.Time{}
	}
}

// Send request and decode envelope body. Errors are always *Error
func do[T any](c *Client, req *http.Request) (T, error) {
	var body T

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return body, NewError(CodeTimeout, 0, fmt.Errorf("request timed out: %w", err))
		}
		return body, NewError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return body, NewError(CodeTimeout, resp.StatusCode, fmt.Errorf("response timed out: %w", err))
		}
		return body, NewError(CodeUnknown, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Monnify request failed", "status_code", resp.StatusCode, "path", req.URL.Path)
		return body, NewError(CodeGateway, resp.StatusCode, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return body, NewError(CodeGateway, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if !env.RequestSuccessful {
		c.logger.Warn("Monnify request unsuccessful", "response_code", env.ResponseCode, "message", env.ResponseMessage)
		return body, NewError(CodeGateway, resp.StatusCode, fmt.Errorf("request unsuccessful: %s", env.ResponseMessage))
	}

	return env.ResponseBody, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
