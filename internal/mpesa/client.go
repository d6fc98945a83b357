package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	errors "github.com/kodisha/payments/internal"
	mpesatypes "github.com/kodisha/payments/internal/core/datamodel/mpesa"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
	b2cPath      = "/mpesa/b2c/v1/paymentrequest"

	// Daraja tokens live ~1h; refresh this long before the reported expiry.
	tokenSafetyMargin = 60 * time.Second
)

type Config struct {
	Environment        string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	Passkey            string
	CallbackURL        string
	InitiatorName      string
	SecurityCredential string
	RequestTimeout     time.Duration

	// BaseURL overrides the environment-derived endpoint, used by tests.
	BaseURL string
}

// ChargeRequest describes one STK-push attempt. Amount may carry a
// fractional part; it is rounded to the nearest whole shilling before
// transmission because the provider rejects fractional amounts.
type ChargeRequest struct {
	Amount           float64
	PhoneNumber      string
	AccountReference string
	Description      string
}

// Client wraps all outbound Daraja HTTP calls. The cached bearer token is
// the only mutable state; it is guarded so concurrent requests never read a
// torn token or issue redundant refreshes.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, fmt.Errorf("mpesa: consumer key and secret are required")
	}
	if cfg.ShortCode == "" || cfg.Passkey == "" {
		return nil, fmt.Errorf("mpesa: short code and passkey are required")
	}
	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("mpesa: callback URL is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Environment == "production" {
			baseURL = productionBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if cfg.InitiatorName == "" {
		cfg.InitiatorName = "Kodisha"
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// GetAccessToken returns a valid bearer token, fetching a new one when the
// cached token is absent or within the safety margin of expiry.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	return c.refreshTokenLocked(ctx)
}

// invalidateToken forces the next call to fetch a fresh token, used after a
// 401 from a bearer-authenticated endpoint.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) refreshTokenLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", errors.NewInternalError("failed to build token request", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.ErrGatewayAuth.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("mpesa token request rejected",
			"status", resp.StatusCode,
			"response", string(body))
		return "", errors.NewExternalError("Failed to authenticate with payment gateway", errors.ErrCodeGatewayAuthFailed)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", errors.NewExternalError("Invalid token response from payment gateway", errors.ErrCodeGatewayAuthFailed).WithCause(err)
	}

	expiresIn := 3600 * time.Second
	if tok.ExpiresIn != "" {
		if d, perr := time.ParseDuration(tok.ExpiresIn + "s"); perr == nil {
			expiresIn = d
		}
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(expiresIn - tokenSafetyMargin)

	c.logger.Debug("mpesa access token refreshed", "expires_in", expiresIn.String())

	return c.accessToken, nil
}

// InitiateSTKPush submits a charge request. A nil error with Success=false
// means the provider (or the network) rejected the request; the reason is
// in Result.Error so callers can persist it. The provider confirms only
// that the charge was accepted for processing, the payment outcome arrives
// later on the callback URL.
func (c *Client) InitiateSTKPush(ctx context.Context, req ChargeRequest) (*mpesatypes.Result, error) {
	if req.Amount <= 0 {
		return nil, errors.NewValidationError("Invalid amount", errors.ErrCodeInvalidAmount)
	}
	if len(req.PhoneNumber) < 9 {
		return nil, errors.NewValidationError("Invalid phone number", errors.ErrCodeInvalidPhone)
	}

	timestamp := darajaTimestamp(time.Now())
	payload := mpesatypes.STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            roundAmount(req.Amount),
		PartyA:            NormalizePhone(req.PhoneNumber),
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       NormalizePhone(req.PhoneNumber),
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	var out mpesatypes.STKPushResponse
	if gwErr := c.postJSON(ctx, stkPushPath, payload, &out); gwErr != "" {
		return &mpesatypes.Result{Success: false, Error: gwErr}, nil
	}

	return &mpesatypes.Result{
		Success:             out.ResponseCode == "0",
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
	}, nil
}

// QueryStatus polls the provider for a definitive charge outcome, the
// reconciliation fallback when a callback is delayed or lost. Success is
// reported only when the underlying payment completed (ResultCode 0), not
// merely when the query call itself succeeded.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesatypes.Result, error) {
	if checkoutRequestID == "" {
		return nil, errors.NewValidationError("checkout request id is required", errors.ErrCodeValidationFailed)
	}

	timestamp := darajaTimestamp(time.Now())
	payload := mpesatypes.STKQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out mpesatypes.STKQueryResponse
	if gwErr := c.postJSON(ctx, stkQueryPath, payload, &out); gwErr != "" {
		return &mpesatypes.Result{Success: false, Error: gwErr}, nil
	}

	return &mpesatypes.Result{
		Success:             out.ResponseCode == "0" && out.ResultCode == "0",
		ResponseCode:        out.ResponseCode,
		ResultCode:          out.ResultCode,
		ResponseDescription: out.ResultDesc,
	}, nil
}

// SendB2C disburses funds to a customer phone, used for host payouts.
func (c *Client) SendB2C(ctx context.Context, payeePhone string, amount float64, description string) (*mpesatypes.Result, error) {
	if amount <= 0 {
		return nil, errors.NewValidationError("Invalid amount", errors.ErrCodeInvalidAmount)
	}
	if len(payeePhone) < 9 {
		return nil, errors.NewValidationError("Invalid phone number", errors.ErrCodeInvalidPhone)
	}

	payload := mpesatypes.B2CRequest{
		InitiatorName:      c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          "BusinessPayment",
		Amount:             roundAmount(amount),
		PartyA:             c.cfg.ShortCode,
		PartyB:             NormalizePhone(payeePhone),
		Remarks:            description,
		QueueTimeOutURL:    c.cfg.CallbackURL,
		ResultURL:          c.cfg.CallbackURL,
		Occasion:           "Host Payout",
	}

	var out mpesatypes.B2CResponse
	if gwErr := c.postJSON(ctx, b2cPath, payload, &out); gwErr != "" {
		return &mpesatypes.Result{Success: false, Error: gwErr}, nil
	}

	return &mpesatypes.Result{
		Success:             out.ResponseCode == "0",
		ConversationID:      out.ConversationID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
	}, nil
}

// postJSON performs a bearer-authenticated POST. A non-empty return value
// is the failure reason; auth failures are retried once with a forced
// token refresh before being surfaced.
func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) string {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("failed to encode request: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.GetAccessToken(ctx)
		if err != nil {
			return err.Error()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Sprintf("failed to build request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Sprintf("gateway request failed: %v", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.logger.Warn("mpesa request unauthorized, refreshing token", "path", path)
			c.invalidateToken()
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Sprintf("failed to read gateway response: %v", readErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr struct {
				ErrorMessage string `json:"errorMessage"`
			}
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.ErrorMessage != "" {
				return apiErr.ErrorMessage
			}
			return fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Sprintf("failed to decode gateway response: %v", err)
		}
		return ""
	}

	return "gateway authentication failed"
}

func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

// darajaTimestamp renders the instant as YYYYMMDDHHmmss, the format the
// password signature is computed over.
func darajaTimestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// NormalizePhone converts a Kenyan phone number to international format:
// a leading "+" is stripped, a local "07..." prefix becomes "2547...", and
// numbers already starting with 254 pass through unchanged.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "254") {
		return phone
	}
	return "254" + strings.TrimPrefix(phone, "0")
}

// roundAmount rounds to the nearest whole shilling; the provider rejects
// fractional amounts.
func roundAmount(amount float64) int64 {
	return int64(math.Round(amount))
}
