package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// Config holds the credentials and till identity for one shortcode.
type Config struct {
	// Environment selects the API host: "sandbox" or "production".
	Environment    string
	ShortCode      string
	Passkey        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
}

// Client wraps interactions with the Daraja API. Access tokens are
// cached until shortly before expiry and refreshed on demand.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	base := sandboxBaseURL
	if cfg.Environment == "production" {
		base = productionBaseURL
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// SetBaseURL points the client at a different host. Tests use it to
// target a local server.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a valid OAuth bearer token, fetching a fresh one
// with the consumer key and secret when the cached token is stale.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", c.baseURL), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("daraja token: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("daraja token: status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("daraja token: decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("daraja token: empty access_token")
	}

	ttl := 3600
	if v, err := strconv.Atoi(tok.ExpiresIn); err == nil && v > 0 {
		ttl = v
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttl-60) * time.Second)
	return c.token, nil
}

// STKPush asks Daraja to push a payment prompt to the customer's
// phone. Amount is whole shillings; phone must already be normalized.
func (c *Client) STKPush(ctx context.Context, phone string, amount int, accountRef, description string) (*STKPushResponse, error) {
	ts := Timestamp(c.now())
	payload := STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   description,
	}

	var out STKPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryStatus asks Daraja for the outcome of an earlier push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	ts := Timestamp(c.now())
	payload := QueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out QueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daraja %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("daraja %s: read: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("daraja %s: status %d: %s", path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("daraja %s: decode: %w", path, err)
	}
	return nil
}
