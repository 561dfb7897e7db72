package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/techtuto2024/techtuto-backend/internal/apperr"
)

const DefaultBaseURL = "https://api.razorpay.com"

type OrderRequest struct {
	Amount   int64             `json:"amount" validate:"gt=0"`
	Currency string            `json:"currency" validate:"required,len=3"`
	Receipt  string            `json:"receipt,omitempty" validate:"max=40"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

// Client talks to the Razorpay orders API and checks checkout callbacks.
type Client struct {
	cfg      Config
	http     *http.Client
	validate *validator.Validate
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, validate: validator.New()}
}

type orderResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateOrder(ctx context.Context, order OrderRequest) (string, error) {
	order.Currency = strings.ToUpper(strings.TrimSpace(order.Currency))
	if err := c.validate.Struct(order); err != nil {
		return "", apperr.Validation(apperr.CodeInvalidRequest, "Amount and a 3 letter currency are required")
	}
	if c.cfg.KeyID == "" || c.cfg.KeySecret == "" {
		return "", gatewayError(fmt.Errorf("razorpay credentials not configured"))
	}
	body, err := json.Marshal(order)
	if err != nil {
		return "", gatewayError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", gatewayError(err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", gatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", gatewayError(fmt.Errorf("razorpay returned status %d: %s", resp.StatusCode, respBody))
	}
	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", gatewayError(fmt.Errorf("decode order: %w", err))
	}
	if out.ID == "" {
		return "", gatewayError(fmt.Errorf("razorpay order without id"))
	}
	return out.ID, nil
}

// VerifyCallback checks the checkout signature, a hex HMAC-SHA256 of
// "order_id|payment_id" keyed with the account secret.
func (c *Client) VerifyCallback(orderID, paymentID, signature string) bool {
	if c.cfg.KeySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(c.cfg.KeySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func gatewayError(cause error) error {
	return apperr.Wrap(apperr.KindInternal, apperr.CodeGatewayError, "Error creating order", cause)
}
