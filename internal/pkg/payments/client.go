package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hirewireapp/hirewire/internal/pkg/env"
)

const defaultProviderAPIBaseURL = "https://api.paygrid.io/v1"

// ProviderClient is the outbound surface of the payment processor. The HTTP
// implementation lives in Client; tests substitute a stub.
type ProviderClient interface {
	CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, checkoutSessionID string, amountCents int64, reason string) (*Refund, error)
}

// CheckoutSessionParams describes a hosted checkout to create. Metadata is
// echoed back on the webhook and carries our correlation ids.
type CheckoutSessionParams struct {
	Mode       string // "payment" or "subscription"
	PriceRef   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider's created session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Refund is the provider's refund record.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client talks to the payment processor's REST API.
type Client struct {
	APIKey     string
	APIBaseURL string
	SuccessURL string
	CancelURL  string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from environment configuration. The API
// key is a startup requirement checked in main; here an empty key only fails
// on first use so tests can construct clients freely.
func NewClientFromEnv() *Client {
	base := strings.TrimRight(env.GetEnv("PAYMENT_API_BASE_URL", defaultProviderAPIBaseURL), "/")
	publicBase := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")

	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("PAYMENT_API_KEY", "")),
		APIBaseURL: base,
		SuccessURL: env.GetEnv("PAYMENT_SUCCESS_URL", publicBase+"/billing/success"),
		CancelURL:  env.GetEnv("PAYMENT_CANCEL_URL", publicBase+"/billing/cancel"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PAYMENT_API_KEY is not configured")
	}
	if p.PriceRef == "" {
		return nil, errors.New("price ref is required")
	}

	form := url.Values{}
	form.Set("mode", p.Mode)
	form.Set("price", p.PriceRef)
	form.Set("success_url", firstNonEmpty(p.SuccessURL, c.SuccessURL))
	form.Set("cancel_url", firstNonEmpty(p.CancelURL, c.CancelURL))
	for key, value := range p.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	var session CheckoutSession
	if err := c.postForm(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, errors.New("provider returned a checkout session without an id")
	}
	return &session, nil
}

// CreateRefund refunds a completed payment by its checkout session id.
func (c *Client) CreateRefund(ctx context.Context, checkoutSessionID string, amountCents int64, reason string) (*Refund, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PAYMENT_API_KEY is not configured")
	}
	if checkoutSessionID == "" {
		return nil, errors.New("checkout session id is required")
	}

	form := url.Values{}
	form.Set("checkout_session", checkoutSessionID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	if reason != "" {
		form.Set("reason", reason)
	}

	var refund Refund
	if err := c.postForm(ctx, "/refunds", form, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payment provider returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
