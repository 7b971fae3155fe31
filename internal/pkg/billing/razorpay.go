package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abbasshaikh29/TribeLab/internal/pkg/env"
)

const defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient is a thin client for the gateway endpoints we consume:
// fetch-subscription (pull reconciliation), create-customer, create-plan and
// create-subscription (checkout bootstrap).
type RazorpayClient struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewRazorpayClientFromEnv() *RazorpayClient {
	return &RazorpayClient{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			// Bounded so one stalled gateway call cannot block a whole
			// maintenance batch.
			Timeout: 10 * time.Second,
		},
	}
}

// FetchSubscription pulls the current gateway state of a subscription.
func (c *RazorpayClient) FetchSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}

	var out GatewaySubscription
	if err := c.doJSON(ctx, http.MethodGet, "/subscriptions/"+id, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("gateway returned subscription without id")
	}
	return &out, nil
}

type razorpayCustomer struct {
	ID string `json:"id"`
}

// CreateCustomer registers a gateway customer and returns its id.
func (c *RazorpayClient) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", errors.New("customer email is required")
	}

	body := map[string]any{
		"name":          strings.TrimSpace(name),
		"email":         strings.TrimSpace(email),
		"fail_existing": "0",
	}
	var out razorpayCustomer
	if err := c.doJSON(ctx, http.MethodPost, "/customers", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("gateway returned customer without id")
	}
	return out.ID, nil
}

type razorpayPlan struct {
	ID string `json:"id"`
}

// CreatePlan registers a recurring plan and returns its id. Amount is in the
// currency's smallest unit.
func (c *RazorpayClient) CreatePlan(ctx context.Context, name string, amount int64, currency, period string) (string, error) {
	if amount <= 0 {
		return "", errors.New("plan amount must be positive")
	}
	if period == "" {
		period = "monthly"
	}
	if currency == "" {
		currency = "INR"
	}

	body := map[string]any{
		"period":   period,
		"interval": 1,
		"item": map[string]any{
			"name":     strings.TrimSpace(name),
			"amount":   amount,
			"currency": currency,
		},
	}
	var out razorpayPlan
	if err := c.doJSON(ctx, http.MethodPost, "/plans", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("gateway returned plan without id")
	}
	return out.ID, nil
}

// CreateSubscription creates a gateway subscription on a plan for a customer.
func (c *RazorpayClient) CreateSubscription(ctx context.Context, planID, customerID string, totalCount int) (*GatewaySubscription, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, errors.New("plan id is required")
	}
	if totalCount <= 0 {
		totalCount = 12
	}

	body := map[string]any{
		"plan_id":         strings.TrimSpace(planID),
		"customer_id":     strings.TrimSpace(customerID),
		"total_count":     totalCount,
		"customer_notify": 1,
	}
	var out GatewaySubscription
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("gateway returned subscription without id")
	}
	return &out, nil
}

func (c *RazorpayClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if strings.TrimSpace(c.KeyID) == "" || strings.TrimSpace(c.KeySecret) == "" {
		return errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway request %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
