// Package paypal implements order checkout against the PayPal Orders v2 API
// with a cached client-credentials token.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/payments/domain"
)

// tokenSlack renews the access token well before PayPal expires it.
const tokenSlack = 300 * time.Second

type Client struct {
	cfg    config.PayPalConfig
	log    *zap.Logger
	clock  clock.Clock
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.Config, clk clock.Clock, log *zap.Logger) *Client {
	return &Client{
		cfg:    cfg.PayPal,
		log:    log.Named("payments.paypal"),
		clock:  clk,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrProviderUnavailable)
	}

	c.accessToken = body.AccessToken
	c.tokenExpiry = c.clock.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenSlack)
	return c.accessToken, nil
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	Payer struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []struct {
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (c *Client) CreateOrder(ctx context.Context, p domain.CheckoutParams) (*domain.Checkout, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]any{
				"currency_code": "EUR",
				"value":         fmt.Sprintf("%.2f", float64(p.PriceCents)/100),
			},
			"description": fmt.Sprintf("DigiForge %s Plan - %d credits", p.PlanName, p.Credits),
			"custom_id":   fmt.Sprintf("%s|%s|%d", p.UserID, p.PlanID, p.Credits),
		}},
		"application_context": map[string]any{
			"return_url": p.SuccessURL,
			"cancel_url": p.CancelURL,
			"brand_name": "DigiForge",
		},
	}

	var order orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("%w: no approve link in order", domain.ErrProviderUnavailable)
	}

	return &domain.Checkout{
		URL:        approveURL,
		ProviderID: order.ID,
		Provider:   domain.ProviderPayPal,
	}, nil
}

// GetOrder retrieves an order without changing its state. A captured order
// reports status COMPLETED along with the capture amount.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}

	var order orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}

	details := &domain.OrderDetails{
		OrderID:    order.ID,
		Status:     order.Status,
		PayerEmail: order.Payer.EmailAddress,
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		details.UserID, details.PlanID, details.Credits = unpackCustomID(unit.CustomID)
		if len(unit.Payments.Captures) > 0 {
			details.AmountCents = parseAmountCents(unit.Payments.Captures[0].Amount.Value)
		}
	}
	return details, nil
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}

	var order orderResponse
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{}, &order); err != nil {
		return nil, err
	}

	result := &domain.CaptureResult{
		OrderID:    order.ID,
		Status:     order.Status,
		PayerEmail: order.Payer.EmailAddress,
	}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.UserID, result.PlanID, result.Credits = unpackCustomID(unit.CustomID)
		if len(unit.Payments.Captures) > 0 {
			result.AmountCents = parseAmountCents(unit.Payments.Captures[0].Amount.Value)
		}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("paypal call rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

// unpackCustomID splits "user|plan|credits". Orders created by older builds
// may carry fewer segments, so missing parts fall back to zero values.
func unpackCustomID(customID string) (userID, planID string, credits int64) {
	parts := strings.Split(customID, "|")
	if len(parts) > 0 {
		userID = parts[0]
	}
	if len(parts) > 1 {
		planID = parts[1]
	}
	if len(parts) > 2 {
		credits, _ = strconv.ParseInt(parts[2], 10, 64)
	}
	return userID, planID, credits
}

func parseAmountCents(value string) int64 {
	amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return int64(amount*100 + 0.5)
}
