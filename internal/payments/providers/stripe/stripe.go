// Package stripe talks to the Stripe REST API directly: checkout session
// creation and retrieval, plus webhook signature verification against the
// t/v1 scheme.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/payments/domain"
)

type Client struct {
	cfg    config.StripeConfig
	log    *zap.Logger
	client *http.Client
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		cfg:    cfg.Stripe,
		log:    log.Named("payments.stripe"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.APIKey != ""
}

type sessionResponse struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p domain.CheckoutParams) (*domain.Checkout, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer_email", p.Email)
	form.Set("success_url", withQuery(p.SuccessURL, "session_id={CHECKOUT_SESSION_ID}&provider=stripe"))
	form.Set("cancel_url", p.CancelURL)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "eur")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.PriceCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("DigiForge %s Plan", p.PlanName))
	form.Set("line_items[0][price_data][product_data][description]", fmt.Sprintf("%d credits/month", p.Credits))
	form.Set("metadata[user_id]", p.UserID)
	form.Set("metadata[plan_id]", p.PlanID)
	form.Set("metadata[credits]", strconv.FormatInt(p.Credits, 10))
	form.Set("metadata[provider]", domain.ProviderStripe)

	var session sessionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &session); err != nil {
		return nil, err
	}

	return &domain.Checkout{
		URL:        session.URL,
		ProviderID: session.ID,
		Provider:   domain.ProviderStripe,
	}, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.SessionDetails, error) {
	if !c.Enabled() {
		return nil, domain.ErrProviderDisabled
	}

	var session sessionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}

	return &domain.SessionDetails{
		ID:            session.ID,
		PaymentStatus: session.PaymentStatus,
		CustomerEmail: session.CustomerEmail,
		AmountCents:   session.AmountTotal,
		Metadata:      session.Metadata,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		c.log.Warn("stripe call rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

// VerifyWebhook checks the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<payload>" with the webhook secret, compared against every v1
// candidate in constant time.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) error {
	if c.cfg.WebhookSecret == "" {
		return domain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(signatureHeader)
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string            `json:"id"`
			AmountTotal int64             `json:"amount_total"`
			Metadata    map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (c *Client) ParseEvent(payload []byte) (*domain.WebhookEventPayload, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, errors.New("missing event id")
	}
	return &domain.WebhookEventPayload{
		EventID:     event.ID,
		EventType:   event.Type,
		SessionID:   event.Data.Object.ID,
		AmountCents: event.Data.Object.AmountTotal,
		Metadata:    event.Data.Object.Metadata,
	}, nil
}

func withQuery(base, query string) string {
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid signature header")
	}
	return timestamp, signatures, nil
}
