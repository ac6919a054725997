package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/payments/domain"
)

func testClient(baseURL string, clk clock.Clock) *Client {
	cfg := config.Config{
		PayPal: config.PayPalConfig{
			Enabled:      true,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			BaseURL:      baseURL,
			Mode:         "sandbox",
		},
	}
	return NewClient(cfg, clk, zap.NewNop())
}

func tokenHandler(tokenCalls *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	}
}

func TestTokenCaching(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	var tokenCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://paypal.test/self", "rel": "self"},
				{"href": "https://paypal.test/approve/ORDER-1", "rel": "approve"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv.URL, clk)
	params := domain.CheckoutParams{
		UserID: "user-1", PlanID: "pro", PlanName: "Pro",
		PriceCents: 2999, Credits: 200,
		SuccessURL: "https://app.example.com/settings?payment=success",
		CancelURL:  "https://app.example.com/settings?payment=cancelled",
	}

	_, err := client.CreateOrder(context.Background(), params)
	require.NoError(t, err)
	_, err = client.CreateOrder(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&tokenCalls))

	// Within the slack window the cached token must not be reused.
	clk.Advance(3600*time.Second - 200*time.Second)
	_, err = client.CreateOrder(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&tokenCalls))
}

func TestCreateOrder(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	var tokenCalls int64
	var orderBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&orderBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://paypal.test/approve/ORDER-1", "rel": "approve"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv.URL, clk)
	checkout, err := client.CreateOrder(context.Background(), domain.CheckoutParams{
		UserID: "user-1", PlanID: "starter", PlanName: "Starter",
		PriceCents: 999, Credits: 50,
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/no",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDER-1", checkout.ProviderID)
	assert.Equal(t, domain.ProviderPayPal, checkout.Provider)
	assert.Equal(t, "https://paypal.test/approve/ORDER-1", checkout.URL)

	assert.Equal(t, "CAPTURE", orderBody["intent"])
	units := orderBody["purchase_units"].([]any)
	unit := units[0].(map[string]any)
	assert.Equal(t, "user-1|starter|50", unit["custom_id"])
	amount := unit["amount"].(map[string]any)
	assert.Equal(t, "EUR", amount["currency_code"])
	assert.Equal(t, "9.99", amount["value"])
}

func TestCaptureOrder(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	var tokenCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "COMPLETED",
			"payer":  map[string]any{"email_address": "buyer@example.com"},
			"purchase_units": []map[string]any{{
				"custom_id": "user-1|pro|200",
				"payments": map[string]any{
					"captures": []map[string]any{{
						"amount": map[string]string{"value": "29.99", "currency_code": "EUR"},
					}},
				},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv.URL, clk)
	result, err := client.CaptureOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)

	assert.Equal(t, "ORDER-1", result.OrderID)
	assert.Equal(t, "COMPLETED", result.Status)
	assert.Equal(t, "buyer@example.com", result.PayerEmail)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "pro", result.PlanID)
	assert.Equal(t, int64(200), result.Credits)
	assert.Equal(t, int64(2999), result.AmountCents)
}

func TestGetOrder(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	var tokenCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Empty(t, r.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "COMPLETED",
			"payer":  map[string]any{"email_address": "buyer@example.com"},
			"purchase_units": []map[string]any{{
				"custom_id": "user-1|starter|50",
				"payments": map[string]any{
					"captures": []map[string]any{{
						"amount": map[string]string{"value": "9.99", "currency_code": "EUR"},
					}},
				},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := testClient(srv.URL, clk)
	order, err := client.GetOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)

	assert.Equal(t, "ORDER-1", order.OrderID)
	assert.Equal(t, "COMPLETED", order.Status)
	assert.Equal(t, "buyer@example.com", order.PayerEmail)
	assert.Equal(t, "user-1", order.UserID)
	assert.Equal(t, "starter", order.PlanID)
	assert.Equal(t, int64(50), order.Credits)
	assert.Equal(t, int64(999), order.AmountCents)
}

func TestUnpackCustomID(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		userID  string
		planID  string
		credits int64
	}{
		{"full", "user-1|pro|200", "user-1", "pro", 200},
		{"missing credits", "user-1|pro", "user-1", "pro", 0},
		{"user only", "user-1", "user-1", "", 0},
		{"empty", "", "", "", 0},
		{"non numeric credits", "user-1|pro|lots", "user-1", "pro", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			userID, planID, credits := unpackCustomID(tc.in)
			assert.Equal(t, tc.userID, userID)
			assert.Equal(t, tc.planID, planID)
			assert.Equal(t, tc.credits, credits)
		})
	}
}

func TestDisabledProvider(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	client := NewClient(config.Config{}, clk, zap.NewNop())

	_, err := client.CreateOrder(context.Background(), domain.CheckoutParams{})
	assert.ErrorIs(t, err, domain.ErrProviderDisabled)
	_, err = client.GetOrder(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, domain.ErrProviderDisabled)
	_, err = client.CaptureOrder(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, domain.ErrProviderDisabled)
}

func TestTokenFailure(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := testClient(srv.URL, clk)
	_, err := client.CaptureOrder(context.Background(), "ORDER-1")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}
