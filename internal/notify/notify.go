// Package notify pushes domain events to an external automation webhook.
// Delivery is best effort: failures are logged and never break the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
)

const (
	EventCampaignCreated  = "campaign_created"
	EventExportGenerated  = "export_generated"
	EventPaymentSucceeded = "payment_succeeded"
)

type Status struct {
	Enabled    bool `json:"enabled"`
	Configured bool `json:"configured"`
}

type Notifier interface {
	// Send posts one event. It reports delivery success but never errors.
	Send(ctx context.Context, eventType string, payload map[string]any) bool

	CampaignCreated(ctx context.Context, campaignID, workspaceID, userID, channel string)
	ExportGenerated(ctx context.Context, exportID, workspaceID, userID, exportType string, sizeBytes int)
	PaymentSucceeded(ctx context.Context, paymentID, userID string, amountCents int64, currency, planID string)
	Status() Status
}

type event struct {
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

type webhookNotifier struct {
	cfg    config.NotifyConfig
	log    *zap.Logger
	clock  clock.Clock
	client *http.Client
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
}

func NewNotifier(p Params) Notifier {
	timeout := time.Duration(p.Config.Notify.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &webhookNotifier{
		cfg:    p.Config.Notify,
		log:    p.Log.Named("notify"),
		clock:  p.Clock,
		client: &http.Client{Timeout: timeout},
	}
	if n.cfg.Enabled && n.cfg.WebhookURL != "" {
		n.log.Info("event webhooks enabled", zap.String("url", n.cfg.WebhookURL))
	} else {
		n.log.Info("event webhooks disabled")
	}
	return n
}

func (n *webhookNotifier) Send(ctx context.Context, eventType string, payload map[string]any) bool {
	if !n.cfg.Enabled || n.cfg.WebhookURL == "" {
		return false
	}

	body, err := json.Marshal(event{
		EventType: eventType,
		Timestamp: n.clock.Now().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return false
	}

	attempts := n.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if n.post(ctx, eventType, body, attempt, attempts) {
			return true
		}
		if attempt < attempts {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}

func (n *webhookNotifier) post(ctx context.Context, eventType string, body []byte, attempt, attempts int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("event delivery failed",
			zap.String("event_type", eventType),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		n.log.Info("event delivered", zap.String("event_type", eventType))
		return true
	default:
		n.log.Warn("event rejected",
			zap.String("event_type", eventType),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}
}

func (n *webhookNotifier) CampaignCreated(ctx context.Context, campaignID, workspaceID, userID, channel string) {
	n.Send(ctx, EventCampaignCreated, map[string]any{
		"campaign_id":   campaignID,
		"workspace_id":  workspaceID,
		"user_id":       userID,
		"campaign_type": channel,
	})
}

func (n *webhookNotifier) ExportGenerated(ctx context.Context, exportID, workspaceID, userID, exportType string, sizeBytes int) {
	n.Send(ctx, EventExportGenerated, map[string]any{
		"export_id":       exportID,
		"workspace_id":    workspaceID,
		"user_id":         userID,
		"export_type":     exportType,
		"file_size_bytes": sizeBytes,
	})
}

func (n *webhookNotifier) PaymentSucceeded(ctx context.Context, paymentID, userID string, amountCents int64, currency, planID string) {
	n.Send(ctx, EventPaymentSucceeded, map[string]any{
		"payment_id": paymentID,
		"user_id":    userID,
		"amount":     amountCents,
		"currency":   currency,
		"plan":       planID,
	})
}

func (n *webhookNotifier) Status() Status {
	return Status{
		Enabled:    n.cfg.Enabled,
		Configured: n.cfg.Enabled && n.cfg.WebhookURL != "",
	}
}

var Module = fx.Module("notify",
	fx.Provide(NewNotifier),
)
