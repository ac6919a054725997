package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/clock"
)

var paymentSuccessTmpl = template.Must(template.New("payment_success").Parse(`
<h1>Payment Confirmed</h1>
<p>Hi {{.Name}},</p>
<p>Thank you for your purchase! Your payment has been processed successfully.</p>

<div class="highlight">
    <strong>Order Details:</strong>
    <table style="width: 100%; margin-top: 10px;">
        <tr><td>Plan:</td><td><strong>{{.PlanName}}</strong></td></tr>
        <tr><td>Amount:</td><td><strong>&euro;{{.Amount}}</strong></td></tr>
        <tr><td>Credits Added:</td><td><strong>{{.Credits}}</strong></td></tr>
        <tr><td>Transaction ID:</td><td style="font-family: monospace; font-size: 12px;">{{.TransactionID}}</td></tr>
        <tr><td>Date:</td><td>{{.Date}}</td></tr>
    </table>
</div>

<p>Your credits have been added to your account and are ready to use.</p>
`))

// Mailer sends the transactional mails the billing flow produces. Failures
// are logged, never propagated: mail is courtesy, not state.
type Mailer struct {
	provider Provider
	log      *zap.Logger
	clock    clock.Clock
}

func NewMailer(provider Provider, log *zap.Logger, clk clock.Clock) *Mailer {
	return &Mailer{provider: provider, log: log.Named("email"), clock: clk}
}

func (m *Mailer) PaymentSuccess(ctx context.Context, to, name, planName string, amountCents, credits int64, transactionID string) {
	var body bytes.Buffer
	err := paymentSuccessTmpl.Execute(&body, map[string]any{
		"Name":          name,
		"PlanName":      planName,
		"Amount":        fmt.Sprintf("%.2f", float64(amountCents)/100),
		"Credits":       credits,
		"TransactionID": transactionID,
		"Date":          m.clock.Now().Format("02 Jan 2006, 15:04 UTC"),
	})
	if err != nil {
		m.log.Error("render payment mail", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("Payment Confirmed - %s Plan", planName)
	if err := m.provider.Send(ctx, []string{to}, subject, body.String()); err != nil {
		m.log.Warn("payment mail delivery failed", zap.String("to", to), zap.Error(err))
	}
}
