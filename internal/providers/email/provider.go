package email

import "context"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider is wired when email is disabled.
type NoOpProvider struct{}

func (NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
