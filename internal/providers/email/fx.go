package email

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/clock"
	"github.com/noxloop/digiforge/internal/config"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(NewMailerFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	if !cfg.Mail.Enabled {
		return NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
	})
}

func NewMailerFromConfig(provider Provider, log *zap.Logger, clk clock.Clock) *Mailer {
	return NewMailer(provider, log, clk)
}
