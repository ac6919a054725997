package payments

import (
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/payments/domain"
	"github.com/noxloop/digiforge/internal/payments/providers/paypal"
	"github.com/noxloop/digiforge/internal/payments/providers/stripe"
	"github.com/noxloop/digiforge/internal/payments/repository"
	"github.com/noxloop/digiforge/internal/payments/service"
)

var Module = fx.Module("payments",
	fx.Provide(
		repository.New,
		fx.Annotate(stripe.NewClient, fx.As(new(domain.StripeClient))),
		fx.Annotate(paypal.NewClient, fx.As(new(domain.PayPalClient))),
		service.NewService,
	),
)
