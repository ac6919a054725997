package generation

import (
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/generation/service"
	productrepo "github.com/noxloop/digiforge/internal/product/repository"
)

var Module = fx.Module("generation",
	fx.Provide(
		productrepo.New,
		service.NewService,
	),
)
