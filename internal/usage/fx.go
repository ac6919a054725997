package usage

import (
	"go.uber.org/fx"

	"github.com/noxloop/digiforge/internal/usage/repository"
	"github.com/noxloop/digiforge/internal/usage/service"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
