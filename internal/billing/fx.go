package billing

import (
	"github.com/landgov/parcelledger/internal/billing/repository"
	"github.com/landgov/parcelledger/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		repository.ProvideBillRepository,
		repository.ProvideOrderRepository,
		service.NewService,
	),
)
