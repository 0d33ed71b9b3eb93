package payment

import (
	"github.com/landgov/parcelledger/internal/payment/repository"
	"github.com/landgov/parcelledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		service.NewService,
		func(s *service.Service) service.Processor { return s },
	),
)
