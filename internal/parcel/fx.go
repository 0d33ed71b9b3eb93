package parcel

import (
	"github.com/landgov/parcelledger/internal/parcel/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("parcel",
	fx.Provide(repository.Provide),
)
