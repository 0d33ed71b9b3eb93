package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/landgov/parcelledger/internal/billing"
	"github.com/landgov/parcelledger/internal/clock"
	"github.com/landgov/parcelledger/internal/config"
	"github.com/landgov/parcelledger/internal/maintenance"
	"github.com/landgov/parcelledger/internal/migration"
	"github.com/landgov/parcelledger/internal/observability"
	"github.com/landgov/parcelledger/internal/parcel"
	"github.com/landgov/parcelledger/internal/payment"
	"github.com/landgov/parcelledger/internal/penalty"
	"github.com/landgov/parcelledger/internal/rate"
	"github.com/landgov/parcelledger/internal/server"
	"github.com/landgov/parcelledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		parcel.Module,
		billing.Module,
		rate.Module,
		penalty.Module,
		payment.Module,
		maintenance.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
