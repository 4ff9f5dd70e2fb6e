package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/currency"
	"github.com/smallbiznis/obrapay/internal/events"
	"github.com/smallbiznis/obrapay/internal/migration"
	"github.com/smallbiznis/obrapay/internal/observability"
	"github.com/smallbiznis/obrapay/internal/payment"
	"github.com/smallbiznis/obrapay/internal/seed"
	"github.com/smallbiznis/obrapay/internal/server"
	"github.com/smallbiznis/obrapay/internal/settlement"
	"github.com/smallbiznis/obrapay/internal/webhook"
	"github.com/smallbiznis/obrapay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,
		clock.Module,
		events.Module,

		// Functional Domains
		payment.Module,
		settlement.Module,
		webhook.Module,
		currency.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
