package seed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/config"
	paymentdomain "github.com/smallbiznis/obrapay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultOrgID int64 = 1

const (
	defaultOrgName         = "Main"
	defaultPrimaryCurrency = "ARS"
	defaultPrimarySymbol   = "$"
)

var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if !cfg.SeedDefaults {
			return nil
		}
		ctx := context.Background()
		if err := EnsureFeatureFlags(ctx, db); err != nil {
			return err
		}
		if cfg.IsProduction() {
			return nil
		}
		log.Info("seeding default organization", zap.Int64("organization_id", defaultOrgID))
		return EnsureMainOrg(ctx, db, node)
	}),
)

// EnsureFeatureFlags creates the known feature flags in their disabled state.
// Existing rows keep their value.
func EnsureFeatureFlags(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO feature_flags (key, enabled, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		paymentdomain.FlagPaymentsSandbox, false, time.Now().UTC(),
	).Error
}

// EnsureMainOrg seeds the default organization and its primary currency.
func EnsureMainOrg(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	now := time.Now().UTC()
	orgKey := strconv.FormatInt(defaultOrgID, 10)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO organizations (id, name, extra_seats, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			defaultOrgID, defaultOrgName, now, now,
		).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Raw(
			`SELECT COUNT(1) FROM currencies WHERE organization_id = ?`,
			orgKey,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		return tx.Exec(
			`INSERT INTO currencies (id, organization_id, code, symbol, is_default, is_secondary, exchange_rate, updated_at)
			VALUES (?, ?, ?, ?, TRUE, FALSE, 1, ?)`,
			node.Generate().Int64(), orgKey, defaultPrimaryCurrency, defaultPrimarySymbol, now,
		).Error
	})
}
