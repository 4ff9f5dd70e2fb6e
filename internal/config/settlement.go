package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SettlementConfig tunes the entitlement side effects of a settled payment.
type SettlementConfig struct {
	FoundersProgram FoundersProgramConfig `mapstructure:"foundersProgram"`
	BillingPeriods  BillingPeriodsConfig  `mapstructure:"billingPeriods"`
}

type FoundersProgramConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	BonusMonths int  `mapstructure:"bonusMonths"`
}

// BillingPeriodsConfig is the length, in months, of each billing period.
type BillingPeriodsConfig struct {
	MonthlyMonths int `mapstructure:"monthlyMonths"`
	AnnualMonths  int `mapstructure:"annualMonths"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		FoundersProgram: FoundersProgramConfig{
			Enabled:     true,
			BonusMonths: 3,
		},
		BillingPeriods: BillingPeriodsConfig{
			MonthlyMonths: 1,
			AnnualMonths:  12,
		},
	}
}

type SettlementConfigHolder struct {
	current atomic.Value // holds SettlementConfig
}

// NewStaticSettlementConfigHolder wraps a fixed config, mostly for tests and tools.
func NewStaticSettlementConfigHolder(cfg SettlementConfig) *SettlementConfigHolder {
	holder := &SettlementConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSettlementConfigHolder(log *zap.Logger) (*SettlementConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.settlement")

	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/obrapay/config")
	v.AddConfigPath("/etc/obrapay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OBRAPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.foundersProgram.enabled", defaults.FoundersProgram.Enabled)
	v.SetDefault("settlement.foundersProgram.bonusMonths", defaults.FoundersProgram.BonusMonths)
	v.SetDefault("settlement.billingPeriods.monthlyMonths", defaults.BillingPeriods.MonthlyMonths)
	v.SetDefault("settlement.billingPeriods.annualMonths", defaults.BillingPeriods.AnnualMonths)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg SettlementConfig
	if err := v.UnmarshalKey("settlement", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSettlementConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SettlementConfig
		if err := v.UnmarshalKey("settlement", &updated); err != nil {
			log.Warn("settlement config reload failed", zap.Error(err))
			return
		}
		if err := validateSettlementConfig(updated); err != nil {
			log.Warn("invalid settlement config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settlement config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SettlementConfigHolder) Get() SettlementConfig {
	if h == nil {
		return DefaultSettlementConfig()
	}
	cfg, ok := h.current.Load().(SettlementConfig)
	if !ok {
		return DefaultSettlementConfig()
	}
	return cfg
}

func validateSettlementConfig(cfg SettlementConfig) error {
	if cfg.FoundersProgram.BonusMonths < 0 {
		return errors.New("settlement.foundersProgram.bonusMonths cannot be negative")
	}
	if cfg.BillingPeriods.MonthlyMonths <= 0 {
		return errors.New("settlement.billingPeriods.monthlyMonths must be positive")
	}
	if cfg.BillingPeriods.AnnualMonths <= 0 {
		return errors.New("settlement.billingPeriods.annualMonths must be positive")
	}
	return nil
}
