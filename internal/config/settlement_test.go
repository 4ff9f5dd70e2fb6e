package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSettlementConfig(t *testing.T) {
	assert.NoError(t, validateSettlementConfig(DefaultSettlementConfig()))

	cfg := DefaultSettlementConfig()
	cfg.FoundersProgram.BonusMonths = -1
	assert.Error(t, validateSettlementConfig(cfg))

	cfg = DefaultSettlementConfig()
	cfg.BillingPeriods.AnnualMonths = 0
	assert.Error(t, validateSettlementConfig(cfg))
}

func TestSettlementConfigHolderFallsBackToDefaults(t *testing.T) {
	var holder *SettlementConfigHolder
	assert.Equal(t, DefaultSettlementConfig(), holder.Get())

	custom := DefaultSettlementConfig()
	custom.FoundersProgram.BonusMonths = 6
	assert.Equal(t, 6, NewStaticSettlementConfigHolder(custom).Get().FoundersProgram.BonusMonths)
}
