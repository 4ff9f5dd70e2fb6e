package ingress

import (
	"context"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

// FlagSource reports the persisted sandbox switch.
type FlagSource interface {
	SandboxEnabled(ctx context.Context) (bool, error)
}

// ResolveEnvironment picks the provider environment for a delivery:
// an explicit live_mode wins, then the payments_sandbox flag, then production.
// A flag lookup error is returned alongside the production fallback.
func ResolveEnvironment(ctx context.Context, liveMode *bool, flags FlagSource) (domain.Environment, error) {
	if liveMode != nil {
		if *liveMode {
			return domain.EnvironmentProduction, nil
		}
		return domain.EnvironmentSandbox, nil
	}
	if flags == nil {
		return domain.EnvironmentProduction, nil
	}
	enabled, err := flags.SandboxEnabled(ctx)
	if err != nil {
		return domain.EnvironmentProduction, err
	}
	if enabled {
		return domain.EnvironmentSandbox, nil
	}
	return domain.EnvironmentProduction, nil
}
