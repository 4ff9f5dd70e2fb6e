package domain

import "context"

// StatusResolver fetches the authoritative payment status from a provider.
type StatusResolver interface {
	Resolve(ctx context.Context, paymentID string, env Environment) (PaymentStatus, error)
}

type ResolverConfig struct {
	Provider string
	Config   map[string]any
}

type ResolverFactory interface {
	Provider() string
	NewResolver(cfg ResolverConfig) (StatusResolver, error)
}
