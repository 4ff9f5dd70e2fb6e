package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
)

// Registry resolves a webhook provider name to the factory that builds its
// status resolver. Names are matched case-insensitively.
type Registry struct {
	factories map[string]domain.ResolverFactory
}

func NewRegistry(factories ...domain.ResolverFactory) *Registry {
	registry := &Registry{factories: make(map[string]domain.ResolverFactory, len(factories))}
	for _, factory := range factories {
		registry.Register(factory)
	}
	return registry
}

// Register adds factory under its provider name, replacing any earlier one.
// Nil factories and blank names are ignored.
func (r *Registry) Register(factory domain.ResolverFactory) bool {
	if r == nil || factory == nil {
		return false
	}
	key := providerKey(factory.Provider())
	if key == "" {
		return false
	}
	r.factories[key] = factory
	return true
}

func (r *Registry) ProviderExists(provider string) bool {
	_, ok := r.lookup(provider)
	return ok
}

// Providers lists registered names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) NewResolver(provider string, cfg map[string]any) (domain.StatusResolver, error) {
	factory, ok := r.lookup(provider)
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewResolver(domain.ResolverConfig{Provider: providerKey(provider), Config: cfg})
}

func (r *Registry) lookup(provider string) (domain.ResolverFactory, bool) {
	if r == nil {
		return nil, false
	}
	factory, ok := r.factories[providerKey(provider)]
	return factory, ok
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// ProviderSettings maps a provider name to the config handed to its resolver factory.
type ProviderSettings map[string]map[string]any

func (s ProviderSettings) For(provider string) map[string]any {
	if s == nil {
		return nil
	}
	return s[providerKey(provider)]
}
