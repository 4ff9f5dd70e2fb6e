package mercadopago

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) domain.StatusResolver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resolver, err := NewFactory().NewResolver(domain.ResolverConfig{
		Provider: domain.ProviderMercadoPago,
		Config: map[string]any{
			ConfigAccessToken:        "prod-token",
			ConfigSandboxAccessToken: "sandbox-token",
			ConfigBaseURL:            srv.URL,
			ConfigTimeout:            500 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return resolver
}

func TestResolveApprovedPayment(t *testing.T) {
	var gotAuth, gotPath string
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 123456,
			"status": "approved",
			"transaction_amount": 149.9,
			"currency_id": "brl",
			"metadata": {"product_type": "seats", "seats_quantity": 3, "organization_id": "org_1"}
		}`))
	})

	status, err := resolver.Resolve(context.Background(), "123456", domain.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sandbox-token", gotAuth)
	assert.Equal(t, "/v1/payments/123456", gotPath)
	assert.True(t, status.IsApproved())
	assert.Equal(t, "123456", status.ID)
	assert.Equal(t, 149.9, status.Amount)
	assert.Equal(t, "BRL", status.CurrencyCode)
	assert.Equal(t, "3", status.Meta(domain.MetaSeatsQuantity))
	assert.Equal(t, "seats", status.Meta(domain.MetaProductType))
}

func TestResolveUsesProductionTokenByDefault(t *testing.T) {
	var gotAuth string
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id": 1, "status": "pending"}`))
	})

	status, err := resolver.Resolve(context.Background(), "1", domain.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, "Bearer prod-token", gotAuth)
	assert.False(t, status.IsApproved())
}

func TestResolveProviderErrors(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/payments/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid access token"}`))
	})

	_, err := resolver.Resolve(context.Background(), "missing", domain.EnvironmentProduction)
	assert.True(t, errors.Is(err, domain.ErrPaymentNotFound))

	_, err = resolver.Resolve(context.Background(), "42", domain.EnvironmentProduction)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderLookup))
	assert.Contains(t, err.Error(), "invalid access token")

	_, err = resolver.Resolve(context.Background(), " ", domain.EnvironmentProduction)
	assert.True(t, errors.Is(err, domain.ErrMissingPaymentID))
}

func TestResolveTimesOut(t *testing.T) {
	resolver := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := resolver.Resolve(context.Background(), "7", domain.EnvironmentProduction)
	assert.True(t, errors.Is(err, domain.ErrProviderLookup))
}

func TestFactoryRequiresAToken(t *testing.T) {
	_, err := NewFactory().NewResolver(domain.ResolverConfig{Config: map[string]any{}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	resolver, err := NewFactory().NewResolver(domain.ResolverConfig{Config: map[string]any{ConfigAccessToken: "prod"}})
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), "1", domain.EnvironmentSandbox)
	assert.ErrorIs(t, err, domain.ErrMissingToken)
}
