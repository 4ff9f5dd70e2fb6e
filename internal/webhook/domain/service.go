package domain

import (
	"context"

	"github.com/smallbiznis/obrapay/internal/webhook/ingress"
)

// Diagnostic codes returned in Result.Error. None of them turn into an HTTP error.
const (
	ErrCodeProviderNotFound      = "provider_not_found"
	ErrCodeMissingPaymentID      = "missing_payment_id"
	ErrCodeInvalidSignature      = "invalid_signature"
	ErrCodeProviderNotConfigured = "provider_not_configured"
	ErrCodeProviderLookupFailed  = "provider_lookup_failed"
	ErrCodePaymentRecordFailed   = "payment_record_failed"
)

// Result is what the webhook endpoint reports back to the provider.
type Result struct {
	Skipped     bool     `json:"skipped,omitempty"`
	Error       string   `json:"error,omitempty"`
	Settled     bool     `json:"-"`
	FailedSteps []string `json:"-"`
}

type Service interface {
	Ingest(ctx context.Context, provider string, req ingress.Request) Result
}
