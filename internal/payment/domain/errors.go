package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMissingPaymentID = errors.New("missing_payment_id")
	ErrProviderLookup   = errors.New("provider_lookup_failed")
	ErrPaymentNotFound  = errors.New("payment_not_found")
	ErrMissingToken     = errors.New("missing_access_token")
)
