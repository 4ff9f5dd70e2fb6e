package domain

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrCurrencyNotFound   = errors.New("currency_not_found")
	ErrNoPrimaryCurrency  = errors.New("no_primary_currency")
	ErrMultiplePrimary    = errors.New("multiple_primary_currencies")
	ErrMultipleSecondary  = errors.New("multiple_secondary_currencies")
	ErrPrimaryAsSecondary = errors.New("primary_cannot_be_secondary")
	ErrDemotePrimary      = errors.New("cannot_demote_primary_currency")
	ErrInvalidRate        = errors.New("invalid_exchange_rate")
	ErrInvalidGroupBy     = errors.New("invalid_group_by")
)
