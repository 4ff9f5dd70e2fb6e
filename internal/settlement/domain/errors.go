package domain

import "errors"

var (
	ErrUnknownProductType    = errors.New("unknown_product_type")
	ErrInvalidBillingPeriod  = errors.New("invalid_billing_period")
	ErrInvalidRequest        = errors.New("invalid_settlement_request")
	ErrOrganizationNotFound  = errors.New("organization_not_found")
	ErrCouponNotFound        = errors.New("coupon_not_found")
	ErrNoSubscriptionCreated = errors.New("no_subscription_created")
)
