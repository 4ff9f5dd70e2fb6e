package domain

import (
	"fmt"
	"strings"
)

// ProductType is the closed set of things a payment can buy.
type ProductType uint8

const (
	ProductCourse ProductType = iota + 1
	ProductSubscription
	ProductUpgrade
	ProductSeats
)

func (p ProductType) String() string {
	switch p {
	case ProductCourse:
		return "course"
	case ProductSubscription:
		return "subscription"
	case ProductUpgrade:
		return "upgrade"
	case ProductSeats:
		return "seats"
	}
	return "unknown"
}

// HasBillingPeriod reports whether the product creates a subscription.
func (p ProductType) HasBillingPeriod() bool {
	return p == ProductSubscription || p == ProductUpgrade
}

func ParseProductType(raw string) (ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "course":
		return ProductCourse, nil
	case "subscription":
		return ProductSubscription, nil
	case "upgrade":
		return ProductUpgrade, nil
	case "seats":
		return ProductSeats, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProductType, raw)
}

type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

// ParseBillingPeriod defaults to monthly when the payment carries no period.
func ParseBillingPeriod(raw string) (BillingPeriod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "monthly", "month":
		return BillingMonthly, nil
	case "annual", "yearly", "year":
		return BillingAnnual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBillingPeriod, raw)
}
