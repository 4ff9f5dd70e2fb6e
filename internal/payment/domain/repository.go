package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	// InsertPayment reports false when the provider payment was already recorded.
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindPayment(ctx context.Context, db *gorm.DB, provider, providerPaymentID string) (*Payment, error)
	FindFeatureFlag(ctx context.Context, db *gorm.DB, key string) (*FeatureFlag, error)
}
