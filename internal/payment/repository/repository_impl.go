package repository

import (
	"context"

	"github.com/smallbiznis/obrapay/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, order_id, format,
			environment, raw_headers, raw_query, raw_payload, status, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.OrderID,
		event.Format,
		event.Environment,
		event.RawHeaders,
		event.RawQuery,
		event.RawPayload,
		event.Status,
		event.ReceivedAt,
	).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, provider, provider_payment_id, user_id, organization_id,
			product_type, amount, currency_code, status, environment, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_payment_id) DO NOTHING`,
		payment.ID,
		payment.Provider,
		payment.ProviderPaymentID,
		payment.UserID,
		payment.OrganizationID,
		payment.ProductType,
		payment.Amount,
		payment.CurrencyCode,
		payment.Status,
		payment.Environment,
		payment.Metadata,
		payment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, provider, providerPaymentID string) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_payment_id, user_id, organization_id, product_type,
			amount, currency_code, status, environment, metadata, created_at
		 FROM payments
		 WHERE provider = ? AND provider_payment_id = ?
		 LIMIT 1`,
		provider,
		providerPaymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindFeatureFlag(ctx context.Context, db *gorm.DB, key string) (*domain.FeatureFlag, error) {
	var item domain.FeatureFlag
	err := db.WithContext(ctx).Raw(
		`SELECT key, enabled FROM feature_flags WHERE key = ? LIMIT 1`,
		key,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Key == "" {
		return nil, nil
	}
	return &item, nil
}
