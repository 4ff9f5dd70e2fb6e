package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/obrapay/internal/currency/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListCurrencies(ctx context.Context, db *gorm.DB, orgID string) ([]domain.Currency, error) {
	var items []domain.Currency
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, code, symbol, is_default, is_secondary, exchange_rate, updated_at
		 FROM currencies
		 WHERE organization_id = ?
		 ORDER BY code ASC`,
		orgID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) FindCurrency(ctx context.Context, db *gorm.DB, orgID, code string) (*domain.Currency, error) {
	var item domain.Currency
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, code, symbol, is_default, is_secondary, exchange_rate, updated_at
		 FROM currencies
		 WHERE organization_id = ? AND code = ?
		 LIMIT 1`,
		orgID,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertCurrency(ctx context.Context, db *gorm.DB, currency *domain.Currency) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO currencies (id, organization_id, code, symbol, is_default, is_secondary, exchange_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id, code) DO UPDATE
		 SET symbol = excluded.symbol,
			is_default = excluded.is_default,
			is_secondary = excluded.is_secondary,
			exchange_rate = excluded.exchange_rate,
			updated_at = excluded.updated_at`,
		currency.ID,
		currency.OrganizationID,
		currency.Code,
		currency.Symbol,
		currency.IsDefault,
		currency.IsSecondary,
		currency.ExchangeRate,
		currency.UpdatedAt,
	).Error
}

func (r *repo) ClearDefault(ctx context.Context, db *gorm.DB, orgID, exceptCode string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE currencies SET is_default = FALSE WHERE organization_id = ? AND code <> ? AND is_default = TRUE`,
		orgID,
		exceptCode,
	).Error
}

func (r *repo) ClearSecondary(ctx context.Context, db *gorm.DB, orgID, exceptCode string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE currencies SET is_secondary = FALSE WHERE organization_id = ? AND code <> ? AND is_secondary = TRUE`,
		orgID,
		exceptCode,
	).Error
}

func (r *repo) RebaseRates(ctx context.Context, db *gorm.DB, orgID string, pivot float64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE currencies SET exchange_rate = exchange_rate / ?, updated_at = ? WHERE organization_id = ?`,
		pivot,
		at,
		orgID,
	).Error
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, orgID string) ([]domain.FinancialRecord, error) {
	var items []domain.FinancialRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, project_id, category, description, amount,
			currency_code, exchange_rate, functional_amount, occurred_at
		 FROM financial_records
		 WHERE organization_id = ?
		 ORDER BY occurred_at ASC, id ASC`,
		orgID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.FinancialRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO financial_records (
			id, organization_id, project_id, category, description, amount,
			currency_code, exchange_rate, functional_amount, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrganizationID,
		record.ProjectID,
		record.Category,
		record.Description,
		record.Amount,
		strings.ToUpper(strings.TrimSpace(record.CurrencyCode)),
		record.ExchangeRate,
		record.FunctionalAmount,
		record.OccurredAt,
	).Error
}
