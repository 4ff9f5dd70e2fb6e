package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/obrapay/internal/currency/convert"
	"gorm.io/gorm"
)

type Repository interface {
	ListCurrencies(ctx context.Context, db *gorm.DB, orgID string) ([]Currency, error)
	FindCurrency(ctx context.Context, db *gorm.DB, orgID, code string) (*Currency, error)
	UpsertCurrency(ctx context.Context, db *gorm.DB, currency *Currency) error
	// ClearDefault and ClearSecondary unset the flag on every row of the
	// organization except exceptCode.
	ClearDefault(ctx context.Context, db *gorm.DB, orgID, exceptCode string) error
	ClearSecondary(ctx context.Context, db *gorm.DB, orgID, exceptCode string) error
	// RebaseRates divides every rate of the organization by pivot, the old rate
	// of the currency that becomes primary.
	RebaseRates(ctx context.Context, db *gorm.DB, orgID string, pivot float64, at time.Time) error
	ListRecords(ctx context.Context, db *gorm.DB, orgID string) ([]FinancialRecord, error)
	InsertRecord(ctx context.Context, db *gorm.DB, record *FinancialRecord) error
}

// RateCache holds live exchange rates per organization.
type RateCache interface {
	Rates(ctx context.Context, orgID string) (map[string]float64, error)
	SetRate(ctx context.Context, orgID, code string, rate float64) error
}

type Service interface {
	Book(ctx context.Context, orgID string, preference convert.Preference) (convert.Book, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Currency, error)
	SetLiveRate(ctx context.Context, orgID, code string, rate float64) error
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
}
