package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/obrapay/internal/currency/aggregate"
	"github.com/smallbiznis/obrapay/internal/currency/convert"
)

// Currency is one configured currency of an organization. ExchangeRate is
// units of primary currency per one unit of this currency.
type Currency struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrganizationID string       `json:"organization_id"`
	Code           string       `json:"code"`
	Symbol         string       `json:"symbol"`
	IsDefault      bool         `json:"is_default"`
	IsSecondary    bool         `json:"is_secondary"`
	ExchangeRate   float64      `json:"exchange_rate"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Currency) TableName() string { return "currencies" }

func (c Currency) Convert() convert.Currency {
	return convert.Currency{Code: c.Code, Symbol: c.Symbol, Rate: c.ExchangeRate}
}

type FinancialRecord struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrganizationID   string       `json:"organization_id"`
	ProjectID        string       `json:"project_id"`
	Category         string       `json:"category"`
	Description      string       `json:"description"`
	Amount           float64      `json:"amount"`
	CurrencyCode     string       `json:"currency_code"`
	ExchangeRate     *float64     `json:"exchange_rate"`
	FunctionalAmount *float64     `json:"functional_amount"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

func (FinancialRecord) TableName() string { return "financial_records" }

func (r FinancialRecord) Money() convert.Money {
	return convert.Money{
		Amount:           r.Amount,
		CurrencyCode:     r.CurrencyCode,
		Rate:             r.ExchangeRate,
		FunctionalAmount: r.FunctionalAmount,
	}
}

type UpsertRequest struct {
	OrganizationID string  `json:"-" validate:"required"`
	Code           string  `json:"-" validate:"required,len=3,alpha"`
	Symbol         string  `json:"symbol" validate:"max=8"`
	IsDefault      bool    `json:"is_default"`
	IsSecondary    bool    `json:"is_secondary"`
	ExchangeRate   float64 `json:"exchange_rate" validate:"gte=0"`
}

type GroupBy string

const (
	GroupByNone     GroupBy = ""
	GroupByCategory GroupBy = "category"
	GroupByProject  GroupBy = "project"
	GroupByCurrency GroupBy = "currency"
)

type SummaryRequest struct {
	OrganizationID string
	Mode           string
	Preference     string
	GroupBy        string
}

// SummaryLine is one total with its display text.
type SummaryLine struct {
	aggregate.Total
	Formatted string `json:"formatted"`
}

type GroupTotal struct {
	Key    string        `json:"key"`
	Totals []SummaryLine `json:"totals"`
}

type Summary struct {
	Mode       convert.Mode       `json:"mode"`
	Preference convert.Preference `json:"preference"`
	GroupBy    GroupBy            `json:"group_by,omitempty"`
	Totals     []SummaryLine      `json:"totals"`
	Groups     []GroupTotal       `json:"groups,omitempty"`
}

func ParseGroupBy(raw string) (GroupBy, error) {
	switch GroupBy(strings.ToLower(strings.TrimSpace(raw))) {
	case GroupByNone:
		return GroupByNone, nil
	case GroupByCategory:
		return GroupByCategory, nil
	case GroupByProject:
		return GroupByProject, nil
	case GroupByCurrency:
		return GroupByCurrency, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGroupBy, raw)
}

// GroupKey returns the value of the record the summary is grouped by.
func (g GroupBy) GroupKey(r FinancialRecord) string {
	switch g {
	case GroupByCategory:
		return strings.TrimSpace(r.Category)
	case GroupByProject:
		return strings.TrimSpace(r.ProjectID)
	case GroupByCurrency:
		return convert.NormalizeCode(r.CurrencyCode)
	}
	return ""
}
