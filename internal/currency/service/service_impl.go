package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/obrapay/internal/clock"
	"github.com/smallbiznis/obrapay/internal/currency/aggregate"
	"github.com/smallbiznis/obrapay/internal/currency/convert"
	"github.com/smallbiznis/obrapay/internal/currency/domain"
	"github.com/smallbiznis/obrapay/internal/observability/logger"
	"github.com/smallbiznis/obrapay/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Rates      domain.RateCache
	Clock      clock.Clock
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	rates      domain.RateCache
	clock      clock.Clock
	obsMetrics *metrics.Metrics
	validate   *validator.Validate
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("currency.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		rates:      p.Rates,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
		validate:   validator.New(),
	}
}

// Book loads the organization's currencies and overlays live rates. A rate
// cache failure is logged and the static rates are used.
func (s *Service) Book(ctx context.Context, orgID string, preference convert.Preference) (convert.Book, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return convert.Book{}, domain.ErrInvalidRequest
	}

	currencies, err := s.repo.ListCurrencies(ctx, s.db, orgID)
	if err != nil {
		return convert.Book{}, err
	}

	book := convert.Book{
		Currencies: make(map[string]convert.Currency, len(currencies)),
		Current:    map[string]float64{},
		Preference: preference,
	}
	var primaries, secondaries []domain.Currency
	for _, c := range currencies {
		book.Currencies[convert.NormalizeCode(c.Code)] = c.Convert()
		if c.IsDefault {
			primaries = append(primaries, c)
		}
		if c.IsSecondary {
			secondaries = append(secondaries, c)
		}
	}
	switch {
	case len(primaries) == 0:
		return convert.Book{}, domain.ErrNoPrimaryCurrency
	case len(primaries) > 1:
		return convert.Book{}, domain.ErrMultiplePrimary
	case len(secondaries) > 1:
		return convert.Book{}, domain.ErrMultipleSecondary
	}
	book.Primary = primaries[0].Convert()
	if len(secondaries) == 1 {
		secondary := secondaries[0].Convert()
		book.Secondary = &secondary
	}

	if s.rates != nil {
		live, err := s.rates.Rates(ctx, orgID)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("live rate lookup failed, using static rates",
				zap.String("organization_id", orgID),
				zap.Error(err),
			)
		}
		for code, rate := range live {
			if convert.ValidRate(rate) {
				book.Current[convert.NormalizeCode(code)] = rate
			}
		}
	}
	return book, nil
}

// Upsert creates or updates a currency row. Promoting a row to primary demotes
// the previous primary and rebases every stored rate onto the new primary using
// the promoted row's old rate. Marking a row secondary clears the previous
// secondary. Both happen in the same transaction.
func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Currency, error) {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.Code = convert.NormalizeCode(req.Code)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if req.IsDefault && req.IsSecondary {
		return nil, domain.ErrPrimaryAsSecondary
	}
	supplied := req.ExchangeRate
	if req.IsDefault {
		req.ExchangeRate = 1
	}

	now := s.clock.Now()
	var (
		saved *domain.Currency
		pivot float64
		stale bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindCurrency(ctx, tx, req.OrganizationID, req.Code)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsDefault && !req.IsDefault {
			return domain.ErrDemotePrimary
		}
		if req.IsDefault && (existing == nil || !existing.IsDefault) {
			pivot, stale, err = s.rebase(ctx, tx, req.OrganizationID, req.Code, existing, supplied, now)
			if err != nil {
				return err
			}
		}
		if !req.IsDefault && !convert.ValidRate(req.ExchangeRate) {
			if existing == nil {
				return domain.ErrInvalidRate
			}
			req.ExchangeRate = existing.ExchangeRate
		}

		item := &domain.Currency{
			ID:             s.genID.Generate(),
			OrganizationID: req.OrganizationID,
			Code:           req.Code,
			Symbol:         req.Symbol,
			IsDefault:      req.IsDefault,
			IsSecondary:    req.IsSecondary,
			ExchangeRate:   req.ExchangeRate,
			UpdatedAt:      now,
		}
		if existing != nil {
			item.ID = existing.ID
			if item.Symbol == "" {
				item.Symbol = existing.Symbol
			}
		}

		if req.IsDefault {
			if err := s.repo.ClearDefault(ctx, tx, req.OrganizationID, req.Code); err != nil {
				return err
			}
		}
		if req.IsSecondary {
			if err := s.repo.ClearSecondary(ctx, tx, req.OrganizationID, req.Code); err != nil {
				return err
			}
		}
		if err := s.repo.UpsertCurrency(ctx, tx, item); err != nil {
			return err
		}
		saved = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("organization_id", saved.OrganizationID),
		zap.String("code", saved.Code),
	)
	switch {
	case pivot > 0:
		s.rebaseLiveRates(ctx, log, saved.OrganizationID, saved.Code, pivot)
		log.Info("exchange rates rebased onto new primary", zap.Float64("pivot", pivot))
	case stale:
		log.Warn("primary promoted without a known rate, other exchange rates must be re-entered")
	}
	log.Info("currency saved",
		zap.Bool("is_default", saved.IsDefault),
		zap.Bool("is_secondary", saved.IsSecondary),
	)
	return saved, nil
}

// rebase re-expresses stored rates against code, which is about to become
// primary. The pivot is the promoted row's old rate, or the rate supplied with
// the request for a new row. Without a usable pivot nothing is rebased and
// stale reports whether other currencies are left on the old basis.
func (s *Service) rebase(
	ctx context.Context,
	tx *gorm.DB,
	orgID, code string,
	existing *domain.Currency,
	supplied float64,
	at time.Time,
) (pivot float64, stale bool, err error) {
	pivot = supplied
	if existing != nil && convert.ValidRate(existing.ExchangeRate) {
		pivot = existing.ExchangeRate
	}
	if !convert.ValidRate(pivot) {
		currencies, listErr := s.repo.ListCurrencies(ctx, tx, orgID)
		if listErr != nil {
			return 0, false, listErr
		}
		for _, c := range currencies {
			if !convert.SameCode(c.Code, code) {
				return 0, true, nil
			}
		}
		return 0, false, nil
	}
	if pivot == 1 {
		return 0, false, nil
	}
	if err := s.repo.RebaseRates(ctx, tx, orgID, pivot, at); err != nil {
		return 0, false, err
	}
	return pivot, false, nil
}

// rebaseLiveRates applies the same pivot to cached live rates. Failures only
// leave live rates stale until they are republished.
func (s *Service) rebaseLiveRates(ctx context.Context, log *zap.Logger, orgID, primary string, pivot float64) {
	if s.rates == nil {
		return
	}
	live, err := s.rates.Rates(ctx, orgID)
	if err != nil {
		log.Warn("live rates not rebased", zap.Error(err))
		return
	}
	for code, rate := range live {
		if convert.SameCode(code, primary) || !convert.ValidRate(rate) {
			continue
		}
		if err := s.rates.SetRate(ctx, orgID, code, rate/pivot); err != nil {
			log.Warn("live rate not rebased", zap.String("rate_code", code), zap.Error(err))
		}
	}
}

func (s *Service) SetLiveRate(ctx context.Context, orgID, code string, rate float64) error {
	orgID = strings.TrimSpace(orgID)
	code = convert.NormalizeCode(code)
	if orgID == "" || code == "" {
		return domain.ErrInvalidRequest
	}
	if !convert.ValidRate(rate) {
		return domain.ErrInvalidRate
	}

	existing, err := s.repo.FindCurrency(ctx, s.db, orgID, code)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrCurrencyNotFound
	}
	if existing.IsDefault {
		return fmt.Errorf("%w: primary currency rate is fixed at 1", domain.ErrInvalidRate)
	}

	if err := s.rates.SetRate(ctx, orgID, code, rate); err != nil {
		return err
	}
	s.obsMetrics.RecordLiveRateUpdate(ctx, orgID, code)
	return nil
}

// Summarize totals the organization's financial records in the requested mode.
// In original mode totals are kept per currency.
func (s *Service) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	mode, err := convert.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	preference, err := convert.ParsePreference(req.Preference)
	if err != nil {
		return nil, err
	}
	groupBy, err := domain.ParseGroupBy(req.GroupBy)
	if err != nil {
		return nil, err
	}

	book, err := s.Book(ctx, req.OrganizationID, preference)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListRecords(ctx, s.db, strings.TrimSpace(req.OrganizationID))
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{Mode: mode, Preference: preference, GroupBy: groupBy}
	symbols := book.Symbols()

	summary.Totals, err = s.totals(records, mode, book, symbols)
	if err != nil {
		return nil, err
	}

	if groupBy != domain.GroupByNone {
		grouped := make(map[string][]domain.FinancialRecord)
		for _, r := range records {
			key := groupBy.GroupKey(r)
			grouped[key] = append(grouped[key], r)
		}
		keys := make([]string, 0, len(grouped))
		for key := range grouped {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			totals, err := s.totals(grouped[key], mode, book, symbols)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", key, err)
			}
			summary.Groups = append(summary.Groups, domain.GroupTotal{Key: key, Totals: totals})
		}
	}

	s.obsMetrics.RecordSummary(ctx, string(mode), string(groupBy))
	return summary, nil
}

// totals sums records in mode. Original mode, and any mode that resolves to
// more than one currency, falls back to per-currency totals.
func (s *Service) totals(records []domain.FinancialRecord, mode convert.Mode, book convert.Book, symbols map[string]string) ([]domain.SummaryLine, error) {
	if mode == convert.ModeOriginal {
		return lines(aggregate.SumByCurrency(records), symbols), nil
	}

	total, err := aggregate.SumDisplayAmounts(records, mode, book)
	if errors.Is(err, aggregate.ErrMixedCurrencies) {
		resolved := make([]resolvedRecord, 0, len(records))
		for _, r := range records {
			resolved = append(resolved, resolvedRecord{convert.Resolve(r.Money(), mode, book)})
		}
		return lines(aggregate.SumByCurrency(resolved), symbols), nil
	}
	if err != nil {
		return nil, err
	}
	if total.CurrencyCode == "" {
		total.CurrencyCode = emptyTotalCode(mode, book)
	}
	return lines([]aggregate.Total{total}, symbols), nil
}

// resolvedRecord feeds already resolved values back into the native summer.
type resolvedRecord struct {
	value convert.DisplayValue
}

func (r resolvedRecord) Money() convert.Money {
	return convert.Money{Amount: r.value.Amount, CurrencyCode: r.value.CurrencyCode}
}

func emptyTotalCode(mode convert.Mode, book convert.Book) string {
	secondary := mode == convert.ModeSecondary ||
		(mode == convert.ModeAuto && book.Preference == convert.PreferSecondary)
	if secondary && book.Secondary != nil {
		return convert.NormalizeCode(book.Secondary.Code)
	}
	return convert.NormalizeCode(book.Primary.Code)
}

func lines(totals []aggregate.Total, symbols map[string]string) []domain.SummaryLine {
	out := make([]domain.SummaryLine, 0, len(totals))
	for _, t := range totals {
		out = append(out, domain.SummaryLine{
			Total:     t,
			Formatted: convert.DisplayValue{Amount: t.Amount, CurrencyCode: t.CurrencyCode}.Format(symbols),
		})
	}
	return out
}
