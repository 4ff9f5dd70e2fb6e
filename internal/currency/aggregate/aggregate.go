// Package aggregate sums monetary records after resolving each one through the
// conversion engine. Native amounts in different currencies are never added.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/smallbiznis/obrapay/internal/currency/convert"
)

var ErrMixedCurrencies = errors.New("mixed_currencies")

// Monetary is anything that carries a stored monetary amount.
type Monetary interface {
	Money() convert.Money
}

type Total struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
	Count        int     `json:"count"`
}

func (t *Total) add(v convert.DisplayValue) error {
	if t.Count > 0 && !convert.SameCode(t.CurrencyCode, v.CurrencyCode) {
		return fmt.Errorf("%w: %s and %s", ErrMixedCurrencies, t.CurrencyCode, v.CurrencyCode)
	}
	t.CurrencyCode = v.CurrencyCode
	t.Amount += v.Amount
	t.Count++
	return nil
}

// SumDisplayAmounts resolves every item with mode and adds the results.
func SumDisplayAmounts[T Monetary](items []T, mode convert.Mode, book convert.Book) (Total, error) {
	var total Total
	for _, item := range items {
		if err := total.add(convert.Resolve(item.Money(), mode, book)); err != nil {
			return Total{}, err
		}
	}
	return total, nil
}

// GroupAndSum is SumDisplayAmounts reduced per key. The mixed currency rule applies per key.
func GroupAndSum[T Monetary, K comparable](items []T, keyFn func(T) K, mode convert.Mode, book convert.Book) (map[K]Total, error) {
	out := make(map[K]Total)
	for _, item := range items {
		key := keyFn(item)
		total := out[key]
		if err := total.add(convert.Resolve(item.Money(), mode, book)); err != nil {
			return nil, fmt.Errorf("group %v: %w", key, err)
		}
		out[key] = total
	}
	return out, nil
}

// SumByCurrency totals native amounts per currency code, sorted by code.
func SumByCurrency[T Monetary](items []T) []Total {
	byCode := make(map[string]*Total)
	for _, item := range items {
		m := item.Money()
		code := convert.NormalizeCode(m.CurrencyCode)
		total, ok := byCode[code]
		if !ok {
			total = &Total{CurrencyCode: code}
			byCode[code] = total
		}
		total.Amount += m.Amount
		total.Count++
	}

	out := make([]Total, 0, len(byCode))
	for _, total := range byCode {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyCode < out[j].CurrencyCode })
	return out
}
