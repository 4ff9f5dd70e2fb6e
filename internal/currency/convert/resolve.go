package convert

import (
	"fmt"
	"strings"
)

// Currency is one configured currency of an organization.
// Rate is units of primary currency per one unit of this currency.
type Currency struct {
	Code   string
	Symbol string
	Rate   float64
}

// Book is everything needed to resolve records of one organization.
type Book struct {
	Primary    Currency
	Secondary  *Currency
	Currencies map[string]Currency
	// Current holds live rates keyed by currency code; they take precedence over static rates.
	Current    map[string]float64
	Preference Preference
}

// Money is a stored monetary record.
type Money struct {
	Amount       float64
	CurrencyCode string
	// Rate is the exchange rate captured when the record was made.
	Rate *float64
	// FunctionalAmount, when set, is already expressed in the primary currency.
	FunctionalAmount *float64
}

type Native struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
}

// DisplayValue is a resolved record. Original is set when the caller asked for
// a breakdown and a conversion took place.
type DisplayValue struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
	Converted    bool    `json:"converted"`
	Original     *Native `json:"original,omitempty"`
}

// Symbols maps every configured code to its display symbol.
func (b Book) Symbols() map[string]string {
	out := make(map[string]string, len(b.Currencies)+2)
	for code, c := range b.Currencies {
		out[NormalizeCode(code)] = c.Symbol
	}
	out[NormalizeCode(b.Primary.Code)] = b.Primary.Symbol
	if b.Secondary != nil {
		out[NormalizeCode(b.Secondary.Code)] = b.Secondary.Symbol
	}
	return out
}

// RateFor resolves the rate for code: explicit, then live, then static, then 1.
func (b Book) RateFor(code string, explicit *float64) float64 {
	code = NormalizeCode(code)
	var current *float64
	if v, ok := b.Current[code]; ok {
		current = &v
	}
	static := 0.0
	if c, ok := b.Currencies[code]; ok {
		static = c.Rate
	}
	return ResolveRate(explicit, current, static)
}

// Resolve renders m according to mode. ModeAuto defers to book.Preference.
func Resolve(m Money, mode Mode, book Book) DisplayValue {
	switch mode {
	case ModeOriginal:
		return native(m)
	case ModeFunctional, ModePrimary:
		return toPrimary(m, book, false)
	case ModeBoth:
		return toPrimary(m, book, true)
	case ModeSecondary:
		return toSecondary(m, book)
	case ModeAuto:
		return resolvePreference(m, book)
	}
	return native(m)
}

func resolvePreference(m Money, book Book) DisplayValue {
	switch book.Preference {
	case PreferSecondary:
		return toSecondary(m, book)
	case PreferBoth:
		return toPrimary(m, book, true)
	case PreferMix:
		if SameCode(m.CurrencyCode, book.Primary.Code) ||
			(book.Secondary != nil && SameCode(m.CurrencyCode, book.Secondary.Code)) {
			return native(m)
		}
		return toPrimary(m, book, true)
	}
	return toPrimary(m, book, false)
}

func native(m Money) DisplayValue {
	return DisplayValue{Amount: m.Amount, CurrencyCode: NormalizeCode(m.CurrencyCode)}
}

func toPrimary(m Money, book Book, breakdown bool) DisplayValue {
	if SameCode(m.CurrencyCode, book.Primary.Code) {
		return native(m)
	}
	v := DisplayValue{
		Amount:       primaryAmount(m, book),
		CurrencyCode: NormalizeCode(book.Primary.Code),
		Converted:    true,
	}
	if breakdown {
		v.Original = &Native{Amount: m.Amount, CurrencyCode: NormalizeCode(m.CurrencyCode)}
	}
	return v
}

func toSecondary(m Money, book Book) DisplayValue {
	if book.Secondary == nil {
		return toPrimary(m, book, true)
	}
	secondary := *book.Secondary
	if SameCode(m.CurrencyCode, secondary.Code) {
		return native(m)
	}
	functional := primaryAmount(m, book)
	return DisplayValue{
		Amount:       FromFunctional(functional, secondary.Code, book.Primary.Code, book.RateFor(secondary.Code, nil)),
		CurrencyCode: NormalizeCode(secondary.Code),
		Converted:    true,
		Original:     &Native{Amount: m.Amount, CurrencyCode: NormalizeCode(m.CurrencyCode)},
	}
}

// primaryAmount prefers the stored functional amount, then converts with the
// record rate, the live rate, the static rate, and finally 1. A record rate that
// is not positive is treated as missing rather than clamped to 1.
func primaryAmount(m Money, book Book) float64 {
	if SameCode(m.CurrencyCode, book.Primary.Code) {
		return m.Amount
	}
	if m.FunctionalAmount != nil {
		return *m.FunctionalAmount
	}
	var explicit *float64
	if m.Rate != nil && validRate(*m.Rate) {
		explicit = m.Rate
	}
	return ToFunctional(m.Amount, m.CurrencyCode, book.Primary.Code, book.RateFor(m.CurrencyCode, explicit))
}

// Format renders the value as "<symbol> <amount>" followed by the native
// breakdown, if any, as "(<code> <amount>)".
func (v DisplayValue) Format(symbols map[string]string) string {
	var b strings.Builder
	b.WriteString(symbolFor(v.CurrencyCode, symbols))
	b.WriteString(fmt.Sprintf(" %.2f", v.Amount))
	if v.Original != nil {
		b.WriteString(fmt.Sprintf(" (%s %.2f)", v.Original.CurrencyCode, v.Original.Amount))
	}
	return b.String()
}

func symbolFor(code string, symbols map[string]string) string {
	if s := strings.TrimSpace(symbols[NormalizeCode(code)]); s != "" {
		return s
	}
	return NormalizeCode(code)
}
