// Package convert converts monetary values between a record's native currency
// and an organization's primary and secondary currencies.
//
// Everything here is a pure function of its inputs. The display preference is
// passed in through the Book; nothing in this package reads request state.
package convert

import "strings"

// ToFunctional expresses amount, held in fromCode, in the primary currency.
// rate is units of primary currency per one unit of fromCode.
func ToFunctional(amount float64, fromCode, primaryCode string, rate float64) float64 {
	if SameCode(fromCode, primaryCode) {
		return amount
	}
	return amount * rate
}

// FromFunctional is the inverse of ToFunctional. A zero rate is treated as 1.
func FromFunctional(functional float64, toCode, primaryCode string, rate float64) float64 {
	if SameCode(toCode, primaryCode) {
		return functional
	}
	if rate == 0 {
		rate = 1
	}
	return functional / rate
}

func SameCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
