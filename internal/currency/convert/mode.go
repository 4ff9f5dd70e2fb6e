package convert

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMode       = errors.New("invalid_display_mode")
	ErrInvalidPreference = errors.New("invalid_display_preference")
)

// Mode selects how a monetary record is displayed.
type Mode string

const (
	ModeOriginal   Mode = "original"
	ModeFunctional Mode = "functional"
	ModePrimary    Mode = "primary"
	ModeBoth       Mode = "both"
	ModeSecondary  Mode = "secondary"
	ModeAuto       Mode = "auto"
)

// ParseMode defaults to auto when no mode is given.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeOriginal:
		return ModeOriginal, nil
	case ModeFunctional:
		return ModeFunctional, nil
	case ModePrimary:
		return ModePrimary, nil
	case ModeBoth:
		return ModeBoth, nil
	case ModeSecondary:
		return ModeSecondary, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// Preference is the caller's display preference, consulted by ModeAuto.
type Preference string

const (
	PreferPrimary   Preference = "primary"
	PreferSecondary Preference = "secondary"
	PreferBoth      Preference = "both"
	PreferMix       Preference = "mix"
)

// ParsePreference defaults to primary when no preference is given.
func ParsePreference(raw string) (Preference, error) {
	switch Preference(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PreferPrimary:
		return PreferPrimary, nil
	case PreferSecondary:
		return PreferSecondary, nil
	case PreferBoth:
		return PreferBoth, nil
	case PreferMix:
		return PreferMix, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreference, raw)
}
