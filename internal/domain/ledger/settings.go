package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Setting keys stored in the settings table.
const (
	SettingConversionRate = "credits_to_usd_rate"
	SettingCostPer1000    = "cost_per_1000"
	SettingReferralShare  = "referral_share"
)

// Defaults are used whenever a setting row is missing or holds an unusable value.
type Defaults struct {
	ConversionRate decimal.Decimal
	CostPer1000    decimal.Decimal
	ReferralShare  decimal.Decimal
}

func DefaultSettings() Defaults {
	return Defaults{
		ConversionRate: decimal.NewFromInt(100),
		CostPer1000:    decimal.RequireFromString("0.15"),
		ReferralShare:  decimal.RequireFromString("0.1"),
	}
}

// Settings reads tunables fresh on every call. Nothing is cached.
type Settings struct {
	defaults Defaults
}

func NewSettings(d Defaults) *Settings {
	return &Settings{defaults: d}
}

// ConversionRate is credits per USD.
func (s *Settings) ConversionRate(ctx context.Context, g SettingGetter) (decimal.Decimal, error) {
	return s.read(ctx, g, SettingConversionRate, s.defaults.ConversionRate, positive)
}

func (s *Settings) CostPer1000(ctx context.Context, g SettingGetter) (decimal.Decimal, error) {
	return s.read(ctx, g, SettingCostPer1000, s.defaults.CostPer1000, positive)
}

// ReferralShare is the fixed credit amount paid to a referrer per referred view.
func (s *Settings) ReferralShare(ctx context.Context, g SettingGetter) (decimal.Decimal, error) {
	return s.read(ctx, g, SettingReferralShare, s.defaults.ReferralShare, nonNegative)
}

func (s *Settings) read(ctx context.Context, g SettingGetter, key string, def decimal.Decimal, ok func(decimal.Decimal) bool) (decimal.Decimal, error) {
	raw, found, err := g.GetSetting(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return def, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !ok(v) {
		return def, nil
	}
	return v, nil
}

// ValidateSetting checks a value an admin wants to store under key.
func ValidateSetting(key string, v decimal.Decimal) error {
	if key == SettingReferralShare && !Representable(v) {
		return Invalid("%s must have at most %d decimal places", key, Scale)
	}
	switch key {
	case SettingConversionRate, SettingCostPer1000:
		if !positive(v) {
			return Invalid("%s must be greater than 0", key)
		}
	case SettingReferralShare:
		if !nonNegative(v) {
			return Invalid("%s must not be negative", key)
		}
	default:
		return Invalid("unknown setting %q", key)
	}
	return nil
}

func positive(v decimal.Decimal) bool    { return v.IsPositive() }
func nonNegative(v decimal.Decimal) bool { return !v.IsNegative() }
