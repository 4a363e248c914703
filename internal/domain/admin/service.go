package admin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

// SettingsService lists and updates the platform tunables.
type SettingsService struct {
	store    ledger.Store
	settings *ledger.Settings
	clock    ledger.Clock
}

func NewSettingsService(store ledger.Store, settings *ledger.Settings, clock ledger.Clock) *SettingsService {
	return &SettingsService{store: store, settings: settings, clock: clock}
}

// Effective is the value each tunable currently resolves to, defaults included.
type Effective struct {
	ConversionRate decimal.Decimal  `json:"credits_to_usd_rate"`
	CostPer1000    decimal.Decimal  `json:"cost_per_1000"`
	ReferralShare  decimal.Decimal  `json:"referral_share"`
	Stored         []ledger.Setting `json:"stored"`
}

func (s *SettingsService) List(ctx context.Context) (*Effective, error) {
	stored, err := s.store.ListSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := &Effective{Stored: stored}
	if out.ConversionRate, err = s.settings.ConversionRate(ctx, s.store); err != nil {
		return nil, err
	}
	if out.CostPer1000, err = s.settings.CostPer1000(ctx, s.store); err != nil {
		return nil, err
	}
	if out.ReferralShare, err = s.settings.ReferralShare(ctx, s.store); err != nil {
		return nil, err
	}
	return out, nil
}

// Update validates and stores one tunable. It takes effect on the next settlement.
func (s *SettingsService) Update(ctx context.Context, key string, value decimal.Decimal) (*ledger.Setting, error) {
	if err := ledger.ValidateSetting(key, value); err != nil {
		return nil, err
	}

	st := &ledger.Setting{Key: key, Value: value.String(), UpdatedAt: s.clock.Now()}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutSetting(ctx, st.Key, st.Value, st.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
