package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

// ViewInput is a completed ad view reported by an authenticated account.
type ViewInput struct {
	AccountID       int64
	CampaignID      int64
	CaptchaVerified bool
}

type ViewResult struct {
	AdViewID      int64           `json:"ad_view_id"`
	Reward        decimal.Decimal `json:"reward"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	ReferralBonus decimal.Decimal `json:"referral_bonus"`
}

// Service settles ad-view rewards and the referral split.
type Service struct {
	store    ledger.Store
	settings *ledger.Settings
	clock    ledger.Clock
}

func NewService(store ledger.Store, settings *ledger.Settings, clock ledger.Clock) *Service {
	return &Service{store: store, settings: settings, clock: clock}
}

// CompleteView pays the viewer the campaign's reward and, when the viewer was
// referred, pays the referrer the configured share. Either everything is
// written or nothing is.
func (s *Service) CompleteView(ctx context.Context, in ViewInput) (*ViewResult, error) {
	if in.AccountID <= 0 || in.CampaignID <= 0 {
		return nil, ledger.Invalid("campaign_id is required")
	}
	if !in.CaptchaVerified {
		return nil, ledger.Invalid("captcha not verified")
	}

	now := s.clock.Now()
	day := ledger.Day(now)
	var res ViewResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		c, err := tx.LockCampaign(ctx, in.CampaignID)
		if err != nil {
			return err
		}
		if !c.Viewable() {
			return fmt.Errorf("%w: campaign %d is not running", ledger.ErrNotFound, c.ID)
		}
		if c.TotalViews >= c.RequiredViews {
			return fmt.Errorf("%w: campaign %d", ledger.ErrLimitReached, c.ID)
		}

		seen, err := tx.HasAdView(ctx, in.AccountID, c.ID, day)
		if err != nil {
			return err
		}
		if seen {
			return fmt.Errorf("%w: campaign %d", ledger.ErrDuplicateView, c.ID)
		}

		viewer, err := tx.LockAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}

		view := &ledger.AdView{
			UserID:     viewer.ID,
			CampaignID: c.ID,
			Reward:     c.RewardPerView,
			ViewDate:   day,
			CreatedAt:  now,
		}
		if err := tx.CreateAdView(ctx, view); err != nil {
			return err
		}

		balance, err := ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   viewer.ID,
			Balance:     ledger.BalanceCredits,
			Amount:      c.RewardPerView,
			Type:        ledger.TxTypeAdView,
			Description: fmt.Sprintf("Viewed campaign #%d", c.ID),
		}, now)
		if err != nil {
			return err
		}
		if err := tx.IncrementClicks(ctx, viewer.ID); err != nil {
			return err
		}
		if err := tx.RecordCampaignView(ctx, c.ID, c.RewardPerView); err != nil {
			return err
		}

		bonus, err := s.payReferrer(ctx, tx, viewer, view, now)
		if err != nil {
			return err
		}

		res = ViewResult{
			AdViewID:      view.ID,
			Reward:        c.RewardPerView,
			NewBalance:    balance,
			ReferralBonus: bonus,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", in.AccountID).
		Int64("campaign_id", in.CampaignID).
		Str("reward", res.Reward.String()).
		Str("referral_bonus", res.ReferralBonus.String()).
		Msg("ad view rewarded")

	return &res, nil
}

// payReferrer returns the bonus paid, zero when there is no eligible referrer.
func (s *Service) payReferrer(ctx context.Context, tx ledger.Tx, viewer *ledger.Account, view *ledger.AdView, now time.Time) (decimal.Decimal, error) {
	if viewer.ReferredBy == nil || *viewer.ReferredBy == viewer.ID {
		return decimal.Zero, nil
	}

	share, err := s.settings.ReferralShare(ctx, tx)
	if err != nil {
		return decimal.Zero, err
	}
	if !share.IsPositive() {
		return decimal.Zero, nil
	}

	referrer, err := tx.LockAccount(ctx, *viewer.ReferredBy)
	if errors.Is(err, ledger.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}

	_, err = ledger.Post(ctx, tx, ledger.Posting{
		AccountID:   referrer.ID,
		Balance:     ledger.BalanceCredits,
		Amount:      share,
		Type:        ledger.TxTypeReferralBonus,
		Description: fmt.Sprintf("Referral bonus from user #%d", viewer.ID),
	}, now)
	if err != nil {
		return decimal.Zero, err
	}
	if err := tx.AddReferralEarnings(ctx, referrer.ID, share); err != nil {
		return decimal.Zero, err
	}

	err = tx.CreateReferralEarning(ctx, &ledger.ReferralEarning{
		ReferrerID:     referrer.ID,
		ReferredUserID: viewer.ID,
		AdViewID:       view.ID,
		Credits:        share,
		CreatedAt:      now,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return share, nil
}
