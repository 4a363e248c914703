package campaign

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

const (
	activeLimit    = 20
	availableLimit = 50

	// moneyScale matches the NUMERIC(18,6) columns.
	moneyScale = 6
)

var thousand = decimal.NewFromInt(1000)

type CreateInput struct {
	AdvertiserID  int64
	Title         string
	URL           string
	RequiredViews int64
}

type CreateResult struct {
	Campaign     *ledger.Campaign `json:"campaign"`
	TotalCost    decimal.Decimal  `json:"total_cost"`
	NewAdBalance decimal.Decimal  `json:"new_ad_balance"`
}

// Service funds campaigns from advertisers' ad balances and moderates them.
type Service struct {
	store       ledger.Store
	settings    *ledger.Settings
	clock       ledger.Clock
	viewSeconds int
}

func NewService(store ledger.Store, settings *ledger.Settings, clock ledger.Clock, viewSeconds int) *Service {
	if viewSeconds <= 0 {
		viewSeconds = 5
	}
	return &Service{store: store, settings: settings, clock: clock, viewSeconds: viewSeconds}
}

// Pricing returns the budget for requiredViews and the reward each view pays.
// The budget rounds up and the reward truncates, so requiredViews rewards always fit.
func Pricing(costPer1000 decimal.Decimal, requiredViews int64) (total, reward decimal.Decimal) {
	total = decimal.NewFromInt(requiredViews).Mul(costPer1000).Div(thousand).RoundCeil(moneyScale)
	reward = costPer1000.Div(thousand).Truncate(moneyScale)
	return total, reward
}

// Create debits the campaign's full budget from the advertiser's ad balance and
// files the campaign for moderation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	switch {
	case in.AdvertiserID <= 0:
		return nil, ledger.Invalid("advertiser is required")
	case in.Title == "":
		return nil, ledger.Invalid("title is required")
	case in.URL == "":
		return nil, ledger.Invalid("url is required")
	case in.RequiredViews <= 0:
		return nil, ledger.Invalid("required_views must be greater than 0")
	}

	now := s.clock.Now()
	var res CreateResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		cost, err := s.settings.CostPer1000(ctx, tx)
		if err != nil {
			return err
		}
		total, reward := Pricing(cost, in.RequiredViews)
		if !reward.IsPositive() {
			return ledger.Invalid("cost_per_1000 is too small to pay a reward")
		}

		acc, err := tx.LockAccount(ctx, in.AdvertiserID)
		if err != nil {
			return err
		}
		if acc.AdBalance.LessThan(total) {
			return fmt.Errorf("%w: ad balance %s, campaign costs %s", ledger.ErrInsufficientFunds, acc.AdBalance, total)
		}

		c := &ledger.Campaign{
			AdvertiserID:     acc.ID,
			Title:            in.Title,
			URL:              in.URL,
			RewardPerView:    reward,
			DurationSeconds:  s.viewSeconds,
			RequiredViews:    in.RequiredViews,
			Budget:           total,
			ModerationStatus: ledger.ModerationPending,
			IsActive:         false,
			CreatedAt:        now,
		}
		if err := tx.CreateCampaign(ctx, c); err != nil {
			return err
		}

		balance, err := ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   acc.ID,
			Balance:     ledger.BalanceAd,
			Amount:      total.Neg(),
			Type:        ledger.TxTypeCampaignCreate,
			Description: "Created campaign: " + c.Title,
		}, now)
		if err != nil {
			return err
		}

		res = CreateResult{Campaign: c, TotalCost: total, NewAdBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", in.AdvertiserID).
		Int64("campaign_id", res.Campaign.ID).
		Int64("required_views", in.RequiredViews).
		Str("total_cost", res.TotalCost.String()).
		Msg("campaign created")

	return &res, nil
}

// Moderate approves or rejects a pending campaign. Approval starts it; rejection
// returns the unspent budget to the advertiser's ad balance.
func (s *Service) Moderate(ctx context.Context, campaignID int64, decision ledger.ModerationStatus) (*ledger.Campaign, error) {
	if campaignID <= 0 {
		return nil, ledger.Invalid("campaign_id is required")
	}
	if decision != ledger.ModerationApproved && decision != ledger.ModerationRejected {
		return nil, ledger.Invalid("status must be approved or rejected")
	}

	now := s.clock.Now()
	var c *ledger.Campaign
	refund := decimal.Zero

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		c, err = tx.LockCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if c.ModerationStatus != ledger.ModerationPending {
			return fmt.Errorf("%w: campaign %d is %s", ledger.ErrAlreadyProcessed, c.ID, c.ModerationStatus)
		}

		active := decision == ledger.ModerationApproved
		if err := tx.SetCampaignModeration(ctx, c.ID, decision, active); err != nil {
			return err
		}
		c.ModerationStatus = decision
		c.IsActive = active

		if active {
			return nil
		}

		refund = c.Budget.Sub(c.Spent)
		if !refund.IsPositive() {
			refund = decimal.Zero
			return nil
		}
		if _, err := tx.LockAccount(ctx, c.AdvertiserID); err != nil {
			return err
		}
		_, err = ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   c.AdvertiserID,
			Balance:     ledger.BalanceAd,
			Amount:      refund,
			Type:        ledger.TxTypeCampaignRefund,
			Description: fmt.Sprintf("Campaign #%d rejected", c.ID),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("campaign_id", c.ID).
		Str("status", string(decision)).
		Str("refund", refund.String()).
		Msg("campaign moderated")

	return c, nil
}

// TopUp credits an advertiser's ad balance.
func (s *Service) TopUp(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if accountID <= 0 {
		return decimal.Zero, ledger.Invalid("account is required")
	}
	if err := ledger.CheckAmount("amount", amount); err != nil {
		return decimal.Zero, err
	}

	now := s.clock.Now()
	var balance decimal.Decimal

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		balance, err = ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   accountID,
			Balance:     ledger.BalanceAd,
			Amount:      amount,
			Type:        ledger.TxTypeAdTopUp,
			Description: "Ad balance top-up",
		}, now)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Info().Int64("account_id", accountID).Str("amount", amount.String()).Msg("ad balance topped up")
	return balance, nil
}

// ListActive returns the latest running campaigns.
func (s *Service) ListActive(ctx context.Context) ([]ledger.Campaign, error) {
	return s.store.ListActiveCampaigns(ctx, activeLimit)
}

// ListAvailable returns running campaigns accountID has not viewed today.
func (s *Service) ListAvailable(ctx context.Context, accountID int64) ([]ledger.Campaign, error) {
	return s.store.ListAvailableCampaigns(ctx, accountID, ledger.Day(s.clock.Now()), availableLimit)
}

func (s *Service) Get(ctx context.Context, id int64) (*ledger.Campaign, error) {
	return s.store.GetCampaign(ctx, id)
}
