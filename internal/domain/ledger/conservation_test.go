package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/campaign"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger/ledgertest"
	"github.com/ptcearn/ptcearn-api/internal/domain/reward"
	"github.com/ptcearn/ptcearn-api/internal/domain/voucher"
	"github.com/ptcearn/ptcearn-api/internal/domain/withdrawal"
)

// creditsInSystem is spendable credits plus credits reserved by pending withdrawals.
func creditsInSystem(t *testing.T, store ledger.Store, accounts []int64) decimal.Decimal {
	t.Helper()

	total := decimal.Zero
	for _, id := range accounts {
		total = total.Add(ledgertest.Account(t, store, id).Credits)
	}

	reqs, err := store.ListWithdrawals(context.Background(), ledger.WithdrawalFilter{Limit: 1000})
	requireNoError(t, err)
	for _, r := range reqs {
		if r.Status == ledger.WithdrawalPending {
			total = total.Add(r.Credits)
		}
	}
	return total
}

// requireHistoryMatchesBalances checks that every balance equals the sum of its Transaction rows.
func requireHistoryMatchesBalances(t *testing.T, store ledger.Store, accounts []int64) {
	t.Helper()

	for _, id := range accounts {
		sums := map[ledger.Balance]decimal.Decimal{
			ledger.BalanceCredits: decimal.Zero,
			ledger.BalanceAd:      decimal.Zero,
		}
		for _, tx := range ledgertest.Transactions(t, store, id) {
			sums[tx.Balance] = sums[tx.Balance].Add(tx.Amount)
		}

		acc := ledgertest.Account(t, store, id)
		if !sums[ledger.BalanceCredits].Equal(acc.Credits) {
			t.Fatalf("account %d: credits %s but history sums to %s", id, acc.Credits, sums[ledger.BalanceCredits])
		}
		if !sums[ledger.BalanceAd].Equal(acc.AdBalance) {
			t.Fatalf("account %d: ad balance %s but history sums to %s", id, acc.AdBalance, sums[ledger.BalanceAd])
		}
	}
}

func TestCreditsConservedAcrossOperations(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	settings := ledger.NewSettings(ledger.DefaultSettings())
	clock := ledgertest.Clock()

	vouchers := voucher.NewService(store, clock, nil)
	rewards := reward.NewService(store, settings, clock)
	withdrawals := withdrawal.NewService(store, settings, clock)
	campaigns := campaign.NewService(store, settings, clock, 5)

	referrer := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{})
	viewer := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{ReferredBy: &referrer.ID})
	advertiser := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{})
	accounts := []int64{referrer.ID, viewer.ID, advertiser.ID}
	method := ledgertest.SeedMethod(t, store, "PayPal", true)
	code := ledgertest.SeedVoucher(t, store, "CONSERVE0001", "100").Code

	// each step returns the credits it adds to or removes from the system
	expected := decimal.Zero
	step := func(name string, op func() (decimal.Decimal, error)) {
		t.Helper()
		delta, err := op()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		expected = expected.Add(delta)
		if got := creditsInSystem(t, store, accounts); !got.Equal(expected) {
			t.Fatalf("%s: credits in system %s, expected %s", name, got, expected)
		}
		requireHistoryMatchesBalances(t, store, accounts)
	}

	step("redeem", func() (decimal.Decimal, error) {
		res, err := vouchers.Redeem(ctx, code, viewer.ID)
		if err != nil {
			return decimal.Zero, err
		}
		return res.Credits, nil
	})

	var live *ledger.Campaign
	step("fund campaign", func() (decimal.Decimal, error) {
		if _, err := campaigns.TopUp(ctx, advertiser.ID, ledgertest.D("5")); err != nil {
			return decimal.Zero, err
		}
		res, err := campaigns.Create(ctx, campaign.CreateInput{
			AdvertiserID: advertiser.ID, Title: "Launch", URL: "https://example.com", RequiredViews: 1000,
		})
		if err != nil {
			return decimal.Zero, err
		}
		live, err = campaigns.Moderate(ctx, res.Campaign.ID, ledger.ModerationApproved)
		return decimal.Zero, err
	})

	step("view", func() (decimal.Decimal, error) {
		res, err := rewards.CompleteView(ctx, reward.ViewInput{AccountID: viewer.ID, CampaignID: live.ID, CaptchaVerified: true})
		if err != nil {
			return decimal.Zero, err
		}
		if !res.ReferralBonus.IsPositive() {
			return decimal.Zero, fmt.Errorf("expected a referral bonus, got %s", res.ReferralBonus)
		}
		return res.Reward.Add(res.ReferralBonus), nil
	})

	var rejected, completed *ledger.WithdrawalRequest
	step("create withdrawal", func() (delta decimal.Decimal, err error) {
		rejected, err = withdrawals.Create(ctx, withdrawal.CreateInput{
			AccountID: viewer.ID, Credits: ledgertest.D("50"), MethodID: method.ID, WalletAddress: "v@pay.pal",
		})
		return decimal.Zero, err
	})
	step("reject withdrawal", func() (decimal.Decimal, error) {
		_, err := withdrawals.Adjudicate(ctx, rejected.ID, ledger.WithdrawalRejected)
		return decimal.Zero, err
	})
	step("create second withdrawal", func() (delta decimal.Decimal, err error) {
		completed, err = withdrawals.Create(ctx, withdrawal.CreateInput{
			AccountID: viewer.ID, Credits: ledgertest.D("30"), MethodID: method.ID, WalletAddress: "v@pay.pal",
		})
		return decimal.Zero, err
	})
	step("complete withdrawal", func() (decimal.Decimal, error) {
		req, err := withdrawals.Adjudicate(ctx, completed.ID, ledger.WithdrawalCompleted)
		if err != nil {
			return decimal.Zero, err
		}
		return req.Credits.Neg(), nil
	})
	step("create campaign", func() (decimal.Decimal, error) {
		_, err := campaigns.Create(ctx, campaign.CreateInput{
			AdvertiserID: advertiser.ID, Title: "Follow-up", URL: "https://example.com/2", RequiredViews: 2000,
		})
		return decimal.Zero, err
	})
}
