// Package ledgertest seeds ledger stores for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

// Now is the fixed instant used by Clock.
var Now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func Clock() ledger.FixedClock {
	return ledger.FixedClock{T: Now}
}

var seq atomic.Int64

// D parses a decimal literal and panics on bad input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// AccountOpts describes a seeded account. Zero values mean zero balances.
type AccountOpts struct {
	Credits    string
	AdBalance  string
	ReferredBy *int64
	IsAdmin    bool
}

func SeedAccount(t *testing.T, store ledger.Store, opts AccountOpts) *ledger.Account {
	t.Helper()

	n := seq.Add(1)
	a := &ledger.Account{
		Email:        fmt.Sprintf("user_%d_%d@test.com", time.Now().UnixNano(), n),
		Username:     fmt.Sprintf("user%d", n),
		PasswordHash: "hash",
		IsAdmin:      opts.IsAdmin,
		Credits:      orZero(opts.Credits),
		AdBalance:    orZero(opts.AdBalance),
		ReferralCode: Unique("R"),
		ReferredBy:   opts.ReferredBy,
		CreatedAt:    Now,
	}

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateAccount(ctx, a)
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

// CampaignOpts describes a seeded campaign. It defaults to approved and active.
type CampaignOpts struct {
	AdvertiserID  int64
	RequiredViews int64
	Reward        string
	Pending       bool
	Inactive      bool
}

func SeedCampaign(t *testing.T, store ledger.Store, opts CampaignOpts) *ledger.Campaign {
	t.Helper()

	reward := orZero(opts.Reward)
	if opts.Reward == "" {
		reward = D("0.7")
	}
	views := opts.RequiredViews
	if views == 0 {
		views = 100
	}

	c := &ledger.Campaign{
		AdvertiserID:     opts.AdvertiserID,
		Title:            "Test campaign",
		URL:              "https://example.com",
		RewardPerView:    reward,
		DurationSeconds:  5,
		RequiredViews:    views,
		Budget:           reward.Mul(decimal.NewFromInt(views)),
		ModerationStatus: ledger.ModerationApproved,
		IsActive:         !opts.Inactive,
		CreatedAt:        Now,
	}
	if opts.Pending {
		c.ModerationStatus = ledger.ModerationPending
		c.IsActive = false
	}

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateCampaign(ctx, c)
	})
	if err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return c
}

func SeedVoucher(t *testing.T, store ledger.Store, code, credits string) *ledger.Voucher {
	t.Helper()

	v := &ledger.Voucher{Code: code, Credits: D(credits), CreatedAt: Now}
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateVoucher(ctx, v)
	})
	if err != nil {
		t.Fatalf("seed voucher: %v", err)
	}
	return v
}

func SeedMethod(t *testing.T, store ledger.Store, name string, active bool) *ledger.WithdrawalMethod {
	t.Helper()

	m := &ledger.WithdrawalMethod{Name: name, IsActive: active}
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateWithdrawalMethod(ctx, m)
	})
	if err != nil {
		t.Fatalf("seed withdrawal method: %v", err)
	}
	return m
}

func SetSetting(t *testing.T, store ledger.Store, key, value string) {
	t.Helper()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutSetting(ctx, key, value, Now)
	})
	if err != nil {
		t.Fatalf("set setting: %v", err)
	}
}

// Account reloads an account or fails the test.
func Account(t *testing.T, store ledger.Reader, id int64) *ledger.Account {
	t.Helper()

	a, err := store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %d: %v", id, err)
	}
	return a
}

// Transactions returns every transaction of an account, newest first.
func Transactions(t *testing.T, store ledger.Reader, id int64) []ledger.Transaction {
	t.Helper()

	items, err := store.ListTransactions(context.Background(), id, ledger.Pagination{Limit: 1000})
	if err != nil {
		t.Fatalf("list transactions %d: %v", id, err)
	}
	return items
}

// RequireDecimal fails when got != want numerically.
func RequireDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(D(want)) {
		t.Fatalf("expected %s %s, got %s", what, want, got)
	}
}

func orZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return D(s)
}
