package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transactional ledger store.
// Every balance mutation happens inside WithinTx; fn's error rolls everything back.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// SettingGetter is satisfied by both Tx and Reader so settings can be read
// inside or outside a transaction.
type SettingGetter interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Tx is a unit of work. Lock* methods take row locks held until commit.
type Tx interface {
	SettingGetter

	// Accounts
	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByReferralCode(ctx context.Context, code string) (*Account, error)
	LockAccount(ctx context.Context, id int64) (*Account, error)

	// AdjustBalance adds delta to the balance and returns the new value.
	// Returns ErrInsufficientFunds if the result would be negative.
	AdjustBalance(ctx context.Context, accountID int64, b Balance, delta decimal.Decimal) (decimal.Decimal, error)
	RecordTransaction(ctx context.Context, t *Transaction) error
	IncrementClicks(ctx context.Context, accountID int64) error
	AddPayout(ctx context.Context, accountID int64, usd decimal.Decimal) error
	AddReferralEarnings(ctx context.Context, accountID int64, amount decimal.Decimal) error

	PutSetting(ctx context.Context, key, value string, at time.Time) error

	// Campaigns and views
	CreateCampaign(ctx context.Context, c *Campaign) error
	LockCampaign(ctx context.Context, id int64) (*Campaign, error)
	// RecordCampaignView bumps total_views and spent, failing with ErrLimitReached
	// when either cap would be exceeded.
	RecordCampaignView(ctx context.Context, campaignID int64, reward decimal.Decimal) error
	// SetCampaignModeration only moves a pending campaign; otherwise ErrAlreadyProcessed.
	SetCampaignModeration(ctx context.Context, campaignID int64, status ModerationStatus, active bool) error
	HasAdView(ctx context.Context, userID, campaignID int64, day time.Time) (bool, error)
	CreateAdView(ctx context.Context, v *AdView) error
	CreateReferralEarning(ctx context.Context, e *ReferralEarning) error

	// Vouchers
	CreateVoucher(ctx context.Context, v *Voucher) error
	LockVoucher(ctx context.Context, code string) (*Voucher, error)
	// MarkVoucherUsed only flips an unused voucher; otherwise ErrAlreadyUsed.
	MarkVoucherUsed(ctx context.Context, voucherID, accountID int64, at time.Time) error

	// Withdrawals
	CreateWithdrawalMethod(ctx context.Context, m *WithdrawalMethod) error
	GetWithdrawalMethod(ctx context.Context, id int64) (*WithdrawalMethod, error)
	SetWithdrawalMethodActive(ctx context.Context, id int64, active bool) error
	CreateWithdrawal(ctx context.Context, w *WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error)
	// SettleWithdrawal only moves a pending request; otherwise ErrAlreadyProcessed.
	SettleWithdrawal(ctx context.Context, id int64, status WithdrawalStatus, at time.Time) error
}

// Reader serves the read paths that never mutate balances.
type Reader interface {
	SettingGetter

	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	ListTransactions(ctx context.Context, accountID int64, p Pagination) ([]Transaction, error)

	GetCampaign(ctx context.Context, id int64) (*Campaign, error)
	ListActiveCampaigns(ctx context.Context, limit int) ([]Campaign, error)
	ListAvailableCampaigns(ctx context.Context, accountID int64, day time.Time, limit int) ([]Campaign, error)
	ListReferralEarnings(ctx context.Context, referrerID int64) ([]ReferralEarning, error)

	GetVoucher(ctx context.Context, code string) (*Voucher, error)
	ListVouchers(ctx context.Context, limit int) ([]Voucher, error)

	GetWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]WithdrawalRequest, error)
	ListWithdrawalMethods(ctx context.Context, activeOnly bool) ([]WithdrawalMethod, error)

	ListSettings(ctx context.Context) ([]Setting, error)
	Stats(ctx context.Context) (*Stats, error)
}
