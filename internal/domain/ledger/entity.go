package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance names one of the two monetary balances an account holds.
type Balance string

const (
	BalanceCredits Balance = "credits"
	BalanceAd      Balance = "ad_balance"
)

// TxType defines supported ledger transaction types.
type TxType string

const (
	TxTypeAdView           TxType = "ad_view"
	TxTypeReferralBonus    TxType = "referral_bonus"
	TxTypeVoucher          TxType = "voucher"
	TxTypeWithdrawal       TxType = "withdrawal"
	TxTypeWithdrawalRefund TxType = "withdrawal_refund"
	TxTypeCampaignCreate   TxType = "campaign_create"
	TxTypeCampaignRefund   TxType = "campaign_refund"
	TxTypeAdTopUp          TxType = "ad_topup"
)

type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// Account holds a user's identity and balances.
// Monetary fields change only through Tx.AdjustBalance and friends.
type Account struct {
	ID                    int64           `db:"id" json:"id"`
	Email                 string          `db:"email" json:"email"`
	Username              string          `db:"username" json:"username"`
	PasswordHash          string          `db:"password_hash" json:"-"`
	IsAdmin               bool            `db:"is_admin" json:"is_admin"`
	Credits               decimal.Decimal `db:"credits" json:"credits"`
	AdBalance             decimal.Decimal `db:"ad_balance" json:"ad_balance"`
	TotalClicks           int64           `db:"total_clicks" json:"total_clicks"`
	TotalPayouts          decimal.Decimal `db:"total_payouts" json:"total_payouts"`
	TotalReferralEarnings decimal.Decimal `db:"total_referral_earnings" json:"total_referral_earnings"`
	ReferralCode          string          `db:"referral_code" json:"referral_code"`
	ReferredBy            *int64          `db:"referred_by" json:"referred_by,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

// BalanceOf returns the value of the named balance.
func (a *Account) BalanceOf(b Balance) decimal.Decimal {
	if b == BalanceAd {
		return a.AdBalance
	}
	return a.Credits
}

// Transaction is an immutable ledger row. Amount is signed.
type Transaction struct {
	ID           int64           `db:"id" json:"id"`
	AccountID    int64           `db:"account_id" json:"account_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Balance      Balance         `db:"balance" json:"balance"`
	Type         TxType          `db:"type" json:"type"`
	Description  string          `db:"description" json:"description"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type Campaign struct {
	ID               int64            `db:"id" json:"id"`
	AdvertiserID     int64            `db:"advertiser_id" json:"advertiser_id"`
	Title            string           `db:"title" json:"title"`
	URL              string           `db:"url" json:"url"`
	RewardPerView    decimal.Decimal  `db:"reward_per_view" json:"reward_per_view"`
	DurationSeconds  int              `db:"duration_seconds" json:"duration_seconds"`
	RequiredViews    int64            `db:"required_views" json:"required_views"`
	TotalViews       int64            `db:"total_views" json:"total_views"`
	Budget           decimal.Decimal  `db:"budget" json:"budget"`
	Spent            decimal.Decimal  `db:"spent" json:"spent"`
	ModerationStatus ModerationStatus `db:"moderation_status" json:"moderation_status"`
	IsActive         bool             `db:"is_active" json:"is_active"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Viewable reports whether the campaign can currently pay out views.
func (c *Campaign) Viewable() bool {
	return c.IsActive && c.ModerationStatus == ModerationApproved
}

// AdView records one rewarded view. ViewDate is the UTC calendar day.
type AdView struct {
	ID         int64           `db:"id" json:"id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	CampaignID int64           `db:"campaign_id" json:"campaign_id"`
	Reward     decimal.Decimal `db:"reward" json:"reward"`
	ViewDate   time.Time       `db:"view_date" json:"view_date"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type ReferralEarning struct {
	ID             int64           `db:"id" json:"id"`
	ReferrerID     int64           `db:"referrer_id" json:"referrer_id"`
	ReferredUserID int64           `db:"referred_user_id" json:"referred_user_id"`
	AdViewID       int64           `db:"ad_view_id" json:"ad_view_id"`
	Credits        decimal.Decimal `db:"credits" json:"credits"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type Voucher struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Credits   decimal.Decimal `db:"credits" json:"credits"`
	IsUsed    bool            `db:"is_used" json:"is_used"`
	UsedBy    *int64          `db:"used_by" json:"used_by,omitempty"`
	UsedAt    *time.Time      `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type WithdrawalMethod struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// WithdrawalRequest is created pending with its credits already debited.
type WithdrawalRequest struct {
	ID            int64            `db:"id" json:"id"`
	UserID        int64            `db:"user_id" json:"user_id"`
	Credits       decimal.Decimal  `db:"credits" json:"credits"`
	USDAmount     decimal.Decimal  `db:"usd_amount" json:"usd_amount"`
	MethodID      int64            `db:"method_id" json:"method_id"`
	MethodName    string           `db:"method_name" json:"method_name,omitempty"`
	WalletAddress string           `db:"wallet_address" json:"wallet_address"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
}

type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Stats is the platform-wide summary.
type Stats struct {
	TotalUsers      int64           `db:"total_users" json:"total_users"`
	ActiveCampaigns int64           `db:"active_campaigns" json:"active_campaigns"`
	TotalPayouts    decimal.Decimal `db:"total_payouts" json:"total_payouts"`
	AvgEarnings     decimal.Decimal `db:"avg_earnings" json:"avg_earnings"`
}

// WithdrawalFilter narrows ListWithdrawals. A nil UserID lists everyone.
type WithdrawalFilter struct {
	UserID *int64
	Limit  int
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}
