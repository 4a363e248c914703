package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// txTimeout bounds a whole unit of work including its row-lock waits.
const txTimeout = 10 * time.Second

const accountColumns = `id, email, username, password_hash, is_admin, credits, ad_balance,
	total_clicks, total_payouts, total_referral_earnings, referral_code, referred_by, created_at`

const campaignColumns = `id, advertiser_id, title, url, reward_per_view, duration_seconds,
	required_views, total_views, budget, spent, moderation_status, is_active, created_at`

const voucherColumns = `id, code, credits, is_used, used_by, used_at, created_at`

const withdrawalColumns = `w.id, w.user_id, w.credits, w.usd_amount, w.method_id,
	COALESCE(m.name, '') AS method_name, w.wallet_address, w.status, w.created_at, w.processed_at`

// PostgresStore is the production Store backed by sqlx and lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx2, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx2, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func lookupErr(err error, what string, key any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, what, key)
	}
	return storageErr("get "+what, err)
}

func balanceColumn(b Balance) (string, error) {
	switch b {
	case BalanceCredits:
		return "credits", nil
	case BalanceAd:
		return "ad_balance", nil
	}
	return "", fmt.Errorf("%w: unknown balance %q", ErrInvalidRequest, b)
}

func dayParam(day time.Time) string {
	return Day(day).Format("2006-01-02")
}

/* ---------- transaction ---------- */

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, a *Account) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO accounts (email, username, password_hash, is_admin, credits, ad_balance, referral_code, referred_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, a.Email, a.Username, a.PasswordHash, a.IsAdmin, a.Credits, a.AdBalance, a.ReferralCode, a.ReferredBy, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account: %w", ErrDuplicateKey, err)
		}
		return storageErr("insert account", err)
	}
	return nil
}

func (t *pgTx) GetAccountByReferralCode(ctx context.Context, code string) (*Account, error) {
	var a Account
	err := t.tx.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code)
	if err != nil {
		return nil, lookupErr(err, "referral code", code)
	}
	return &a, nil
}

func (t *pgTx) LockAccount(ctx context.Context, id int64) (*Account, error) {
	var a Account
	err := t.tx.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, lookupErr(err, "account", id)
	}
	return &a, nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID int64, b Balance, delta decimal.Decimal) (decimal.Decimal, error) {
	col, err := balanceColumn(b)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = t.tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET `+col+` = `+col+` + $2
		WHERE id = $1 AND `+col+` + $2 >= 0
		RETURNING `+col, accountID, delta)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, storageErr("update balance", err)
	}

	var exists bool
	if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID); err != nil {
		return decimal.Zero, storageErr("check account", err)
	}
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}
	return decimal.Zero, fmt.Errorf("%w: %s of account %d", ErrInsufficientFunds, col, accountID)
}

func (t *pgTx) RecordTransaction(ctx context.Context, tr *Transaction) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO transactions (account_id, amount, balance, type, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, tr.AccountID, tr.Amount, string(tr.Balance), string(tr.Type), tr.Description, tr.BalanceAfter, tr.CreatedAt).Scan(&tr.ID)
	if err != nil {
		return storageErr("insert transaction", err)
	}
	return nil
}

func (t *pgTx) exec1(ctx context.Context, op string, notFound error, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr(op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return storageErr(op+": rows affected", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func (t *pgTx) IncrementClicks(ctx context.Context, accountID int64) error {
	return t.exec1(ctx, "increment clicks", fmt.Errorf("%w: account %d", ErrNotFound, accountID),
		`UPDATE accounts SET total_clicks = total_clicks + 1 WHERE id = $1`, accountID)
}

func (t *pgTx) AddPayout(ctx context.Context, accountID int64, usd decimal.Decimal) error {
	return t.exec1(ctx, "add payout", fmt.Errorf("%w: account %d", ErrNotFound, accountID),
		`UPDATE accounts SET total_payouts = total_payouts + $2 WHERE id = $1`, accountID, usd)
}

func (t *pgTx) AddReferralEarnings(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	return t.exec1(ctx, "add referral earnings", fmt.Errorf("%w: account %d", ErrNotFound, accountID),
		`UPDATE accounts SET total_referral_earnings = total_referral_earnings + $2 WHERE id = $1`, accountID, amount)
}

func (t *pgTx) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, t.tx, key)
}

func (t *pgTx) PutSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, at)
	if err != nil {
		return storageErr("put setting", err)
	}
	return nil
}

func (t *pgTx) CreateCampaign(ctx context.Context, c *Campaign) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO campaigns (advertiser_id, title, url, reward_per_view, duration_seconds, required_views,
			total_views, budget, spent, moderation_status, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, c.AdvertiserID, c.Title, c.URL, c.RewardPerView, c.DurationSeconds, c.RequiredViews,
		c.TotalViews, c.Budget, c.Spent, string(c.ModerationStatus), c.IsActive, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return storageErr("insert campaign", err)
	}
	return nil
}

func (t *pgTx) LockCampaign(ctx context.Context, id int64) (*Campaign, error) {
	var c Campaign
	err := t.tx.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, lookupErr(err, "campaign", id)
	}
	return &c, nil
}

func (t *pgTx) RecordCampaignView(ctx context.Context, campaignID int64, reward decimal.Decimal) error {
	return t.exec1(ctx, "record campaign view", fmt.Errorf("%w: campaign %d", ErrLimitReached, campaignID), `
		UPDATE campaigns
		SET total_views = total_views + 1, spent = spent + $2
		WHERE id = $1 AND total_views < required_views AND spent + $2 <= budget
	`, campaignID, reward)
}

func (t *pgTx) SetCampaignModeration(ctx context.Context, campaignID int64, status ModerationStatus, active bool) error {
	return t.exec1(ctx, "moderate campaign", fmt.Errorf("%w: campaign %d", ErrAlreadyProcessed, campaignID), `
		UPDATE campaigns
		SET moderation_status = $2, is_active = $3
		WHERE id = $1 AND moderation_status = 'pending'
	`, campaignID, string(status), active)
}

func (t *pgTx) HasAdView(ctx context.Context, userID, campaignID int64, day time.Time) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM ad_views WHERE user_id = $1 AND campaign_id = $2 AND view_date = $3
		)
	`, userID, campaignID, dayParam(day))
	if err != nil {
		return false, storageErr("check ad view", err)
	}
	return exists, nil
}

func (t *pgTx) CreateAdView(ctx context.Context, v *AdView) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO ad_views (user_id, campaign_id, reward, view_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, v.UserID, v.CampaignID, v.Reward, dayParam(v.ViewDate), v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: campaign %d", ErrDuplicateView, v.CampaignID)
		}
		return storageErr("insert ad view", err)
	}
	return nil
}

func (t *pgTx) CreateReferralEarning(ctx context.Context, e *ReferralEarning) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO referral_earnings (referrer_id, referred_user_id, ad_view_id, credits, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.ReferrerID, e.ReferredUserID, e.AdViewID, e.Credits, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return storageErr("insert referral earning", err)
	}
	return nil
}

func (t *pgTx) CreateVoucher(ctx context.Context, v *Voucher) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO vouchers (code, credits, is_used, created_at)
		VALUES ($1, $2, false, $3)
		ON CONFLICT (code) DO NOTHING
		RETURNING id
	`, v.Code, v.Credits, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		// a conflicting code returns no row and leaves the tx usable for a retry
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return fmt.Errorf("%w: voucher code", ErrDuplicateKey)
		}
		return storageErr("insert voucher", err)
	}
	return nil
}

func (t *pgTx) LockVoucher(ctx context.Context, code string) (*Voucher, error) {
	var v Voucher
	err := t.tx.GetContext(ctx, &v, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, code)
	if err != nil {
		return nil, lookupErr(err, "voucher", code)
	}
	return &v, nil
}

func (t *pgTx) MarkVoucherUsed(ctx context.Context, voucherID, accountID int64, at time.Time) error {
	return t.exec1(ctx, "mark voucher used", fmt.Errorf("%w: voucher %d", ErrAlreadyUsed, voucherID), `
		UPDATE vouchers SET is_used = true, used_by = $2, used_at = $3
		WHERE id = $1 AND is_used = false
	`, voucherID, accountID, at)
}

func (t *pgTx) CreateWithdrawalMethod(ctx context.Context, m *WithdrawalMethod) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_methods (name, is_active) VALUES ($1, $2) RETURNING id
	`, m.Name, m.IsActive).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: withdrawal method", ErrDuplicateKey)
		}
		return storageErr("insert withdrawal method", err)
	}
	return nil
}

func (t *pgTx) GetWithdrawalMethod(ctx context.Context, id int64) (*WithdrawalMethod, error) {
	var m WithdrawalMethod
	err := t.tx.GetContext(ctx, &m, `SELECT id, name, is_active FROM withdrawal_methods WHERE id = $1`, id)
	if err != nil {
		return nil, lookupErr(err, "withdrawal method", id)
	}
	return &m, nil
}

func (t *pgTx) SetWithdrawalMethodActive(ctx context.Context, id int64, active bool) error {
	return t.exec1(ctx, "toggle withdrawal method", fmt.Errorf("%w: withdrawal method %d", ErrNotFound, id),
		`UPDATE withdrawal_methods SET is_active = $2 WHERE id = $1`, id, active)
}

func (t *pgTx) CreateWithdrawal(ctx context.Context, w *WithdrawalRequest) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_requests (user_id, credits, usd_amount, method_id, wallet_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, w.UserID, w.Credits, w.USDAmount, w.MethodID, w.WalletAddress, string(w.Status), w.CreatedAt).Scan(&w.ID)
	if err != nil {
		return storageErr("insert withdrawal", err)
	}
	return nil
}

func (t *pgTx) LockWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error) {
	var w WithdrawalRequest
	err := t.tx.GetContext(ctx, &w, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests w
		LEFT JOIN withdrawal_methods m ON m.id = w.method_id
		WHERE w.id = $1
		FOR UPDATE OF w
	`, id)
	if err != nil {
		return nil, lookupErr(err, "withdrawal", id)
	}
	return &w, nil
}

func (t *pgTx) SettleWithdrawal(ctx context.Context, id int64, status WithdrawalStatus, at time.Time) error {
	return t.exec1(ctx, "settle withdrawal", fmt.Errorf("%w: withdrawal %d", ErrAlreadyProcessed, id), `
		UPDATE withdrawal_requests SET status = $2, processed_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), at)
}

/* ---------- reads ---------- */

func getSetting(ctx context.Context, q sqlx.QueryerContext, key string) (string, bool, error) {
	var value string
	err := sqlx.GetContext(ctx, q, &value, `SELECT value FROM settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get setting", err)
	}
	return value, true, nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return getSetting(ctx2, s.db, key)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Account
	if err := s.db.GetContext(ctx2, &a, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id); err != nil {
		return nil, lookupErr(err, "account", id)
	}
	return &a, nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Account
	if err := s.db.GetContext(ctx2, &a, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email); err != nil {
		return nil, lookupErr(err, "account", email)
	}
	return &a, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID int64, p Pagination) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Transaction, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT id, account_id, amount, balance, type, description, balance_after, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, p.Limit, p.Offset)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id int64) (*Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var c Campaign
	if err := s.db.GetContext(ctx2, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id); err != nil {
		return nil, lookupErr(err, "campaign", id)
	}
	return &c, nil
}

func (s *PostgresStore) ListActiveCampaigns(ctx context.Context, limit int) ([]Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Campaign, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE is_active = true AND moderation_status = 'approved'
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, storageErr("list campaigns", err)
	}
	return items, nil
}

func (s *PostgresStore) ListAvailableCampaigns(ctx context.Context, accountID int64, day time.Time, limit int) ([]Campaign, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Campaign, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT `+campaignColumns+`
		FROM campaigns c
		WHERE c.is_active = true
		  AND c.moderation_status = 'approved'
		  AND c.total_views < c.required_views
		  AND NOT EXISTS (
			SELECT 1 FROM ad_views v
			WHERE v.campaign_id = c.id AND v.user_id = $1 AND v.view_date = $2
		  )
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $3
	`, accountID, dayParam(day), limit)
	if err != nil {
		return nil, storageErr("list available campaigns", err)
	}
	return items, nil
}

func (s *PostgresStore) ListReferralEarnings(ctx context.Context, referrerID int64) ([]ReferralEarning, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]ReferralEarning, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT id, referrer_id, referred_user_id, ad_view_id, credits, created_at
		FROM referral_earnings
		WHERE referrer_id = $1
		ORDER BY created_at DESC, id DESC
	`, referrerID)
	if err != nil {
		return nil, storageErr("list referral earnings", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVoucher(ctx context.Context, code string) (*Voucher, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v Voucher
	if err := s.db.GetContext(ctx2, &v, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code); err != nil {
		return nil, lookupErr(err, "voucher", code)
	}
	return &v, nil
}

func (s *PostgresStore) ListVouchers(ctx context.Context, limit int) ([]Voucher, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Voucher, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, storageErr("list vouchers", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWithdrawal(ctx context.Context, id int64) (*WithdrawalRequest, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var w WithdrawalRequest
	err := s.db.GetContext(ctx2, &w, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests w
		LEFT JOIN withdrawal_methods m ON m.id = w.method_id
		WHERE w.id = $1
	`, id)
	if err != nil {
		return nil, lookupErr(err, "withdrawal", id)
	}
	return &w, nil
}

func (s *PostgresStore) ListWithdrawals(ctx context.Context, f WithdrawalFilter) ([]WithdrawalRequest, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]WithdrawalRequest, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests w
		LEFT JOIN withdrawal_methods m ON m.id = w.method_id
		WHERE ($1::bigint IS NULL OR w.user_id = $1)
		ORDER BY w.created_at DESC, w.id DESC
		LIMIT $2
	`, f.UserID, f.Limit)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return items, nil
}

func (s *PostgresStore) ListWithdrawalMethods(ctx context.Context, activeOnly bool) ([]WithdrawalMethod, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]WithdrawalMethod, 0)
	err := s.db.SelectContext(ctx2, &items, `
		SELECT id, name, is_active FROM withdrawal_methods
		WHERE ($1 = false OR is_active = true)
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, storageErr("list withdrawal methods", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSettings(ctx context.Context) ([]Setting, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Setting, 0)
	if err := s.db.SelectContext(ctx2, &items, `SELECT key, value, updated_at FROM settings ORDER BY key`); err != nil {
		return nil, storageErr("list settings", err)
	}
	return items, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var st Stats
	err := s.db.GetContext(ctx2, &st, `
		SELECT
			(SELECT COUNT(*) FROM accounts) AS total_users,
			(SELECT COUNT(*) FROM campaigns WHERE is_active = true) AS active_campaigns,
			(SELECT ROUND(COALESCE(SUM(reward), 0), 2) FROM ad_views) AS total_payouts,
			(SELECT COALESCE(ROUND(AVG(credits), 2), 0) FROM accounts WHERE credits > 0) AS avg_earnings
	`)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	return &st, nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
