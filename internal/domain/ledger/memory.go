package ledger

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store. Transactions are serialized by a single
// mutex and work on a copy of the state that replaces the original on success.
// Reader methods must not be called from inside WithinTx.
type MemoryStore struct {
	mu    sync.Mutex
	st    *memState
	fault func(op string) error
}

type viewKey struct {
	userID     int64
	campaignID int64
	day        string
}

type memState struct {
	seq          map[string]int64
	accounts     map[int64]Account
	transactions []Transaction
	campaigns    map[int64]Campaign
	adViews      []AdView
	viewIndex    map[viewKey]int64
	referrals    []ReferralEarning
	vouchers     map[string]Voucher
	methods      map[int64]WithdrawalMethod
	withdrawals  map[int64]WithdrawalRequest
	settings     map[string]Setting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &memState{
		seq:         make(map[string]int64),
		accounts:    make(map[int64]Account),
		campaigns:   make(map[int64]Campaign),
		viewIndex:   make(map[viewKey]int64),
		vouchers:    make(map[string]Voucher),
		methods:     make(map[int64]WithdrawalMethod),
		withdrawals: make(map[int64]WithdrawalRequest),
		settings:    make(map[string]Setting),
	}}
}

// SetFault installs a hook consulted before every transactional write.
// A non-nil return is surfaced as a storage failure. Pass nil to clear.
func (s *MemoryStore) SetFault(fn func(op string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (st *memState) clone() *memState {
	return &memState{
		seq:          maps.Clone(st.seq),
		accounts:     maps.Clone(st.accounts),
		transactions: append([]Transaction(nil), st.transactions...),
		campaigns:    maps.Clone(st.campaigns),
		adViews:      append([]AdView(nil), st.adViews...),
		viewIndex:    maps.Clone(st.viewIndex),
		referrals:    append([]ReferralEarning(nil), st.referrals...),
		vouchers:     maps.Clone(st.vouchers),
		methods:      maps.Clone(st.methods),
		withdrawals:  maps.Clone(st.withdrawals),
		settings:     maps.Clone(st.settings),
	}
}

func (st *memState) next(table string) int64 {
	st.seq[table]++
	return st.seq[table]
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return storageErr("begin tx", err)
	}

	work := s.st.clone()
	if err := fn(ctx, &memTx{st: work, fault: s.fault}); err != nil {
		return err
	}
	s.st = work
	return nil
}

/* ---------- transaction ---------- */

type memTx struct {
	st    *memState
	fault func(op string) error
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	if err := t.fault(op); err != nil {
		return storageErr(op, err)
	}
	return nil
}

func (t *memTx) CreateAccount(_ context.Context, a *Account) error {
	if err := t.check("CreateAccount"); err != nil {
		return err
	}
	for _, existing := range t.st.accounts {
		if existing.Email == a.Email || existing.ReferralCode == a.ReferralCode {
			return fmt.Errorf("%w: account", ErrDuplicateKey)
		}
	}
	a.ID = t.st.next("accounts")
	t.st.accounts[a.ID] = *a
	return nil
}

func (t *memTx) GetAccountByReferralCode(_ context.Context, code string) (*Account, error) {
	for _, a := range t.st.accounts {
		if a.ReferralCode == code {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: referral code %v", ErrNotFound, code)
}

func (t *memTx) LockAccount(_ context.Context, id int64) (*Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return &a, nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountID int64, b Balance, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := t.check("AdjustBalance"); err != nil {
		return decimal.Zero, err
	}
	if _, err := balanceColumn(b); err != nil {
		return decimal.Zero, err
	}
	a, ok := t.st.accounts[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: account %d", ErrNotFound, accountID)
	}

	next := a.BalanceOf(b).Add(delta)
	if next.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s of account %d", ErrInsufficientFunds, b, accountID)
	}
	if b == BalanceAd {
		a.AdBalance = next
	} else {
		a.Credits = next
	}
	t.st.accounts[accountID] = a
	return next, nil
}

func (t *memTx) RecordTransaction(_ context.Context, tr *Transaction) error {
	if err := t.check("RecordTransaction"); err != nil {
		return err
	}
	tr.ID = t.st.next("transactions")
	t.st.transactions = append(t.st.transactions, *tr)
	return nil
}

func (t *memTx) updateAccount(op string, id int64, fn func(a *Account)) error {
	if err := t.check(op); err != nil {
		return err
	}
	a, ok := t.st.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	fn(&a)
	t.st.accounts[id] = a
	return nil
}

func (t *memTx) IncrementClicks(_ context.Context, accountID int64) error {
	return t.updateAccount("IncrementClicks", accountID, func(a *Account) { a.TotalClicks++ })
}

func (t *memTx) AddPayout(_ context.Context, accountID int64, usd decimal.Decimal) error {
	return t.updateAccount("AddPayout", accountID, func(a *Account) { a.TotalPayouts = a.TotalPayouts.Add(usd) })
}

func (t *memTx) AddReferralEarnings(_ context.Context, accountID int64, amount decimal.Decimal) error {
	return t.updateAccount("AddReferralEarnings", accountID, func(a *Account) {
		a.TotalReferralEarnings = a.TotalReferralEarnings.Add(amount)
	})
}

func (t *memTx) GetSetting(_ context.Context, key string) (string, bool, error) {
	st, ok := t.st.settings[key]
	return st.Value, ok, nil
}

func (t *memTx) PutSetting(_ context.Context, key, value string, at time.Time) error {
	if err := t.check("PutSetting"); err != nil {
		return err
	}
	t.st.settings[key] = Setting{Key: key, Value: value, UpdatedAt: at}
	return nil
}

func (t *memTx) CreateCampaign(_ context.Context, c *Campaign) error {
	if err := t.check("CreateCampaign"); err != nil {
		return err
	}
	c.ID = t.st.next("campaigns")
	t.st.campaigns[c.ID] = *c
	return nil
}

func (t *memTx) LockCampaign(_ context.Context, id int64) (*Campaign, error) {
	c, ok := t.st.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %d", ErrNotFound, id)
	}
	return &c, nil
}

func (t *memTx) RecordCampaignView(_ context.Context, campaignID int64, reward decimal.Decimal) error {
	if err := t.check("RecordCampaignView"); err != nil {
		return err
	}
	c, ok := t.st.campaigns[campaignID]
	if !ok || c.TotalViews >= c.RequiredViews || c.Spent.Add(reward).GreaterThan(c.Budget) {
		return fmt.Errorf("%w: campaign %d", ErrLimitReached, campaignID)
	}
	c.TotalViews++
	c.Spent = c.Spent.Add(reward)
	t.st.campaigns[campaignID] = c
	return nil
}

func (t *memTx) SetCampaignModeration(_ context.Context, campaignID int64, status ModerationStatus, active bool) error {
	if err := t.check("SetCampaignModeration"); err != nil {
		return err
	}
	c, ok := t.st.campaigns[campaignID]
	if !ok || c.ModerationStatus != ModerationPending {
		return fmt.Errorf("%w: campaign %d", ErrAlreadyProcessed, campaignID)
	}
	c.ModerationStatus = status
	c.IsActive = active
	t.st.campaigns[campaignID] = c
	return nil
}

func (t *memTx) HasAdView(_ context.Context, userID, campaignID int64, day time.Time) (bool, error) {
	_, ok := t.st.viewIndex[viewKey{userID, campaignID, dayParam(day)}]
	return ok, nil
}

func (t *memTx) CreateAdView(_ context.Context, v *AdView) error {
	if err := t.check("CreateAdView"); err != nil {
		return err
	}
	key := viewKey{v.UserID, v.CampaignID, dayParam(v.ViewDate)}
	if _, ok := t.st.viewIndex[key]; ok {
		return fmt.Errorf("%w: campaign %d", ErrDuplicateView, v.CampaignID)
	}
	v.ID = t.st.next("ad_views")
	v.ViewDate = Day(v.ViewDate)
	t.st.viewIndex[key] = v.ID
	t.st.adViews = append(t.st.adViews, *v)
	return nil
}

func (t *memTx) CreateReferralEarning(_ context.Context, e *ReferralEarning) error {
	if err := t.check("CreateReferralEarning"); err != nil {
		return err
	}
	e.ID = t.st.next("referral_earnings")
	t.st.referrals = append(t.st.referrals, *e)
	return nil
}

func (t *memTx) CreateVoucher(_ context.Context, v *Voucher) error {
	if err := t.check("CreateVoucher"); err != nil {
		return err
	}
	if _, ok := t.st.vouchers[v.Code]; ok {
		return fmt.Errorf("%w: voucher code", ErrDuplicateKey)
	}
	v.ID = t.st.next("vouchers")
	v.IsUsed = false
	t.st.vouchers[v.Code] = *v
	return nil
}

func (t *memTx) LockVoucher(_ context.Context, code string) (*Voucher, error) {
	v, ok := t.st.vouchers[code]
	if !ok {
		return nil, fmt.Errorf("%w: voucher %v", ErrNotFound, code)
	}
	return &v, nil
}

func (t *memTx) MarkVoucherUsed(_ context.Context, voucherID, accountID int64, at time.Time) error {
	if err := t.check("MarkVoucherUsed"); err != nil {
		return err
	}
	for code, v := range t.st.vouchers {
		if v.ID != voucherID {
			continue
		}
		if v.IsUsed {
			break
		}
		v.IsUsed = true
		v.UsedBy = &accountID
		v.UsedAt = &at
		t.st.vouchers[code] = v
		return nil
	}
	return fmt.Errorf("%w: voucher %d", ErrAlreadyUsed, voucherID)
}

func (t *memTx) CreateWithdrawalMethod(_ context.Context, m *WithdrawalMethod) error {
	if err := t.check("CreateWithdrawalMethod"); err != nil {
		return err
	}
	for _, existing := range t.st.methods {
		if existing.Name == m.Name {
			return fmt.Errorf("%w: withdrawal method", ErrDuplicateKey)
		}
	}
	m.ID = t.st.next("withdrawal_methods")
	t.st.methods[m.ID] = *m
	return nil
}

func (t *memTx) GetWithdrawalMethod(_ context.Context, id int64) (*WithdrawalMethod, error) {
	m, ok := t.st.methods[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal method %d", ErrNotFound, id)
	}
	return &m, nil
}

func (t *memTx) SetWithdrawalMethodActive(_ context.Context, id int64, active bool) error {
	if err := t.check("SetWithdrawalMethodActive"); err != nil {
		return err
	}
	m, ok := t.st.methods[id]
	if !ok {
		return fmt.Errorf("%w: withdrawal method %d", ErrNotFound, id)
	}
	m.IsActive = active
	t.st.methods[id] = m
	return nil
}

func (t *memTx) CreateWithdrawal(_ context.Context, w *WithdrawalRequest) error {
	if err := t.check("CreateWithdrawal"); err != nil {
		return err
	}
	w.ID = t.st.next("withdrawal_requests")
	t.st.withdrawals[w.ID] = *w
	return nil
}

func (t *memTx) LockWithdrawal(_ context.Context, id int64) (*WithdrawalRequest, error) {
	w, ok := t.st.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %d", ErrNotFound, id)
	}
	w.MethodName = t.st.methods[w.MethodID].Name
	return &w, nil
}

func (t *memTx) SettleWithdrawal(_ context.Context, id int64, status WithdrawalStatus, at time.Time) error {
	if err := t.check("SettleWithdrawal"); err != nil {
		return err
	}
	w, ok := t.st.withdrawals[id]
	if !ok || w.Status != WithdrawalPending {
		return fmt.Errorf("%w: withdrawal %d", ErrAlreadyProcessed, id)
	}
	w.Status = status
	w.ProcessedAt = &at
	t.st.withdrawals[id] = w
	return nil
}

/* ---------- reads ---------- */

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.st.settings[key]
	return st.Value, ok, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return &a, nil
}

func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.st.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: account %v", ErrNotFound, email)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T(nil), items[offset:end]...)
}

func (s *MemoryStore) ListTransactions(_ context.Context, accountID int64, p Pagination) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Transaction, 0)
	for i := len(s.st.transactions) - 1; i >= 0; i-- {
		if s.st.transactions[i].AccountID == accountID {
			items = append(items, s.st.transactions[i])
		}
	}
	return page(items, p.Limit, p.Offset), nil
}

func (s *MemoryStore) GetCampaign(_ context.Context, id int64) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign %d", ErrNotFound, id)
	}
	return &c, nil
}

func (s *MemoryStore) sortedCampaigns(keep func(c Campaign) bool) []Campaign {
	items := make([]Campaign, 0)
	for _, c := range s.st.campaigns {
		if keep(c) {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

func (s *MemoryStore) ListActiveCampaigns(_ context.Context, limit int) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.sortedCampaigns(func(c Campaign) bool { return c.Viewable() })
	return page(items, limit, 0), nil
}

func (s *MemoryStore) ListAvailableCampaigns(_ context.Context, accountID int64, day time.Time, limit int) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := dayParam(day)
	items := s.sortedCampaigns(func(c Campaign) bool {
		_, viewed := s.st.viewIndex[viewKey{accountID, c.ID, d}]
		return c.Viewable() && c.TotalViews < c.RequiredViews && !viewed
	})
	return page(items, limit, 0), nil
}

func (s *MemoryStore) ListReferralEarnings(_ context.Context, referrerID int64) ([]ReferralEarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ReferralEarning, 0)
	for i := len(s.st.referrals) - 1; i >= 0; i-- {
		if s.st.referrals[i].ReferrerID == referrerID {
			items = append(items, s.st.referrals[i])
		}
	}
	return items, nil
}

func (s *MemoryStore) GetVoucher(_ context.Context, code string) (*Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.vouchers[code]
	if !ok {
		return nil, fmt.Errorf("%w: voucher %v", ErrNotFound, code)
	}
	return &v, nil
}

func (s *MemoryStore) ListVouchers(_ context.Context, limit int) ([]Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Voucher, 0, len(s.st.vouchers))
	for _, v := range s.st.vouchers {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return page(items, limit, 0), nil
}

func (s *MemoryStore) GetWithdrawal(_ context.Context, id int64) (*WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.withdrawals[id]
	if !ok {
		return nil, fmt.Errorf("%w: withdrawal %d", ErrNotFound, id)
	}
	w.MethodName = s.st.methods[w.MethodID].Name
	return &w, nil
}

func (s *MemoryStore) ListWithdrawals(_ context.Context, f WithdrawalFilter) ([]WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]WithdrawalRequest, 0)
	for _, w := range s.st.withdrawals {
		if f.UserID != nil && w.UserID != *f.UserID {
			continue
		}
		w.MethodName = s.st.methods[w.MethodID].Name
		items = append(items, w)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return page(items, f.Limit, 0), nil
}

func (s *MemoryStore) ListWithdrawalMethods(_ context.Context, activeOnly bool) ([]WithdrawalMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]WithdrawalMethod, 0, len(s.st.methods))
	for _, m := range s.st.methods {
		if activeOnly && !m.IsActive {
			continue
		}
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) ListSettings(_ context.Context) ([]Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Setting, 0, len(s.st.settings))
	for _, st := range s.st.settings {
		items = append(items, st)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalUsers: int64(len(s.st.accounts))}
	for _, c := range s.st.campaigns {
		if c.IsActive {
			st.ActiveCampaigns++
		}
	}
	for _, v := range s.st.adViews {
		st.TotalPayouts = st.TotalPayouts.Add(v.Reward)
	}
	st.TotalPayouts = st.TotalPayouts.Round(2)

	sum, n := decimal.Zero, int64(0)
	for _, a := range s.st.accounts {
		if a.Credits.IsPositive() {
			sum = sum.Add(a.Credits)
			n++
		}
	}
	if n > 0 {
		st.AvgEarnings = sum.Div(decimal.NewFromInt(n)).Round(2)
	}
	return &st, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
