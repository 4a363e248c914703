package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Posting is a single balance change and the description for its audit row.
type Posting struct {
	AccountID   int64
	Balance     Balance
	Amount      decimal.Decimal
	Type        TxType
	Description string
}

// Post adjusts the balance and appends exactly one Transaction, inside tx.
// The caller is responsible for locking the account and committing.
func Post(ctx context.Context, tx Tx, p Posting, at time.Time) (decimal.Decimal, error) {
	if p.Amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero posting for account %d", ErrInvalidRequest, p.AccountID)
	}

	balance, err := tx.AdjustBalance(ctx, p.AccountID, p.Balance, p.Amount)
	if err != nil {
		return decimal.Zero, err
	}

	err = tx.RecordTransaction(ctx, &Transaction{
		AccountID:    p.AccountID,
		Amount:       p.Amount,
		Balance:      p.Balance,
		Type:         p.Type,
		Description:  p.Description,
		BalanceAfter: balance,
		CreatedAt:    at,
	})
	if err != nil {
		return decimal.Zero, err
	}

	return balance, nil
}

// Service serves the read side of the ledger.
type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

// ListTransactions returns paginated transaction history for an account, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListTransactions(ctx, accountID, Pagination{Limit: limit, Offset: offset})
}

func (s *Service) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// ListReferralEarnings returns the bonuses an account earned from its referrals.
func (s *Service) ListReferralEarnings(ctx context.Context, referrerID int64) ([]ReferralEarning, error) {
	return s.store.ListReferralEarnings(ctx, referrerID)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}
