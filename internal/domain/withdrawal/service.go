package withdrawal

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

const (
	historyLimit = 50
	listLimit    = 100

	// usdScale is the number of decimal places kept on usd_amount.
	usdScale = 6
)

type CreateInput struct {
	AccountID     int64
	Credits       decimal.Decimal
	MethodID      int64
	WalletAddress string
}

// Info is what a user needs before requesting a payout.
type Info struct {
	Methods        []ledger.WithdrawalMethod `json:"methods"`
	ConversionRate decimal.Decimal           `json:"credits_to_usd_rate"`
}

type Service struct {
	store    ledger.Store
	settings *ledger.Settings
	clock    ledger.Clock
}

func NewService(store ledger.Store, settings *ledger.Settings, clock ledger.Clock) *Service {
	return &Service{store: store, settings: settings, clock: clock}
}

// Create reserves the credits immediately and files a pending request.
func (s *Service) Create(ctx context.Context, in CreateInput) (*ledger.WithdrawalRequest, error) {
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	switch {
	case in.AccountID <= 0:
		return nil, ledger.Invalid("account is required")
	case in.MethodID <= 0:
		return nil, ledger.Invalid("method_id is required")
	case in.WalletAddress == "":
		return nil, ledger.Invalid("wallet_address is required")
	}
	if err := ledger.CheckAmount("credits", in.Credits); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var req ledger.WithdrawalRequest

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		method, err := tx.GetWithdrawalMethod(ctx, in.MethodID)
		if err != nil {
			return err
		}
		if !method.IsActive {
			return ledger.Invalid("withdrawal method %q is not available", method.Name)
		}

		acc, err := tx.LockAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if acc.Credits.LessThan(in.Credits) {
			return fmt.Errorf("%w: have %s, need %s", ledger.ErrInsufficientFunds, acc.Credits, in.Credits)
		}

		rate, err := s.settings.ConversionRate(ctx, tx)
		if err != nil {
			return err
		}

		req = ledger.WithdrawalRequest{
			UserID:        acc.ID,
			Credits:       in.Credits,
			USDAmount:     in.Credits.DivRound(rate, usdScale),
			MethodID:      method.ID,
			MethodName:    method.Name,
			WalletAddress: in.WalletAddress,
			Status:        ledger.WithdrawalPending,
			CreatedAt:     now,
		}
		if err := tx.CreateWithdrawal(ctx, &req); err != nil {
			return err
		}

		_, err = ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   acc.ID,
			Balance:     ledger.BalanceCredits,
			Amount:      in.Credits.Neg(),
			Type:        ledger.TxTypeWithdrawal,
			Description: fmt.Sprintf("Withdrawal #%d", req.ID),
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", req.UserID).
		Int64("withdrawal_id", req.ID).
		Str("credits", req.Credits.String()).
		Str("usd_amount", req.USDAmount.String()).
		Msg("withdrawal requested")

	return &req, nil
}

// Adjudicate moves a pending request to completed or rejected. A rejection
// refunds the reserved credits; a completion adds the USD amount to payouts.
func (s *Service) Adjudicate(ctx context.Context, requestID int64, decision ledger.WithdrawalStatus) (*ledger.WithdrawalRequest, error) {
	if requestID <= 0 {
		return nil, ledger.Invalid("request_id is required")
	}
	if decision != ledger.WithdrawalCompleted && decision != ledger.WithdrawalRejected {
		return nil, ledger.Invalid("status must be completed or rejected")
	}

	now := s.clock.Now()
	var req *ledger.WithdrawalRequest

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		req, err = tx.LockWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != ledger.WithdrawalPending {
			return fmt.Errorf("%w: withdrawal %d is %s", ledger.ErrAlreadyProcessed, req.ID, req.Status)
		}
		if _, err := tx.LockAccount(ctx, req.UserID); err != nil {
			return err
		}
		if err := tx.SettleWithdrawal(ctx, req.ID, decision, now); err != nil {
			return err
		}

		if decision == ledger.WithdrawalCompleted {
			if err := tx.AddPayout(ctx, req.UserID, req.USDAmount); err != nil {
				return err
			}
		} else {
			_, err := ledger.Post(ctx, tx, ledger.Posting{
				AccountID:   req.UserID,
				Balance:     ledger.BalanceCredits,
				Amount:      req.Credits,
				Type:        ledger.TxTypeWithdrawalRefund,
				Description: fmt.Sprintf("Withdrawal #%d rejected", req.ID),
			}, now)
			if err != nil {
				return err
			}
		}

		req.Status = decision
		req.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := log.Info()
	if decision == ledger.WithdrawalRejected {
		event = log.Warn()
	}
	event.
		Int64("account_id", req.UserID).
		Int64("withdrawal_id", req.ID).
		Str("status", string(decision)).
		Str("credits", req.Credits.String()).
		Msg("withdrawal adjudicated")

	return req, nil
}

// History returns the caller's latest requests.
func (s *Service) History(ctx context.Context, accountID int64) ([]ledger.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, ledger.WithdrawalFilter{UserID: &accountID, Limit: historyLimit})
}

// List returns the latest requests across all accounts.
func (s *Service) List(ctx context.Context) ([]ledger.WithdrawalRequest, error) {
	return s.store.ListWithdrawals(ctx, ledger.WithdrawalFilter{Limit: listLimit})
}

func (s *Service) Info(ctx context.Context) (*Info, error) {
	methods, err := s.store.ListWithdrawalMethods(ctx, true)
	if err != nil {
		return nil, err
	}
	rate, err := s.settings.ConversionRate(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return &Info{Methods: methods, ConversionRate: rate}, nil
}

func (s *Service) Methods(ctx context.Context) ([]ledger.WithdrawalMethod, error) {
	return s.store.ListWithdrawalMethods(ctx, false)
}

// SetMethodActive toggles whether users may pick a payout method.
func (s *Service) SetMethodActive(ctx context.Context, methodID int64, active bool) (*ledger.WithdrawalMethod, error) {
	var m *ledger.WithdrawalMethod
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.SetWithdrawalMethodActive(ctx, methodID, active); err != nil {
			return err
		}
		var err error
		m, err = tx.GetWithdrawalMethod(ctx, methodID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("method_id", m.ID).Bool("is_active", m.IsActive).Msg("withdrawal method toggled")
	return m, nil
}
