package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/storage"
)

const (
	MaxBatch  = 1000
	listLimit = 100

	// attempts per code before a batch gives up on collisions
	maxCodeAttempts = 5
)

type RedeemResult struct {
	Code       string          `json:"code"`
	Credits    decimal.Decimal `json:"credits"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Batch is the result of a generation run.
type Batch struct {
	Vouchers []ledger.Voucher
	CSV      []byte
	// ArchiveURL is empty when no archive storage is configured or the upload failed.
	ArchiveURL string
}

type Service struct {
	store   ledger.Store
	clock   ledger.Clock
	archive storage.Storage
}

// NewService creates the voucher service. archive may be nil.
func NewService(store ledger.Store, clock ledger.Clock, archive storage.Storage) *Service {
	return &Service{store: store, clock: clock, archive: archive}
}

// Redeem credits the voucher's face value to accountID exactly once.
func (s *Service) Redeem(ctx context.Context, code string, accountID int64) (*RedeemResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ledger.Invalid("code is required")
	}
	if accountID <= 0 {
		return nil, ledger.Invalid("account is required")
	}

	now := s.clock.Now()
	var res RedeemResult

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		v, err := tx.LockVoucher(ctx, code)
		if err != nil {
			return err
		}
		if v.IsUsed {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyUsed, code)
		}
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		if err := tx.MarkVoucherUsed(ctx, v.ID, accountID, now); err != nil {
			return err
		}

		balance, err := ledger.Post(ctx, tx, ledger.Posting{
			AccountID:   accountID,
			Balance:     ledger.BalanceCredits,
			Amount:      v.Credits,
			Type:        ledger.TxTypeVoucher,
			Description: "Voucher " + v.Code,
		}, now)
		if err != nil {
			return err
		}

		res = RedeemResult{Code: v.Code, Credits: v.Credits, NewBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("account_id", accountID).
		Str("code", res.Code).
		Str("credits", res.Credits.String()).
		Msg("voucher redeemed")

	return &res, nil
}

// Generate creates count unused vouchers worth credits each, in one transaction,
// and archives the CSV export when storage is configured.
func (s *Service) Generate(ctx context.Context, credits decimal.Decimal, count int) (*Batch, error) {
	if err := ledger.CheckAmount("credits", credits); err != nil {
		return nil, err
	}
	if count < 1 || count > MaxBatch {
		return nil, ledger.Invalid("count must be between 1 and %d", MaxBatch)
	}

	now := s.clock.Now()
	vouchers := make([]ledger.Voucher, 0, count)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		vouchers = vouchers[:0]
		for i := 0; i < count; i++ {
			v, err := createUnique(ctx, tx, credits, now)
			if err != nil {
				return err
			}
			vouchers = append(vouchers, *v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	body, err := EncodeCSV(vouchers)
	if err != nil {
		return nil, fmt.Errorf("encode voucher csv: %w", err)
	}
	batch := &Batch{Vouchers: vouchers, CSV: body}

	if s.archive != nil {
		url, err := s.archive.Put(ctx, exportKey(now), body, "text/csv")
		if err != nil {
			// the vouchers are committed; the admin still receives the CSV directly
			log.Warn().Err(err).Int("count", count).Msg("voucher batch archive failed")
		} else {
			batch.ArchiveURL = url
		}
	}

	log.Info().
		Int("count", count).
		Str("credits", credits.String()).
		Str("archive_url", batch.ArchiveURL).
		Msg("vouchers generated")

	return batch, nil
}

func createUnique(ctx context.Context, tx ledger.Tx, credits decimal.Decimal, now time.Time) (*ledger.Voucher, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate voucher code: %w", err)
		}
		v := &ledger.Voucher{Code: code, Credits: credits, CreatedAt: now}
		err = tx.CreateVoucher(ctx, v)
		if errors.Is(err, ledger.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: could not find a free voucher code", ledger.ErrDuplicateKey)
}

// List returns the latest vouchers, newest first.
func (s *Service) List(ctx context.Context) ([]ledger.Voucher, error) {
	return s.store.ListVouchers(ctx, listLimit)
}
