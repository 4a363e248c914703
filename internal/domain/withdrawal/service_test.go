package withdrawal_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger/ledgertest"
	"github.com/ptcearn/ptcearn-api/internal/domain/withdrawal"
)

func setup(t *testing.T, credits string) (*ledger.MemoryStore, *withdrawal.Service, *ledger.Account, *ledger.WithdrawalMethod) {
	t.Helper()
	store := ledger.NewMemoryStore()
	acc := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{Credits: credits})
	method := ledgertest.SeedMethod(t, store, "PayPal", true)
	svc := withdrawal.NewService(store, ledger.NewSettings(ledger.DefaultSettings()), ledgertest.Clock())
	return store, svc, acc, method
}

func create(t *testing.T, svc *withdrawal.Service, accountID, methodID int64, credits string) *ledger.WithdrawalRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), withdrawal.CreateInput{
		AccountID:     accountID,
		Credits:       ledgertest.D(credits),
		MethodID:      methodID,
		WalletAddress: "user@example.com",
	})
	requireNoError(t, err)
	return req
}

/* =========================
   Test 1: Create
   ========================= */

func TestCreateReservesCredits(t *testing.T) {
	store, svc, acc, method := setup(t, "120")

	req := create(t, svc, acc.ID, method.ID, "50")

	if req.Status != ledger.WithdrawalPending || req.MethodName != "PayPal" {
		t.Fatalf("unexpected request %+v", req)
	}
	ledgertest.RequireDecimal(t, "usd amount", req.USDAmount, "0.5")
	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "70")

	txs := ledgertest.Transactions(t, store, acc.ID)
	if len(txs) != 1 || txs[0].Type != ledger.TxTypeWithdrawal {
		t.Fatalf("unexpected transactions %+v", txs)
	}
	ledgertest.RequireDecimal(t, "transaction amount", txs[0].Amount, "-50")

	history, err := svc.History(context.Background(), acc.ID)
	requireNoError(t, err)
	if len(history) != 1 || history[0].ID != req.ID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestCreateUsesCurrentRate(t *testing.T) {
	store, svc, acc, method := setup(t, "100")
	ledgertest.SetSetting(t, store, ledger.SettingConversionRate, "40")

	req := create(t, svc, acc.ID, method.ID, "10")
	ledgertest.RequireDecimal(t, "usd amount", req.USDAmount, "0.25")
}

func TestCreateFallsBackOnUnusableRate(t *testing.T) {
	for _, raw := range []string{"0", "-3", "abc"} {
		t.Run(raw, func(t *testing.T) {
			store, svc, acc, method := setup(t, "100")
			ledgertest.SetSetting(t, store, ledger.SettingConversionRate, raw)

			req := create(t, svc, acc.ID, method.ID, "30")
			ledgertest.RequireDecimal(t, "usd amount", req.USDAmount, "0.3")
		})
	}
}

func TestCreateInsufficientFundsBoundary(t *testing.T) {
	store, svc, acc, method := setup(t, "10")

	_, err := svc.Create(context.Background(), withdrawal.CreateInput{
		AccountID: acc.ID, Credits: ledgertest.D("10.000001"), MethodID: method.ID, WalletAddress: "w",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "10")
	if n := len(ledgertest.Transactions(t, store, acc.ID)); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}

	create(t, svc, acc.ID, method.ID, "10")
	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "0")
}

func TestCreateRejections(t *testing.T) {
	store, svc, acc, method := setup(t, "100")
	disabled := ledgertest.SeedMethod(t, store, "Bitcoin", false)

	cases := []struct {
		name string
		in   withdrawal.CreateInput
		want ledger.Kind
	}{
		{"zero credits", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("0"), MethodID: method.ID, WalletAddress: "w"}, ledger.KindInvalidRequest},
		{"negative credits", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("-1"), MethodID: method.ID, WalletAddress: "w"}, ledger.KindInvalidRequest},
		{"seven decimal places", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("0.0000005"), MethodID: method.ID, WalletAddress: "w"}, ledger.KindInvalidRequest},
		{"missing method", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("1"), WalletAddress: "w"}, ledger.KindInvalidRequest},
		{"blank wallet", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("1"), MethodID: method.ID, WalletAddress: "  "}, ledger.KindInvalidRequest},
		{"unknown method", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("1"), MethodID: 999, WalletAddress: "w"}, ledger.KindNotFound},
		{"inactive method", withdrawal.CreateInput{AccountID: acc.ID, Credits: ledgertest.D("1"), MethodID: disabled.ID, WalletAddress: "w"}, ledger.KindInvalidRequest},
		{"unknown account", withdrawal.CreateInput{AccountID: 999, Credits: ledgertest.D("1"), MethodID: method.ID, WalletAddress: "w"}, ledger.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.in)
			if got := ledger.KindOf(err); got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "100")
}

func TestCreateRejectsUnstorableAmounts(t *testing.T) {
	store, svc, acc, method := setup(t, "5")

	for _, credits := range []string{"0.0000005", "0.0000004", "1.1234567"} {
		_, err := svc.Create(context.Background(), withdrawal.CreateInput{
			AccountID: acc.ID, Credits: ledgertest.D(credits), MethodID: method.ID, WalletAddress: "w",
		})
		if ledger.KindOf(err) != ledger.KindInvalidRequest {
			t.Fatalf("%s: expected %s, got %v", credits, ledger.KindInvalidRequest, err)
		}
	}

	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "5")
	if n := len(ledgertest.Transactions(t, store, acc.ID)); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
	history, err := svc.History(context.Background(), acc.ID)
	requireNoError(t, err)
	if len(history) != 0 {
		t.Fatalf("expected no requests, got %+v", history)
	}

	// trailing zeros beyond the storage scale are still exact
	req := create(t, svc, acc.ID, method.ID, "1.50000000")
	ledgertest.RequireDecimal(t, "credits", req.Credits, "1.5")
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	store, svc, acc, method := setup(t, "10")

	const goroutines = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), withdrawal.CreateInput{
				AccountID: acc.ID, Credits: ledgertest.D("4"), MethodID: method.ID, WalletAddress: "w",
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 2 {
		t.Fatalf("expected 2 successes, got %d", success)
	}
	ledgertest.RequireDecimal(t, "credits", ledgertest.Account(t, store, acc.ID).Credits, "2")
}

/* =========================
   Test 2: Adjudicate
   ========================= */

func TestCompleteAddsPayout(t *testing.T) {
	store, svc, acc, method := setup(t, "100")
	req := create(t, svc, acc.ID, method.ID, "80")

	done, err := svc.Adjudicate(context.Background(), req.ID, ledger.WithdrawalCompleted)
	requireNoError(t, err)
	if done.Status != ledger.WithdrawalCompleted || done.ProcessedAt == nil {
		t.Fatalf("unexpected request %+v", done)
	}

	got := ledgertest.Account(t, store, acc.ID)
	ledgertest.RequireDecimal(t, "credits", got.Credits, "20")
	ledgertest.RequireDecimal(t, "payouts", got.TotalPayouts, "0.8")

	_, err = svc.Adjudicate(context.Background(), req.ID, ledger.WithdrawalRejected)
	if !errors.Is(err, ledger.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	got = ledgertest.Account(t, store, acc.ID)
	ledgertest.RequireDecimal(t, "credits after re-adjudication", got.Credits, "20")
	ledgertest.RequireDecimal(t, "payouts after re-adjudication", got.TotalPayouts, "0.8")
}

func TestRejectRefundsCredits(t *testing.T) {
	store, svc, acc, method := setup(t, "100")
	req := create(t, svc, acc.ID, method.ID, "30")

	_, err := svc.Adjudicate(context.Background(), req.ID, ledger.WithdrawalRejected)
	requireNoError(t, err)

	got := ledgertest.Account(t, store, acc.ID)
	ledgertest.RequireDecimal(t, "credits", got.Credits, "100")
	if !got.TotalPayouts.IsZero() {
		t.Fatalf("expected no payouts, got %s", got.TotalPayouts)
	}

	txs := ledgertest.Transactions(t, store, acc.ID)
	if len(txs) != 2 || txs[0].Type != ledger.TxTypeWithdrawalRefund {
		t.Fatalf("unexpected transactions %+v", txs)
	}

	_, err = svc.Adjudicate(context.Background(), req.ID, ledger.WithdrawalCompleted)
	if !errors.Is(err, ledger.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if got := ledgertest.Account(t, store, acc.ID); !got.TotalPayouts.IsZero() {
		t.Fatalf("expected payouts untouched, got %s", got.TotalPayouts)
	}
}

func TestAdjudicateRejections(t *testing.T) {
	_, svc, acc, method := setup(t, "10")
	req := create(t, svc, acc.ID, method.ID, "1")

	_, err := svc.Adjudicate(context.Background(), 999, ledger.WithdrawalCompleted)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = svc.Adjudicate(context.Background(), req.ID, ledger.WithdrawalPending)
	if !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestConcurrentAdjudicationSettlesOnce(t *testing.T) {
	store, svc, acc, method := setup(t, "50")
	req := create(t, svc, acc.ID, method.ID, "50")

	decisions := []ledger.WithdrawalStatus{
		ledger.WithdrawalCompleted, ledger.WithdrawalRejected,
		ledger.WithdrawalCompleted, ledger.WithdrawalRejected,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []ledger.WithdrawalStatus

	for _, d := range decisions {
		wg.Add(1)
		go func(d ledger.WithdrawalStatus) {
			defer wg.Done()
			_, err := svc.Adjudicate(context.Background(), req.ID, d)
			if err == nil {
				mu.Lock()
				winners = append(winners, d)
				mu.Unlock()
				return
			}
			if !errors.Is(err, ledger.ErrAlreadyProcessed) {
				t.Errorf("unexpected error: %v", err)
			}
		}(d)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly 1 winner, got %v", winners)
	}

	got := ledgertest.Account(t, store, acc.ID)
	if winners[0] == ledger.WithdrawalCompleted {
		ledgertest.RequireDecimal(t, "credits", got.Credits, "0")
		ledgertest.RequireDecimal(t, "payouts", got.TotalPayouts, "0.5")
	} else {
		ledgertest.RequireDecimal(t, "credits", got.Credits, "50")
		ledgertest.RequireDecimal(t, "payouts", got.TotalPayouts, "0")
	}
}

/* =========================
   Test 3: Methods and info
   ========================= */

func TestInfoListsActiveMethodsAndRate(t *testing.T) {
	store, svc, _, method := setup(t, "0")
	ledgertest.SeedMethod(t, store, "Bitcoin", false)

	info, err := svc.Info(context.Background())
	requireNoError(t, err)
	if len(info.Methods) != 1 || info.Methods[0].ID != method.ID {
		t.Fatalf("unexpected methods %+v", info.Methods)
	}
	ledgertest.RequireDecimal(t, "rate", info.ConversionRate, "100")

	toggled, err := svc.SetMethodActive(context.Background(), method.ID, false)
	requireNoError(t, err)
	if toggled.IsActive {
		t.Fatal("expected method disabled")
	}

	all, err := svc.Methods(context.Background())
	requireNoError(t, err)
	if len(all) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(all))
	}

	_, err = svc.SetMethodActive(context.Background(), 999, true)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
