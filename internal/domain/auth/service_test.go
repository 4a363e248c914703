package auth

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger/ledgertest"
	"github.com/ptcearn/ptcearn-api/internal/pkg/jwt"
	"github.com/ptcearn/ptcearn-api/internal/pkg/password"
	"github.com/ptcearn/ptcearn-api/internal/pkg/revocation"
)

func TestMain(m *testing.M) {
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

func newTestService(store ledger.Store) (*Service, *jwt.Service) {
	jwtService := jwt.NewService("secret", time.Hour)
	return NewService(store, jwtService, revocation.NewStore(nil), ledgertest.Clock()), jwtService
}

func TestRegisterCreatesAccount(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, jwtService := newTestService(store)

	res, err := svc.Register(context.Background(), &RegisterRequest{
		Email:    "  Alice@Example.COM ",
		Password: "secret1",
		Username: " alice ",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if res.User.Email != "alice@example.com" || res.User.Username != "alice" {
		t.Fatalf("unexpected profile %+v", res.User)
	}
	if len(res.User.ReferralCode) != ReferralCodeLength {
		t.Fatalf("expected %d-char referral code, got %q", ReferralCodeLength, res.User.ReferralCode)
	}
	if !res.User.Credits.IsZero() || !res.User.AdBalance.IsZero() {
		t.Fatalf("expected zero balances, got %+v", res.User)
	}

	claims, err := jwtService.ValidateAccessToken(res.SessionToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.AccountID != res.User.ID || claims.Role != jwt.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}

	stored := ledgertest.Account(t, store, res.User.ID)
	if stored.PasswordHash == "secret1" || !password.Verify("secret1", stored.PasswordHash) {
		t.Fatal("password must be stored hashed")
	}
	if stored.ReferredBy != nil {
		t.Fatalf("expected no referrer, got %d", *stored.ReferredBy)
	}
}

func TestRegisterWithReferralCode(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, _ := newTestService(store)
	referrer := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{})

	res, err := svc.Register(context.Background(), &RegisterRequest{
		Email: "bob@example.com", Password: "secret1", Username: "bob", ReferralCode: " " + referrer.ReferralCode,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	got := ledgertest.Account(t, store, res.User.ID)
	if got.ReferredBy == nil || *got.ReferredBy != referrer.ID {
		t.Fatalf("expected referrer %d, got %v", referrer.ID, got.ReferredBy)
	}

	res, err = svc.Register(context.Background(), &RegisterRequest{
		Email: "carol@example.com", Password: "secret1", Username: "carol", ReferralCode: "UNKNOWN",
	})
	if err != nil {
		t.Fatalf("register with unknown code: %v", err)
	}
	if got := ledgertest.Account(t, store, res.User.ID); got.ReferredBy != nil {
		t.Fatalf("unknown code must be ignored, got referrer %d", *got.ReferredBy)
	}
}

func TestRegisterRejections(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, _ := newTestService(store)

	_, err := svc.Register(context.Background(), &RegisterRequest{Email: "dup@example.com", Password: "secret1", Username: "dup"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"duplicate email", RegisterRequest{Email: "DUP@example.com ", Password: "secret1", Username: "x"}, ErrEmailAlreadyExists},
		{"short password", RegisterRequest{Email: "new@example.com", Password: "123", Username: "x"}, ledger.ErrInvalidRequest},
		{"blank username", RegisterRequest{Email: "new@example.com", Password: "secret1", Username: "  "}, ledger.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), &tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConcurrentRegisterSameEmail(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, _ := newTestService(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), &RegisterRequest{Email: "race@example.com", Password: "secret1", Username: "race"})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrEmailAlreadyExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly 1 registration, got %d", success)
	}
}

func TestLogin(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, _ := newTestService(store)

	reg, err := svc.Register(context.Background(), &RegisterRequest{Email: "login@example.com", Password: "secret1", Username: "login"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := svc.Login(context.Background(), &LoginRequest{Email: " LOGIN@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.ID != reg.User.ID || res.SessionToken == "" {
		t.Fatalf("unexpected login response %+v", res)
	}

	for _, req := range []LoginRequest{
		{Email: "login@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "secret1"},
	} {
		_, err := svc.Login(context.Background(), &req)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", req.Email, err)
		}
	}
}

func TestAdminLoginCarriesAdminRole(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, jwtService := newTestService(store)

	hash, err := password.Hash("admin-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	err = store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateAccount(ctx, &ledger.Account{
			Email: "admin@example.com", Username: "admin", PasswordHash: hash, IsAdmin: true, ReferralCode: "ADMIN00001",
		})
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	res, err := svc.Login(context.Background(), &LoginRequest{Email: "admin@example.com", Password: "admin-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := jwtService.ValidateAccessToken(res.SessionToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Role != jwt.RoleAdmin {
		t.Fatalf("expected admin role, got %q", claims.Role)
	}
}

func TestMeAndLogout(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc, jwtService := newTestService(store)
	acc := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{Credits: "12.5"})

	me, err := svc.Me(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	ledgertest.RequireDecimal(t, "credits", me.Credits, "12.5")

	if _, err := svc.Me(context.Background(), 999); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	token, _ := jwtService.GenerateAccessToken(acc.ID, jwt.RoleUser)
	claims, _ := jwtService.ValidateAccessToken(token.Value)
	if err := svc.Logout(context.Background(), claims); err != nil {
		t.Fatalf("logout without redis must be a no-op, got %v", err)
	}
	if err := svc.Logout(context.Background(), nil); err != nil {
		t.Fatalf("logout without claims: %v", err)
	}
}

func TestGenerateReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := generateReferralCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != ReferralCodeLength || strings.ContainsAny(code, "+/=") {
			t.Fatalf("unexpected code %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}
