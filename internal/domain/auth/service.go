// internal/domain/auth/service.go
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/jwt"
	"github.com/ptcearn/ptcearn-api/internal/pkg/password"
	"github.com/ptcearn/ptcearn-api/internal/pkg/revocation"
)

// registration retries when a generated referral code collides
const maxCodeAttempts = 5

// Service handles authentication business logic
type Service struct {
	store      ledger.Store
	jwtService *jwt.Service
	revoked    *revocation.Store // nil-safe
	clock      ledger.Clock
}

// NewService creates auth service
func NewService(store ledger.Store, jwtService *jwt.Service, revoked *revocation.Store, clock ledger.Clock) *Service {
	return &Service{
		store:      store,
		jwtService: jwtService,
		revoked:    revoked,
		clock:      clock,
	}
}

// Register creates a new account with zero balances. An unknown referral code
// is ignored rather than rejected.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.ReferralCode = strings.TrimSpace(req.ReferralCode)

	if req.Email == "" || req.Username == "" {
		return nil, ledger.Invalid("email, password and username are required")
	}

	// 1. Check if email exists
	_, err := s.store.GetAccountByEmail(ctx, req.Email)
	if err == nil {
		return nil, ErrEmailAlreadyExists
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, wrapRegisterError("lookup email", err)
	}

	// 2. Hash password
	hash, err := password.Hash(req.Password)
	if errors.Is(err, password.ErrTooShort) {
		return nil, ledger.Invalid("password must be at least %d characters", password.MinLength)
	}
	if err != nil {
		return nil, wrapRegisterError("hash password", err)
	}

	// 3. Create account, regenerating the referral code on collision
	var acc *ledger.Account
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		acc, err = s.createAccount(ctx, req, hash)
		if !errors.Is(err, ledger.ErrDuplicateKey) {
			break
		}
		conflict, known := isEmailConflict(err)
		if conflict {
			return nil, ErrEmailAlreadyExists
		}
		if !known {
			if _, lookupErr := s.store.GetAccountByEmail(ctx, req.Email); lookupErr == nil {
				return nil, ErrEmailAlreadyExists
			}
		}
	}
	if err != nil {
		return nil, wrapRegisterError("create account", err)
	}

	log.Info().
		Int64("account_id", acc.ID).
		Bool("referred", acc.ReferredBy != nil).
		Msg("account registered")

	// 4. Issue token
	return s.issue(acc)
}

func (s *Service) createAccount(ctx context.Context, req *RegisterRequest, hash string) (*ledger.Account, error) {
	code, err := generateReferralCode()
	if err != nil {
		return nil, err
	}

	acc := &ledger.Account{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		ReferralCode: code,
		CreatedAt:    s.clock.Now(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if req.ReferralCode != "" {
			referrer, err := tx.GetAccountByReferralCode(ctx, req.ReferralCode)
			switch {
			case err == nil:
				acc.ReferredBy = &referrer.ID
			case !errors.Is(err, ledger.ErrNotFound):
				return err
			}
		}
		return tx.CreateAccount(ctx, acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Login authenticates an account by email and password
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)

	acc, err := s.store.GetAccountByEmail(ctx, req.Email)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !password.Verify(req.Password, acc.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(acc)
}

// Me returns the caller's current profile.
func (s *Service) Me(ctx context.Context, accountID int64) (*ProfileResponse, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile := ProfileFromAccount(acc)
	return &profile, nil
}

// Logout denylists the presented token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, claims *jwt.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Service) issue(acc *ledger.Account) (*AuthResponse, error) {
	token, err := s.jwtService.GenerateAccessToken(acc.ID, jwt.RoleFor(acc.IsAdmin))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		SessionToken: token.Value,
		ExpiresAt:    token.ExpiresAt,
		User:         ProfileFromAccount(acc),
	}, nil
}
