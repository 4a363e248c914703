package auth

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
)

// RegisterRequest for POST /auth/register
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,min=6,max=128"`
	Username     string `json:"username" validate:"required,max=64"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
}

// LoginRequest for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returned after login/register
type AuthResponse struct {
	SessionToken string          `json:"session_token"`
	ExpiresAt    time.Time       `json:"expires_at"`
	User         ProfileResponse `json:"user"`
}

// ProfileResponse is the account as its owner sees it.
type ProfileResponse struct {
	ID                    int64           `json:"id"`
	Email                 string          `json:"email"`
	Username              string          `json:"username"`
	IsAdmin               bool            `json:"is_admin"`
	Credits               decimal.Decimal `json:"credits"`
	AdBalance             decimal.Decimal `json:"ad_balance"`
	TotalClicks           int64           `json:"total_clicks"`
	TotalPayouts          decimal.Decimal `json:"total_payouts"`
	ReferralCode          string          `json:"referral_code"`
	TotalReferralEarnings decimal.Decimal `json:"total_referral_earnings"`
	CreatedAt             time.Time       `json:"created_at"`
}

func ProfileFromAccount(a *ledger.Account) ProfileResponse {
	return ProfileResponse{
		ID:                    a.ID,
		Email:                 a.Email,
		Username:              a.Username,
		IsAdmin:               a.IsAdmin,
		Credits:               a.Credits,
		AdBalance:             a.AdBalance,
		TotalClicks:           a.TotalClicks,
		TotalPayouts:          a.TotalPayouts,
		ReferralCode:          a.ReferralCode,
		TotalReferralEarnings: a.TotalReferralEarnings,
		CreatedAt:             a.CreatedAt,
	}
}
