package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ptcearn/ptcearn-api/internal/config"
	"github.com/ptcearn/ptcearn-api/internal/domain/auth"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger/ledgertest"
	"github.com/ptcearn/ptcearn-api/internal/domain/wallet"
	"github.com/ptcearn/ptcearn-api/internal/pkg/jwt"
	"github.com/ptcearn/ptcearn-api/internal/pkg/password"
)

func TestMain(m *testing.M) {
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                   "test",
		JWTSecret:             "test-secret",
		JWTAccessTTL:          time.Hour,
		AllowedOrigins:        []string{"*"},
		DefaultConversionRate: decimal.NewFromInt(100),
		DefaultCostPer1000:    decimal.RequireFromString("0.15"),
		DefaultReferralShare:  decimal.RequireFromString("0.1"),
		CampaignViewSeconds:   5,
		AdViewRateLimit:       60,
		AdViewRateWindow:      time.Minute,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type client struct {
	t      *testing.T
	router http.Handler
}

func (c client) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	return rr
}

func (c client) expect(rr *httptest.ResponseRecorder, status int, out any) {
	c.t.Helper()
	if rr.Code != status {
		c.t.Fatalf("expected %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	if out == nil {
		return
	}
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		c.t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.t.Fatalf("decode data: %v", err)
	}
}

func TestHealthWithoutBackends(t *testing.T) {
	router := newRouter(testConfig(), deps{store: ledger.NewMemoryStore()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAPIFlow(t *testing.T) {
	cfg := testConfig()
	store := ledger.NewMemoryStore()
	c := client{t: t, router: newRouter(cfg, deps{store: store, clock: ledgertest.Clock()})}

	// referrer and referred user sign up
	var alice auth.AuthResponse
	c.expect(c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "secret1", "username": "alice",
	}), http.StatusCreated, &alice)

	var bob auth.AuthResponse
	c.expect(c.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "bob@example.com", "password": "secret1", "username": "bob", "referral_code": alice.User.ReferralCode,
	}), http.StatusCreated, &bob)

	adminAcc := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{IsAdmin: true})
	adminTok, err := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL).GenerateAccessToken(adminAcc.ID, jwt.RoleAdmin)
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	// admin issues a voucher and bob redeems it
	rr := c.do(http.MethodPost, "/api/admin/vouchers", adminTok.Value, map[string]any{"credits": "500", "count": 1})
	c.expect(rr, http.StatusOK, nil)
	rows, err := csv.NewReader(rr.Body).ReadAll()
	if err != nil || len(rows) != 2 {
		t.Fatalf("unexpected csv %v err=%v", rows, err)
	}
	c.expect(c.do(http.MethodPost, "/api/v1/vouchers/redeem", bob.SessionToken, map[string]string{"code": rows[1][0]}), http.StatusOK, nil)
	c.expect(c.do(http.MethodPost, "/api/v1/vouchers/redeem", bob.SessionToken, map[string]string{"code": rows[1][0]}), http.StatusConflict, nil)

	// bob watches an ad, alice earns the referral share
	camp := ledgertest.SeedCampaign(t, store, ledgertest.CampaignOpts{AdvertiserID: alice.User.ID})
	view := map[string]any{"campaign_id": camp.ID, "captcha_correct": true}
	c.expect(c.do(http.MethodPost, "/api/v1/views", bob.SessionToken, view), http.StatusOK, nil)
	c.expect(c.do(http.MethodPost, "/api/v1/views", bob.SessionToken, view), http.StatusConflict, nil)

	// bob withdraws and the admin completes it
	method := ledgertest.SeedMethod(t, store, "PayPal", true)
	var req ledger.WithdrawalRequest
	c.expect(c.do(http.MethodPost, "/api/v1/withdrawals", bob.SessionToken, map[string]any{
		"credits": "200", "method_id": method.ID, "wallet_address": "bob@pay.pal",
	}), http.StatusCreated, &req)
	ledgertest.RequireDecimal(t, "usd", req.USDAmount, "2")

	c.expect(c.do(http.MethodPost, "/api/admin/withdrawals/"+strconv.FormatInt(req.ID, 10)+"/process", adminTok.Value,
		map[string]string{"status": "completed"}), http.StatusOK, nil)

	var bal wallet.BalanceResponse
	c.expect(c.do(http.MethodGet, "/api/v1/wallet/balance", bob.SessionToken, nil), http.StatusOK, &bal)
	ledgertest.RequireDecimal(t, "bob credits", bal.Credits, "300.7")
	ledgertest.RequireDecimal(t, "bob payouts", bal.TotalPayouts, "2")

	var me auth.ProfileResponse
	c.expect(c.do(http.MethodGet, "/api/v1/auth/me", alice.SessionToken, nil), http.StatusOK, &me)
	ledgertest.RequireDecimal(t, "alice credits", me.Credits, "0.1")
	ledgertest.RequireDecimal(t, "alice referral earnings", me.TotalReferralEarnings, "0.1")

	// non-admins are kept out of the admin surface
	c.expect(c.do(http.MethodGet, "/api/admin/settings", bob.SessionToken, nil), http.StatusForbidden, nil)

	var stats ledger.Stats
	c.expect(c.do(http.MethodGet, "/api/v1/stats", "", nil), http.StatusOK, &stats)
	if stats.TotalUsers != 3 || stats.ActiveCampaigns != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
