package admin_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ptcearn/ptcearn-api/internal/domain/admin"
	"github.com/ptcearn/ptcearn-api/internal/domain/campaign"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger/ledgertest"
	"github.com/ptcearn/ptcearn-api/internal/domain/voucher"
	"github.com/ptcearn/ptcearn-api/internal/domain/withdrawal"
	"github.com/ptcearn/ptcearn-api/internal/middleware"
	"github.com/ptcearn/ptcearn-api/internal/pkg/jwt"
)

type fixture struct {
	store       *ledger.MemoryStore
	router      http.Handler
	adminToken  string
	userToken   string
	withdrawals *withdrawal.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	settings := ledger.NewSettings(ledger.DefaultSettings())
	clock := ledgertest.Clock()

	withdrawals := withdrawal.NewService(store, settings, clock)
	h := admin.NewHandler(
		voucher.NewService(store, clock, nil),
		withdrawals,
		campaign.NewService(store, settings, clock, 5),
		admin.NewSettingsService(store, settings, clock),
	)

	jwtService := jwt.NewService("secret", time.Hour)
	adminAcc := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{IsAdmin: true})
	userAcc := ledgertest.SeedAccount(t, store, ledgertest.AccountOpts{})
	adminTok, err := jwtService.GenerateAccessToken(adminAcc.ID, jwt.RoleAdmin)
	requireNoError(t, err)
	userTok, err := jwtService.GenerateAccessToken(userAcc.ID, jwt.RoleUser)
	requireNoError(t, err)

	return &fixture{
		store:       store,
		router:      h.Routes(middleware.Auth(jwtService, nil)),
		adminToken:  adminTok.Value,
		userToken:   userTok.Value,
		withdrawals: withdrawals,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		requireNoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

/* =========================
   Test 1: Access
   ========================= */

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/vouchers", "/withdrawals", "/settings", "/methods"} {
		rr := f.do(t, http.MethodGet, path, f.userToken, nil)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for user, got %d", path, rr.Code)
		}
		rr = f.do(t, http.MethodGet, path, f.adminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 for admin, got %d", path, rr.Code)
		}
	}

	rr := f.do(t, http.MethodPost, "/withdrawals/1/process", f.userToken, map[string]string{"status": "completed"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user adjudication, got %d", rr.Code)
	}
}

/* =========================
   Test 2: Vouchers
   ========================= */

func TestGenerateVouchersReturnsCSV(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/vouchers", f.adminToken, map[string]any{"credits": "15", "count": 4})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="vouchers_4.csv"` {
		t.Fatalf("unexpected disposition %q", cd)
	}

	rows, err := csv.NewReader(rr.Body).ReadAll()
	requireNoError(t, err)
	if len(rows) != 5 || rows[0][0] != "Code" || rows[4][1] != "15" {
		t.Fatalf("unexpected rows %v", rows)
	}

	rr = f.do(t, http.MethodPost, "/vouchers", f.adminToken, map[string]any{"credits": "15", "count": 1001})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch, got %d", rr.Code)
	}
}

/* =========================
   Test 3: Withdrawals
   ========================= */

func TestProcessWithdrawal(t *testing.T) {
	f := newFixture(t)
	acc := ledgertest.SeedAccount(t, f.store, ledgertest.AccountOpts{Credits: "100"})
	method := ledgertest.SeedMethod(t, f.store, "PayPal", true)

	req, err := f.withdrawals.Create(context.Background(), withdrawal.CreateInput{
		AccountID: acc.ID, Credits: ledgertest.D("100"), MethodID: method.ID, WalletAddress: "me@pay.pal",
	})
	requireNoError(t, err)
	path := "/withdrawals/" + strconv.FormatInt(req.ID, 10) + "/process"

	rr := f.do(t, http.MethodPost, path, f.adminToken, map[string]string{"status": "pending"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, path, f.adminToken, map[string]string{"status": "completed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	ledgertest.RequireDecimal(t, "payouts", ledgertest.Account(t, f.store, acc.ID).TotalPayouts, "1")

	rr = f.do(t, http.MethodPost, path, f.adminToken, map[string]string{"status": "rejected"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-adjudication, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/withdrawals/9999/process", f.adminToken, map[string]string{"status": "completed"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

/* =========================
   Test 4: Settings and methods
   ========================= */

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		key    string
		value  string
		status int
	}{
		{ledger.SettingConversionRate, "0", http.StatusBadRequest},
		{ledger.SettingConversionRate, "250", http.StatusOK},
		{ledger.SettingCostPer1000, "-1", http.StatusBadRequest},
		{ledger.SettingCostPer1000, "0.3", http.StatusOK},
		{ledger.SettingReferralShare, "0", http.StatusOK},
		{"unknown_key", "1", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := f.do(t, http.MethodPut, "/settings/"+tc.key, f.adminToken, map[string]string{"value": tc.value})
		if rr.Code != tc.status {
			t.Fatalf("%s=%s: expected %d, got %d body=%s", tc.key, tc.value, tc.status, rr.Code, rr.Body.String())
		}
	}

	rr := f.do(t, http.MethodGet, "/settings", f.adminToken, nil)
	var out struct {
		Data admin.Effective `json:"data"`
	}
	requireNoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	ledgertest.RequireDecimal(t, "rate", out.Data.ConversionRate, "250")
	ledgertest.RequireDecimal(t, "cost", out.Data.CostPer1000, "0.3")
	ledgertest.RequireDecimal(t, "share", out.Data.ReferralShare, "0")
}

func TestToggleMethod(t *testing.T) {
	f := newFixture(t)
	method := ledgertest.SeedMethod(t, f.store, "USDT TRC20", true)
	path := "/methods/" + strconv.FormatInt(method.ID, 10)

	rr := f.do(t, http.MethodPatch, path, f.adminToken, map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without is_active, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPatch, path, f.adminToken, map[string]any{"is_active": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	info, err := f.withdrawals.Info(context.Background())
	requireNoError(t, err)
	if len(info.Methods) != 0 {
		t.Fatalf("expected no active methods, got %+v", info.Methods)
	}
}

/* =========================
   Test 5: Campaigns and ad balance
   ========================= */

func TestModerateAndTopUp(t *testing.T) {
	f := newFixture(t)
	adv := ledgertest.SeedAccount(t, f.store, ledgertest.AccountOpts{})
	accPath := "/accounts/" + strconv.FormatInt(adv.ID, 10) + "/ad-balance"

	rr := f.do(t, http.MethodPost, accPath, f.adminToken, map[string]string{"amount": "-1"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative top-up, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, accPath, f.adminToken, map[string]string{"amount": "3"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	ledgertest.RequireDecimal(t, "ad balance", ledgertest.Account(t, f.store, adv.ID).AdBalance, "3")

	c := ledgertest.SeedCampaign(t, f.store, ledgertest.CampaignOpts{AdvertiserID: adv.ID, Pending: true})
	path := "/campaigns/" + strconv.FormatInt(c.ID, 10) + "/moderate"

	rr = f.do(t, http.MethodPost, path, f.adminToken, map[string]string{"status": "approved"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, path, f.adminToken, map[string]string{"status": "rejected"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/campaigns/abc/moderate", f.adminToken, map[string]string{"status": "approved"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
