package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ptcearn/ptcearn-api/internal/domain/campaign"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/voucher"
	"github.com/ptcearn/ptcearn-api/internal/domain/withdrawal"
	"github.com/ptcearn/ptcearn-api/internal/pkg/errorhandler"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
	"github.com/ptcearn/ptcearn-api/internal/pkg/validator"
)

// Handler serves the admin API. Every route requires an admin token.
type Handler struct {
	vouchers    *voucher.Service
	withdrawals *withdrawal.Service
	campaigns   *campaign.Service
	settings    *SettingsService
}

func NewHandler(vouchers *voucher.Service, withdrawals *withdrawal.Service, campaigns *campaign.Service, settings *SettingsService) *Handler {
	return &Handler{
		vouchers:    vouchers,
		withdrawals: withdrawals,
		campaigns:   campaigns,
		settings:    settings,
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

/* ---------- vouchers ---------- */

// GenerateVouchers handles POST /admin/vouchers and answers with the CSV batch.
func (h *Handler) GenerateVouchers(w http.ResponseWriter, r *http.Request) {
	var req GenerateVouchersRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	batch, err := h.vouchers.Generate(r.Context(), req.Credits, req.Count)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "voucher.generate", "voucher_batch", batch.ArchiveURL, map[string]any{
		"count":   len(batch.Vouchers),
		"credits": req.Credits,
	})

	if batch.ArchiveURL != "" {
		w.Header().Set("X-Archive-URL", batch.ArchiveURL)
	}
	response.CSV(w, voucher.ExportFilename(len(batch.Vouchers)), batch.CSV)
}

// ListVouchers handles GET /admin/vouchers
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	items, err := h.vouchers.List(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

/* ---------- withdrawals ---------- */

// ListWithdrawals handles GET /admin/withdrawals
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	items, err := h.withdrawals.List(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

// ProcessWithdrawal handles POST /admin/withdrawals/{id}/process
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "Invalid withdrawal ID")
		return
	}

	var req ProcessWithdrawalRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	result, err := h.withdrawals.Adjudicate(r.Context(), id, ledger.WithdrawalStatus(req.Status))
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "withdrawal.process", "withdrawal", id, map[string]any{"status": result.Status})
	response.OK(w, result)
}

/* ---------- settings ---------- */

// ListSettings handles GET /admin/settings
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	out, err := h.settings.List(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, out)
}

// UpdateSetting handles PUT /admin/settings/{key}
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateSettingRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	st, err := h.settings.Update(r.Context(), key, req.Value)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "setting.update", "setting", key, map[string]any{"value": st.Value})
	response.OK(w, st)
}

/* ---------- withdrawal methods ---------- */

// ListMethods handles GET /admin/methods
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	items, err := h.withdrawals.Methods(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

// ToggleMethod handles PATCH /admin/methods/{id}
func (h *Handler) ToggleMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "Invalid method ID")
		return
	}

	var req ToggleMethodRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	m, err := h.withdrawals.SetMethodActive(r.Context(), id, *req.IsActive)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "method.toggle", "withdrawal_method", id, m)
	response.OK(w, m)
}

/* ---------- campaigns and ad balance ---------- */

// ModerateCampaign handles POST /admin/campaigns/{id}/moderate
func (h *Handler) ModerateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "Invalid campaign ID")
		return
	}

	var req ModerateCampaignRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	c, err := h.campaigns.Moderate(r.Context(), id, ledger.ModerationStatus(req.Status))
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "campaign.moderate", "campaign", id, map[string]any{"status": c.ModerationStatus})
	response.OK(w, c)
}

// TopUpAdBalance handles POST /admin/accounts/{id}/ad-balance
func (h *Handler) TopUpAdBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.BadRequest(w, "Invalid account ID")
		return
	}

	var req TopUpRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	balance, err := h.campaigns.TopUp(r.Context(), id, req.Amount)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	logAction(r.Context(), "ad_balance.topup", "account", id, map[string]any{"amount": req.Amount})
	response.OK(w, map[string]any{"account_id": id, "ad_balance": balance})
}
