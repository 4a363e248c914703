package wallet

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/middleware"
	"github.com/ptcearn/ptcearn-api/internal/pkg/errorhandler"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
)

// Handler exposes an account's balances and its transaction history.
type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

// BalanceResponse is the current state of both balances.
type BalanceResponse struct {
	Credits          decimal.Decimal `json:"credits"`
	AdBalance        decimal.Decimal `json:"ad_balance"`
	TotalClicks      int64           `json:"total_clicks"`
	TotalPayouts     decimal.Decimal `json:"total_payouts"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
}

// Balance handles GET /wallet/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	acc, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	response.OK(w, BalanceResponse{
		Credits:          acc.Credits,
		AdBalance:        acc.AdBalance,
		TotalClicks:      acc.TotalClicks,
		TotalPayouts:     acc.TotalPayouts,
		ReferralEarnings: acc.TotalReferralEarnings,
	})
}

// Transactions handles GET /wallet/transactions?limit=&offset=
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	items, err := h.svc.ListTransactions(r.Context(), accountID, limit, offset)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []ledger.Transaction{}
	}

	response.WithMeta(w, items, response.Meta{Limit: limit, Offset: offset, Count: len(items)})
}

// Referrals handles GET /wallet/referrals
func (h *Handler) Referrals(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.svc.ListReferralEarnings(r.Context(), accountID)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	if items == nil {
		items = []ledger.ReferralEarning{}
	}
	response.OK(w, items)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	r.Get("/referrals", h.Referrals)
	return r
}
