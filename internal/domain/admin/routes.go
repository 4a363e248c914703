package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ptcearn/ptcearn-api/internal/middleware"
)

// Routes returns admin router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())

	r.Route("/vouchers", func(r chi.Router) {
		r.Get("/", h.ListVouchers)
		r.Post("/", h.GenerateVouchers)
	})

	r.Route("/withdrawals", func(r chi.Router) {
		r.Get("/", h.ListWithdrawals)
		r.Post("/{id}/process", h.ProcessWithdrawal)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.ListSettings)
		r.Put("/{key}", h.UpdateSetting)
	})

	r.Route("/methods", func(r chi.Router) {
		r.Get("/", h.ListMethods)
		r.Patch("/{id}", h.ToggleMethod)
	})

	r.Post("/campaigns/{id}/moderate", h.ModerateCampaign)
	r.Post("/accounts/{id}/ad-balance", h.TopUpAdBalance)

	return r
}
