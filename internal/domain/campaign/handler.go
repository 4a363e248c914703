package campaign

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ptcearn/ptcearn-api/internal/middleware"
	"github.com/ptcearn/ptcearn-api/internal/pkg/errorhandler"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
	"github.com/ptcearn/ptcearn-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /campaigns
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListActive(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

// Available handles GET /campaigns/available
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.svc.ListAvailable(r.Context(), accountID)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

// Create handles POST /campaigns
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	res, err := h.svc.Create(r.Context(), CreateInput{
		AdvertiserID:  accountID,
		Title:         req.Title,
		URL:           req.URL,
		RequiredViews: req.RequiredViews,
	})
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	response.Created(w, res)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/available", h.Available)
		r.Post("/", h.Create)
	})
	return r
}
