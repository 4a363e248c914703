package withdrawal

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

// Info handles GET /withdrawals/info
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, info)
}

// History handles GET /withdrawals
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	items, err := h.svc.History(r.Context(), accountID)
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}
	response.OK(w, items)
}

// Create handles POST /withdrawals
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

	created, err := h.svc.Create(r.Context(), CreateInput{
		AccountID:     accountID,
		Credits:       req.Credits,
		MethodID:      req.MethodID,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	response.Created(w, created)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/info", h.Info)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.History)
		r.Post("/", h.Create)
	})
	return r
}
