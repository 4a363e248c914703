package reward

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

// CompleteView handles POST /views
func (h *Handler) CompleteView(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CompleteViewRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}

	res, err := h.svc.CompleteView(r.Context(), ViewInput{
		AccountID:       accountID,
		CampaignID:      req.CampaignID,
		CaptchaVerified: req.CaptchaCorrect,
	})
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	response.OK(w, res)
}

// Routes mounts the view endpoint. limit throttles settlement attempts per account.
func (h *Handler) Routes(authMiddleware, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(limit).Post("/", h.CompleteView)
	return r
}
