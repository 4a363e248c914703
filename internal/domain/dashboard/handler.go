package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/pkg/errorhandler"
	"github.com/ptcearn/ptcearn-api/internal/pkg/response"
)

// Handler serves the public platform summary.
type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

// GetStats returns user and campaign counts plus paid-out totals
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		errorhandler.HandleLedgerError(r.Context(), w, err)
		return
	}

	response.OK(w, stats)
}

// Routes returns dashboard routes
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStats)
	return r
}
