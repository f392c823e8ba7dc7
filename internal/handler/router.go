package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/crowdfund-system/internal/middleware"
)

func campaignIDFromRequest(r *http.Request) string {
	return chi.URLParam(r, "campaignID")
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса краудфандинга.
// Чтение состояния кампаний открыто; операции, меняющие состояние, требуют
// подписанный cookie с идентификатором стороны.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth", h.Authenticate)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Get("/{campaignID}", h.GetCampaign)
			r.Get("/{campaignID}/events", h.GetEvents)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/", h.CreateCampaign)
				r.Post("/{campaignID}/contributions", h.Contribute)
				r.Post("/{campaignID}/close", h.CloseCampaign)
				r.Post("/{campaignID}/refund", h.Refund)
				r.Post("/{campaignID}/withdraw", h.Withdraw)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
