package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса банка крови.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Get("/inventory", h.GetInventory)
			r.Get("/camps", h.GetCamps)

			r.Route("/donor", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleDonor))

				r.Post("/donations", h.RecordDonation)
				r.Get("/donations", h.GetDonations)
				r.Get("/dashboard", h.GetDonorDashboard)
			})

			r.Route("/patient", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RolePatient))

				r.Post("/requests", h.SubmitRequest)
				r.Get("/requests", h.GetPatientRequests)
				r.Get("/dashboard", h.GetPatientDashboard)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Get("/dashboard", h.GetAdminDashboard)
				r.Get("/donors", h.GetDonors)
				r.Get("/patients", h.GetPatients)

				r.Get("/requests", h.GetAllRequests)
				r.Post("/requests/{id}/approve", h.ApproveRequest)
				r.Post("/requests/{id}/reject", h.RejectRequest)

				r.Post("/inventory/credit", h.CreditInventory)
				r.Post("/inventory/debit", h.DebitInventory)
				r.Post("/inventory/adjust", h.AdjustInventory)

				r.Get("/report", h.GetReport)
				r.Get("/report/export", h.ExportReport)

				r.Post("/camps", h.CreateCamp)
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
