/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/settings/*    Temporal policy settings
  /api/users/*       Members, status, payable, reports
  /api/attendance    Attendance records
  /api/guests        Guest charges
  /api/payments      Payments
  /api/report        All-user period report

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  deploy behind the mess-committee gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Setting routes
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.ListSettings)
			r.Get("/{key}", h.GetSetting)
			r.Post("/{key}", h.UpsertSetting)
			r.Get("/{key}/history", h.GetSettingHistory)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/status", h.GetStatus)
			r.Post("/{id}/status", h.AppendStatus)
			r.Get("/{id}/payable", h.GetPayable)
			r.Get("/{id}/report", h.GetReport)
		})

		// Record routes
		r.Post("/attendance", h.RecordAttendance)
		r.Post("/guests", h.RecordGuestCharge)
		r.Post("/payments", h.RecordPayment)

		// Admin report
		r.Get("/report", h.GetAllReports)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Messbook Billing Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Messbook Billing Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/settings">/api/settings</a> - Current policy settings</li>
<li><a href="/api/users">/api/users</a> - List members</li>
<li>/api/report?from=&amp;to= - Period report for every member</li>
</ul>
</body>
</html>`))
	})

	return r
}
