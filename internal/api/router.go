/**
 * @description
 * This file sets up the HTTP router for the donation-service. It defines the
 * API endpoints, associates them with their handlers, and applies middleware
 * for logging, panic recovery, timeouts, CORS, and admin authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the donation service.
func Routes(h *DonationHandlers, adminJWTSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints: discovery, submission, and the donation flow.
	r.Post("/donations/order", h.CreateOrderHandler)
	r.Post("/donations/verify", h.VerifyDonationHandler)
	r.Get("/projects", h.ListProjectsHandler)
	r.Post("/projects", h.SubmitProjectHandler)
	r.Get("/projects/{id}/progress", h.ProjectProgressHandler)
	r.Get("/projects/{id}/donor-count", h.DonorCountHandler)

	// Admin endpoints require the administrator credential.
	r.Group(func(r chi.Router) {
		r.Use(AdminAuthMiddleware(adminJWTSecret))

		r.Get("/admin/projects/pending", h.ListPendingProjectsHandler)
		r.Put("/admin/projects/{id}/approve", h.ApproveProjectHandler)
	})

	return r
}
