/**
 * @description
 * This file contains the HTTP handlers for the donation-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write the HTTP response, bridging the web layer and the business logic.
 *
 * The error mapping keeps the donor-facing distinction the frontend relies
 * on: 503 means "payment not yet verified, safe to retry verify" while
 * 400/409 mean "rejected, do not retry".
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sahaaya/donation-service/internal/app"
	"github.com/sahaaya/donation-service/internal/domain"
	"github.com/sahaaya/donation-service/internal/store"
)

// DonationHandlers holds the application service that handlers will use.
type DonationHandlers struct {
	service *app.Service
}

// NewDonationHandlers creates a new instance of DonationHandlers.
func NewDonationHandlers(service *app.Service) *DonationHandlers {
	return &DonationHandlers{service: service}
}

// orderResponse is returned after an order is minted; the frontend hands the
// gateway order reference to the checkout widget.
type orderResponse struct {
	OrderID               string  `json:"order_id"`
	GatewayOrderReference string  `json:"gateway_order_reference"`
	Amount                float64 `json:"amount"`
}

// verifyResponse is returned for both first-time and replayed verifications;
// a replay is indistinguishable from the original success.
type verifyResponse struct {
	DonationID string  `json:"donation_id"`
	ProjectID  string  `json:"project_id"`
	Amount     float64 `json:"amount"`
	VerifiedAt string  `json:"verified_at"`
}

// projectResponse augments a project with its derived funding view.
type projectResponse struct {
	domain.Project
	GoalAmountRupees   float64            `json:"goal_amount_rupees"`
	RaisedAmountRupees float64            `json:"raised_amount_rupees"`
	Percent            float64            `json:"percent"`
	Milestones         []domain.Milestone `json:"milestones,omitempty"`
}

func (h *DonationHandlers) projectView(p domain.Project) projectResponse {
	percent := 0.0
	if p.GoalAmount > 0 {
		ratio := float64(p.RaisedAmount) / float64(p.GoalAmount)
		if ratio > 1 {
			ratio = 1
		}
		percent = ratio * 100
	}
	return projectResponse{
		Project:            p,
		GoalAmountRupees:   domain.RupeesFromPaise(p.GoalAmount),
		RaisedAmountRupees: domain.RupeesFromPaise(p.RaisedAmount),
		Percent:            percent,
		Milestones:         h.service.MilestoneStatus(&p),
	}
}

// CreateOrderHandler handles POST /donations/order.
func (h *DonationHandlers) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.CreateDonationOrder(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create_order", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, orderResponse{
		OrderID:               order.ID.String(),
		GatewayOrderReference: order.GatewayOrderReference,
		Amount:                domain.RupeesFromPaise(order.Amount),
	})
}

// VerifyDonationHandler handles POST /donations/verify.
func (h *DonationHandlers) VerifyDonationHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyDonationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	donation, err := h.service.VerifyDonation(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "verify_donation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, verifyResponse{
		DonationID: donation.ID.String(),
		ProjectID:  donation.ProjectID.String(),
		Amount:     domain.RupeesFromPaise(donation.Amount),
		VerifiedAt: donation.VerifiedAt.UTC().Format(time.RFC3339),
	})
}

// SubmitProjectHandler handles POST /projects.
func (h *DonationHandlers) SubmitProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, err := h.service.SubmitProject(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "submit_project", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.projectView(*project))
}

// ListProjectsHandler handles GET /projects, the public discovery feed.
// Only approved projects are ever returned.
func (h *DonationHandlers) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	projects, err := h.service.ListApprovedProjects(r.Context(), category)
	if err != nil {
		h.writeServiceError(w, "list_projects", err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, h.projectView(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ProjectProgressHandler handles GET /projects/{id}/progress.
func (h *DonationHandlers) ProjectProgressHandler(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	progress, err := h.service.FundingProgress(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, "funding_progress", err)
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// DonorCountHandler handles GET /projects/{id}/donor-count.
func (h *DonationHandlers) DonorCountHandler(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	count, err := h.service.DonorCount(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, "donor_count", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"donor_count": count})
}

// ListPendingProjectsHandler handles GET /admin/projects/pending.
func (h *DonationHandlers) ListPendingProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListPendingProjects(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_pending", err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, h.projectView(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ApproveProjectHandler handles PUT /admin/projects/{id}/approve. Repeat
// approvals succeed without a second transition.
func (h *DonationHandlers) ApproveProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	project, err := h.service.ApproveProject(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, "approve_project", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.projectView(*project))
}

func (h *DonationHandlers) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid project id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *DonationHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "Amount must be positive with at most 2 fractional digits")
	case errors.Is(err, app.ErrProjectNotApproved):
		h.writeError(w, http.StatusConflict, "Project is not approved for donations")
	case errors.Is(err, app.ErrSignatureInvalid):
		h.writeError(w, http.StatusBadRequest, "Payment signature verification failed")
	case errors.Is(err, app.ErrAmountMismatch):
		h.writeError(w, http.StatusConflict, "Claimed amount does not match the captured payment")
	case errors.Is(err, app.ErrPaymentNotCaptured):
		h.writeError(w, http.StatusConflict, "Payment has not been captured by the gateway")
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
	case errors.Is(err, app.ErrServiceUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Verification is temporarily unavailable. It is safe to retry.")
	case errors.Is(err, store.ErrProjectNotFound):
		h.writeError(w, http.StatusNotFound, "Project not found")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *DonationHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *DonationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
