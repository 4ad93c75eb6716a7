/**
 * @description
 * This file defines the project-side domain models for the donation-service.
 * A Project is the fundable entity; it moves through a one-way moderation
 * state machine (pending -> approved) and accumulates a raised amount that is
 * derived exclusively from verified donations.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise), which
 *   avoids floating-point inaccuracies with financial data. API payloads carry
 *   rupees and are converted at the edge (see money.go).
 * - RaisedAmount is never written directly by callers; it only changes inside
 *   the store's atomic donation commit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project moderation states. The only transition is pending -> approved.
const (
	ProjectStatusPending  = "pending"
	ProjectStatusApproved = "approved"
)

// ProjectCategories is the set of categories a submission may use.
var ProjectCategories = map[string]bool{
	"education":       true,
	"healthcare":      true,
	"environment":     true,
	"infrastructure":  true,
	"community":       true,
	"disaster-relief": true,
}

// Project represents a community project that can receive donations once approved.
// This struct maps directly to the `projects` table in the database.
type Project struct {
	ID                   uuid.UUID   `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	Category             string      `json:"category"`
	Location             string      `json:"location"`
	OwnerEmail           string      `json:"owner_email"`
	GoalAmount           int64       `json:"goal_amount"`   // in paise
	RaisedAmount         int64       `json:"raised_amount"` // in paise, derived from donations
	Status               string      `json:"status"`
	NeedsVolunteers      bool        `json:"needs_volunteers"`
	VolunteerFormURL     *string     `json:"volunteer_form_url,omitempty"`
	VolunteerDescription *string     `json:"volunteer_description,omitempty"`
	ImageURLs            []string    `json:"image_urls,omitempty"`
	PDFDescriptionURL    *string     `json:"pdf_description_url,omitempty"`
	Milestones           []Milestone `json:"milestones,omitempty"`
	ApprovedAt           *time.Time  `json:"approved_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// Milestone is a funding threshold attached to a project. CompletedAt is set
// the first time RaisedAmount crosses Amount and is immutable afterwards.
type Milestone struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Amount      int64      `json:"amount"` // in paise
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SubmitProjectRequest is the DTO for incoming project submissions. Amounts are
// in rupees; file contents themselves are handled by the external upload flow,
// only their URLs travel through here.
type SubmitProjectRequest struct {
	Title                string           `json:"title"`
	Description          string           `json:"description"`
	Category             string           `json:"category"`
	Location             string           `json:"location"`
	OwnerEmail           string           `json:"owner_email"`
	GoalAmount           float64          `json:"goal_amount"` // in rupees
	NeedsVolunteers      bool             `json:"needs_volunteers"`
	VolunteerFormURL     *string          `json:"volunteer_form_url,omitempty"`
	VolunteerDescription *string          `json:"volunteer_description,omitempty"`
	ImageURLs            []string         `json:"image_urls,omitempty"`
	PDFDescriptionURL    *string          `json:"pdf_description_url,omitempty"`
	Milestones           []MilestoneDraft `json:"milestones,omitempty"`
}

// MilestoneDraft is one milestone threshold within a project submission.
type MilestoneDraft struct {
	Amount      float64 `json:"amount"` // in rupees
	Description string  `json:"description"`
}

// FundingProgress is the read-only funding projection for one project.
// Percent is capped at 100 even when the project is over-funded.
type FundingProgress struct {
	ProjectID    uuid.UUID `json:"project_id"`
	RaisedAmount int64     `json:"raised_amount"` // in paise
	GoalAmount   int64     `json:"goal_amount"`   // in paise
	Percent      float64   `json:"percent"`
}
