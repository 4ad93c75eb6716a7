/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the donation-service needs. Defining an interface decouples the
 * business logic from the concrete database, so the service can run against
 * PostgreSQL in production and against the in-memory implementation in tests.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sahaaya/donation-service/internal/domain"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrDonationNotFound = errors.New("donation not found")
	// ErrStorageConflict signals transient write contention; callers retry the
	// same operation with the same idempotency key.
	ErrStorageConflict = errors.New("storage conflict")
)

// Repository defines the set of methods for interacting with durable state.
type Repository interface {
	// Project and moderation methods
	CreateProject(ctx context.Context, project *domain.Project) error
	FindProjectByID(ctx context.Context, projectID uuid.UUID) (*domain.Project, error)
	// ListPendingProjects returns pending projects oldest first, so reviewers
	// clear a FIFO queue.
	ListPendingProjects(ctx context.Context) ([]domain.Project, error)
	// ListApprovedProjects is the only feed public discovery and order
	// creation may use. An empty category means no filter.
	ListApprovedProjects(ctx context.Context, category string) ([]domain.Project, error)
	// ApproveProject performs the one-way pending -> approved transition.
	// The returned bool is true only when this call performed the transition;
	// approving an already-approved project is a no-op success.
	ApproveProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, bool, error)

	// Donation order methods
	CreateDonationOrder(ctx context.Context, order *domain.DonationOrder) error

	// Ledger methods
	FindDonationByPaymentReference(ctx context.Context, paymentRef string) (*domain.Donation, error)
	// ApplyVerifiedDonation is the single atomic commit primitive of the
	// ledger: it inserts the donation, adds its amount to the project's
	// raised_amount, stamps newly crossed milestones, and consumes a matching
	// donation order, all-or-nothing. When a donation with the same gateway
	// payment reference already exists it returns that donation with
	// applied=false and changes nothing.
	ApplyVerifiedDonation(ctx context.Context, donation *domain.Donation) (committed *domain.Donation, applied bool, err error)
	// DonorCount returns the number of distinct donor emails for a project.
	DonorCount(ctx context.Context, projectID uuid.UUID) (int64, error)
}
