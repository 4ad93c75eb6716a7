/**
 * @description
 * This file contains the core business logic for the donation-service. The
 * `Service` struct implements the four components of the funding core:
 * the moderation gate (one-way project approval), the order issuer (gateway
 * order minting), the verifier (exactly-once ledger application), and the
 * progress aggregator (read-only funding projections).
 *
 * Key features:
 * - Verification is idempotent under retries and duplicate webhook delivery:
 *   the gateway payment reference is the idempotency key and the ledger
 *   commit is a single atomic repository operation.
 * - The client-claimed amount is only a cross-check; the gateway's captured
 *   payment is authoritative.
 * - Publishes events to RabbitMQ for asynchronous processing by the external
 *   notification service.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/razorpay, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sahaaya/donation-service/internal/domain"
	"github.com/sahaaya/donation-service/internal/store"
	"github.com/sahaaya/donation-service/pkg/rabbitmq"
	"github.com/sahaaya/donation-service/pkg/razorpay"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidAmount      = errors.New("amount must be positive with at most 2 fractional digits")
	ErrProjectNotApproved = errors.New("project is not approved for donations")
	ErrSignatureInvalid   = errors.New("payment signature invalid")
	ErrAmountMismatch     = errors.New("claimed amount does not match the captured payment")
	ErrPaymentNotCaptured = errors.New("payment has not been captured by the gateway")
	ErrRateLimited        = errors.New("too many requests")
	// ErrServiceUnavailable is surfaced when transient storage contention
	// outlasts the internal retries. The caller may safely retry the verify
	// call: it is idempotent.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

const (
	defaultCommitMaxRetries  = 3
	defaultCommitBackoffBase = 50 * time.Millisecond

	rateLimitScopeOrder  = "donation_order"
	rateLimitScopeVerify = "donation_verify"
)

// Gateway is the subset of the payment gateway the service depends on.
// *razorpay.Client satisfies it; tests substitute a fake.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// RateLimiter consumes one unit from a per-subject window and reports the
// running count. A nil limiter disables limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for project funding.
type Service struct {
	repo              store.Repository
	gateway           Gateway
	events            rabbitmq.Publisher
	currency          string
	commitMaxRetries  int
	commitBackoffBase time.Duration

	limiter              RateLimiter
	orderLimitPerMinute  int
	verifyLimitPerMinute int
}

// NewService creates a new donation service instance.
func NewService(repo store.Repository, gateway Gateway, producer rabbitmq.Publisher) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:              repo,
		gateway:           gateway,
		events:            producer,
		currency:          "INR",
		commitMaxRetries:  defaultCommitMaxRetries,
		commitBackoffBase: defaultCommitBackoffBase,
	}
}

// ConfigureCommitRetries bounds the internal retry loop around the atomic
// ledger commit. Values below 1 keep the default.
func (s *Service) ConfigureCommitRetries(maxRetries int) {
	if maxRetries >= 1 {
		s.commitMaxRetries = maxRetries
	}
}

// SetRateLimiter wires a distributed rate limiter for the public endpoints.
func (s *Service) SetRateLimiter(limiter RateLimiter, orderPerMinute, verifyPerMinute int) {
	s.limiter = limiter
	s.orderLimitPerMinute = orderPerMinute
	s.verifyLimitPerMinute = verifyPerMinute
}

func (s *Service) consumeRateLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		// A limiter outage must not block donations.
		log.Printf("level=warn component=app msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return nil
	}
	if count > limit {
		return fmt.Errorf("%w: retry after %ds", ErrRateLimited, retryAfter)
	}
	return nil
}

// SubmitProject validates a project draft and persists it in the pending
// state. Only approval by a moderator makes it publicly fundable.
func (s *Service) SubmitProject(ctx context.Context, req domain.SubmitProjectRequest) (*domain.Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description must not be empty", ErrValidation)
	}
	if !domain.ProjectCategories[req.Category] {
		return nil, fmt.Errorf("%w: unrecognized category %q", ErrValidation, req.Category)
	}
	goal, err := domain.PaiseFromRupees(req.GoalAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: goal amount must be positive", ErrValidation)
	}

	project := &domain.Project{
		ID:                   uuid.New(),
		Title:                strings.TrimSpace(req.Title),
		Description:          strings.TrimSpace(req.Description),
		Category:             req.Category,
		Location:             strings.TrimSpace(req.Location),
		OwnerEmail:           strings.TrimSpace(req.OwnerEmail),
		GoalAmount:           goal,
		Status:               domain.ProjectStatusPending,
		NeedsVolunteers:      req.NeedsVolunteers,
		VolunteerFormURL:     req.VolunteerFormURL,
		VolunteerDescription: req.VolunteerDescription,
		ImageURLs:            req.ImageURLs,
		PDFDescriptionURL:    req.PDFDescriptionURL,
		CreatedAt:            time.Now().UTC(),
	}
	for _, m := range req.Milestones {
		amount, err := domain.PaiseFromRupees(m.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: milestone amount must be positive", ErrValidation)
		}
		project.Milestones = append(project.Milestones, domain.Milestone{
			ID:          uuid.New(),
			ProjectID:   project.ID,
			Amount:      amount,
			Description: m.Description,
		})
	}

	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	log.Printf("level=info component=app msg=\"project submitted\" project_id=%s category=%s goal=%d", project.ID, project.Category, project.GoalAmount)
	return project, nil
}

// ListPendingProjects returns the moderation queue, oldest first.
func (s *Service) ListPendingProjects(ctx context.Context) ([]domain.Project, error) {
	return s.repo.ListPendingProjects(ctx)
}

// ListApprovedProjects is the only public project feed. An empty category
// means no filter.
func (s *Service) ListApprovedProjects(ctx context.Context, category string) ([]domain.Project, error) {
	return s.repo.ListApprovedProjects(ctx, category)
}

// ApproveProject performs the one-way pending -> approved transition. It is
// idempotent: approving an already-approved project is a no-op success, so a
// moderator's client can retry after a dropped response.
func (s *Service) ApproveProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	project, transitioned, err := s.repo.ApproveProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if transitioned {
		log.Printf("level=info component=app msg=\"project approved\" project_id=%s", projectID)
		if err := s.events.PublishProjectApproved(ctx, rabbitmq.ProjectApprovedEvent{
			ProjectID:  project.ID,
			Title:      project.Title,
			OwnerEmail: project.OwnerEmail,
			Timestamp:  time.Now().UTC(),
		}); err != nil {
			log.Printf("level=warn component=app msg=\"project approved event publish failed\" project_id=%s err=%v", projectID, err)
		}
	}
	return project, nil
}

// CreateDonationOrder converts a donor's intent into a gateway-trackable
// order. It never touches the ledger: the order is advisory state used to
// correlate the later verification, and may be abandoned without harm.
func (s *Service) CreateDonationOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.DonationOrder, error) {
	if err := s.consumeRateLimit(ctx, rateLimitScopeOrder, strings.ToLower(strings.TrimSpace(req.DonorEmail)), s.orderLimitPerMinute); err != nil {
		return nil, err
	}

	amount, err := domain.PaiseFromRupees(req.Amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.DonorEmail) == "" {
		return nil, fmt.Errorf("%w: donor email must not be empty", ErrValidation)
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return nil, ErrProjectNotApproved
	}
	project, err := s.repo.FindProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, ErrProjectNotApproved
		}
		return nil, err
	}
	if project.Status != domain.ProjectStatusApproved {
		return nil, ErrProjectNotApproved
	}

	orderID := uuid.New()
	// The gateway call is bounded by the caller's context; cancellation here
	// leaves no local state behind.
	gatewayOrder, err := s.gateway.CreateOrder(ctx, amount, s.currency, orderID.String())
	if err != nil {
		log.Printf("level=error component=app msg=\"gateway order creation failed\" project_id=%s err=%v", projectID, err)
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	order := &domain.DonationOrder{
		ID:                    orderID,
		ProjectID:             projectID,
		DonorName:             strings.TrimSpace(req.DonorName),
		DonorEmail:            strings.TrimSpace(req.DonorEmail),
		Amount:                amount,
		Message:               req.Message,
		GatewayOrderReference: gatewayOrder.ID,
		Status:                domain.OrderStatusCreated,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.repo.CreateDonationOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist donation order: %w", err)
	}
	log.Printf("level=info component=app msg=\"donation order created\" order_id=%s project_id=%s amount=%d gateway_ref=%s", order.ID, projectID, amount, gatewayOrder.ID)
	return order, nil
}

// VerifyDonation validates a post-payment callback and applies it to the
// ledger exactly once. Replays of the same gateway payment reference return
// the previously committed donation unchanged.
func (s *Service) VerifyDonation(ctx context.Context, req domain.VerifyDonationRequest) (*domain.Donation, error) {
	if err := s.consumeRateLimit(ctx, rateLimitScopeVerify, req.GatewayOrderReference, s.verifyLimitPerMinute); err != nil {
		return nil, err
	}

	// 1. Reject forged or tampered callbacks before touching anything.
	if !s.gateway.VerifySignature(req.GatewayOrderReference, req.GatewayPaymentReference, req.Signature) {
		log.Printf("level=warn component=app msg=\"invalid payment signature; possible tamper attempt\" order_ref=%s payment_ref=%s", req.GatewayOrderReference, req.GatewayPaymentReference)
		return nil, ErrSignatureInvalid
	}

	amount, err := domain.PaiseFromRupees(req.Donation.Amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	projectID, err := uuid.Parse(req.Donation.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}

	// 2. Replay fast path: an already-committed reference short-circuits
	// without another gateway round trip.
	if existing, err := s.repo.FindDonationByPaymentReference(ctx, req.GatewayPaymentReference); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrDonationNotFound) {
		return nil, err
	}

	// 3. The claimed amount is only a cross-check; the gateway's captured
	// payment is the source of truth.
	payment, err := s.gateway.FetchPayment(ctx, req.GatewayPaymentReference)
	if err != nil {
		log.Printf("level=error component=app msg=\"gateway payment fetch failed\" payment_ref=%s err=%v", req.GatewayPaymentReference, err)
		return nil, fmt.Errorf("%w: gateway unreachable", ErrServiceUnavailable)
	}
	if payment.OrderID != "" && payment.OrderID != req.GatewayOrderReference {
		log.Printf("level=warn component=app msg=\"payment belongs to a different order\" payment_ref=%s claimed_order=%s actual_order=%s", req.GatewayPaymentReference, req.GatewayOrderReference, payment.OrderID)
		return nil, ErrSignatureInvalid
	}
	if payment.Status != "captured" {
		return nil, ErrPaymentNotCaptured
	}
	if payment.Amount != amount {
		log.Printf("level=warn component=app msg=\"amount mismatch flagged for review\" payment_ref=%s claimed=%d captured=%d", req.GatewayPaymentReference, amount, payment.Amount)
		return nil, ErrAmountMismatch
	}

	donation := &domain.Donation{
		ID:                      uuid.New(),
		ProjectID:               projectID,
		DonorName:               strings.TrimSpace(req.Donation.DonorName),
		DonorEmail:              strings.TrimSpace(req.Donation.DonorEmail),
		Amount:                  amount,
		Message:                 req.Donation.Message,
		GatewayPaymentReference: req.GatewayPaymentReference,
		GatewayOrderReference:   req.GatewayOrderReference,
		VerifiedAt:              time.Now().UTC(),
	}

	// 4. Atomic commit with bounded retries on transient contention. The
	// idempotency key makes retrying safe: a committed attempt that raced us
	// resolves to the existing donation, never a second credit.
	backoff := s.commitBackoffBase
	for attempt := 0; attempt <= s.commitMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		committed, applied, err := s.repo.ApplyVerifiedDonation(ctx, donation)
		if errors.Is(err, store.ErrStorageConflict) {
			log.Printf("level=warn component=app msg=\"ledger commit contention; retrying\" payment_ref=%s attempt=%d", req.GatewayPaymentReference, attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		if applied {
			log.Printf("level=info component=app msg=\"donation verified\" donation_id=%s project_id=%s amount=%d payment_ref=%s", committed.ID, projectID, amount, req.GatewayPaymentReference)
			if err := s.events.PublishDonationVerified(ctx, rabbitmq.DonationVerifiedEvent{
				DonationID: committed.ID,
				ProjectID:  committed.ProjectID,
				Amount:     committed.Amount,
				DonorEmail: committed.DonorEmail,
				Timestamp:  time.Now().UTC(),
			}); err != nil {
				log.Printf("level=warn component=app msg=\"donation verified event publish failed\" donation_id=%s err=%v", committed.ID, err)
			}
		}
		return committed, nil
	}

	log.Printf("level=error component=app msg=\"ledger commit retries exhausted\" payment_ref=%s", req.GatewayPaymentReference)
	return nil, ErrServiceUnavailable
}

// FundingProgress derives the read-only funding view for one project.
// Percent is capped at 100; over-funding is permitted and tracked.
func (s *Service) FundingProgress(ctx context.Context, projectID uuid.UUID) (*domain.FundingProgress, error) {
	project, err := s.repo.FindProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	percent := 0.0
	if project.GoalAmount > 0 {
		ratio := float64(project.RaisedAmount) / float64(project.GoalAmount)
		if ratio > 1 {
			ratio = 1
		}
		percent = ratio * 100
	}
	return &domain.FundingProgress{
		ProjectID:    project.ID,
		RaisedAmount: project.RaisedAmount,
		GoalAmount:   project.GoalAmount,
		Percent:      percent,
	}, nil
}

// DonorCount counts distinct donor emails for a project; a repeat donor
// counts once.
func (s *Service) DonorCount(ctx context.Context, projectID uuid.UUID) (int64, error) {
	if _, err := s.repo.FindProjectByID(ctx, projectID); err != nil {
		return 0, err
	}
	return s.repo.DonorCount(ctx, projectID)
}

// MilestoneStatus derives the completion view of a project's milestones.
// Stamped completion timestamps are immutable; unstamped milestones report
// completed when the raised amount has reached their threshold.
func (s *Service) MilestoneStatus(project *domain.Project) []domain.Milestone {
	out := make([]domain.Milestone, len(project.Milestones))
	copy(out, project.Milestones)
	for i := range out {
		if !out[i].Completed && project.RaisedAmount >= out[i].Amount {
			out[i].Completed = true
		}
	}
	return out
}
