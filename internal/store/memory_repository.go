/**
 * @description
 * In-memory implementation of the `Repository` interface. It mirrors the
 * Postgres semantics — idempotent donation commit, one-way approve, FIFO
 * pending queue — behind a single mutex, and backs the service-level tests
 * and broker-less local runs.
 */

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahaaya/donation-service/internal/domain"
)

// MemoryRepository keeps all state in process, guarded by one mutex so the
// donation commit has the same all-or-nothing visibility as the Postgres
// transaction.
type MemoryRepository struct {
	mu        sync.Mutex
	projects  map[uuid.UUID]*domain.Project
	orders    map[uuid.UUID]*domain.DonationOrder
	donations map[string]*domain.Donation // keyed by gateway payment reference
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects:  make(map[uuid.UUID]*domain.Project),
		orders:    make(map[uuid.UUID]*domain.DonationOrder),
		donations: make(map[string]*domain.Donation),
	}
}

func copyProject(p *domain.Project) *domain.Project {
	cp := *p
	if p.Milestones != nil {
		cp.Milestones = append([]domain.Milestone(nil), p.Milestones...)
	}
	if p.ImageURLs != nil {
		cp.ImageURLs = append([]string(nil), p.ImageURLs...)
	}
	return &cp
}

func (r *MemoryRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[project.ID] = copyProject(project)
	return nil
}

func (r *MemoryRepository) FindProjectByID(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return copyProject(p), nil
}

func (r *MemoryRepository) ListPendingProjects(ctx context.Context) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Project
	for _, p := range r.projects {
		if p.Status == domain.ProjectStatusPending {
			out = append(out, *copyProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListApprovedProjects(ctx context.Context, category string) ([]domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Project
	for _, p := range r.projects {
		if p.Status != domain.ProjectStatusApproved {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *copyProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) ApproveProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, false, ErrProjectNotFound
	}
	transitioned := false
	if p.Status == domain.ProjectStatusPending {
		p.Status = domain.ProjectStatusApproved
		now := time.Now().UTC()
		p.ApprovedAt = &now
		transitioned = true
	}
	return copyProject(p), transitioned, nil
}

func (r *MemoryRepository) CreateDonationOrder(ctx context.Context, order *domain.DonationOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *MemoryRepository) FindDonationByPaymentReference(ctx context.Context, paymentRef string) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[paymentRef]
	if !ok {
		return nil, ErrDonationNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) ApplyVerifiedDonation(ctx context.Context, donation *domain.Donation) (*domain.Donation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.donations[donation.GatewayPaymentReference]; ok {
		cp := *existing
		return &cp, false, nil
	}
	p, ok := r.projects[donation.ProjectID]
	if !ok {
		return nil, false, ErrProjectNotFound
	}

	cp := *donation
	r.donations[donation.GatewayPaymentReference] = &cp
	p.RaisedAmount += donation.Amount

	for i := range p.Milestones {
		m := &p.Milestones[i]
		if !m.Completed && p.RaisedAmount >= m.Amount {
			m.Completed = true
			now := time.Now().UTC()
			m.CompletedAt = &now
		}
	}

	// Consume the oldest matching open order, if any.
	var match *domain.DonationOrder
	for _, o := range r.orders {
		if o.Status != domain.OrderStatusCreated {
			continue
		}
		if o.ProjectID != donation.ProjectID || o.DonorEmail != donation.DonorEmail || o.Amount != donation.Amount {
			continue
		}
		if match == nil || o.CreatedAt.Before(match.CreatedAt) {
			match = o
		}
	}
	if match != nil {
		match.Status = domain.OrderStatusConsumed
	}

	out := cp
	return &out, true, nil
}

func (r *MemoryRepository) DonorCount(ctx context.Context, projectID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	for _, d := range r.donations {
		if d.ProjectID == projectID {
			seen[d.DonorEmail] = true
		}
	}
	return int64(len(seen)), nil
}

// OrderByID is a test helper for inspecting order consumption.
func (r *MemoryRepository) OrderByID(orderID uuid.UUID) (*domain.DonationOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}
