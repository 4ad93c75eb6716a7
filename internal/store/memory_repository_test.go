package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sahaaya/donation-service/internal/domain"
)

func seedProject(t *testing.T, repo *MemoryRepository, status string, goal int64) *domain.Project {
	t.Helper()
	project := &domain.Project{
		ID:         uuid.New(),
		Title:      "Clean water for Velpur",
		Description: "Bore wells and filtration for the village school",
		Category:   "community",
		Location:   "Velpur",
		OwnerEmail: "owner@example.org",
		GoalAmount: goal,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	return project
}

func donationFor(project *domain.Project, paymentRef string, amount int64) *domain.Donation {
	return &domain.Donation{
		ID:                      uuid.New(),
		ProjectID:               project.ID,
		DonorName:               "Asha",
		DonorEmail:              "asha@example.org",
		Amount:                  amount,
		GatewayPaymentReference: paymentRef,
		GatewayOrderReference:   "order_" + paymentRef,
		VerifiedAt:              time.Now().UTC(),
	}
}

func TestApplyVerifiedDonation_SameReferenceConcurrently(t *testing.T) {
	repo := NewMemoryRepository()
	project := seedProject(t, repo, domain.ProjectStatusApproved, 1000000)

	const workers = 16
	var wg sync.WaitGroup
	applied := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, wasApplied, err := repo.ApplyVerifiedDonation(context.Background(), donationFor(project, "pay_same", 250000))
			if err != nil {
				t.Errorf("ApplyVerifiedDonation returned error: %v", err)
				return
			}
			applied <- wasApplied
		}()
	}
	wg.Wait()
	close(applied)

	appliedCount := 0
	for wasApplied := range applied {
		if wasApplied {
			appliedCount++
		}
	}
	if appliedCount != 1 {
		t.Fatalf("expected exactly one commit, got %d", appliedCount)
	}

	got, err := repo.FindProjectByID(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("FindProjectByID returned error: %v", err)
	}
	if got.RaisedAmount != 250000 {
		t.Fatalf("expected raised amount 250000, got %d", got.RaisedAmount)
	}
}

func TestApplyVerifiedDonation_DistinctReferencesNoLostUpdate(t *testing.T) {
	repo := NewMemoryRepository()
	project := seedProject(t, repo, domain.ProjectStatusApproved, 1000000)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ref := fmt.Sprintf("pay_%d", n)
			if _, _, err := repo.ApplyVerifiedDonation(context.Background(), donationFor(project, ref, 100)); err != nil {
				t.Errorf("ApplyVerifiedDonation returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.FindProjectByID(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("FindProjectByID returned error: %v", err)
	}
	if got.RaisedAmount != workers*100 {
		t.Fatalf("expected raised amount %d, got %d", workers*100, got.RaisedAmount)
	}
}

func TestApplyVerifiedDonation_UnknownProject(t *testing.T) {
	repo := NewMemoryRepository()
	orphan := &domain.Donation{
		ID:                      uuid.New(),
		ProjectID:               uuid.New(),
		DonorEmail:              "asha@example.org",
		Amount:                  100,
		GatewayPaymentReference: "pay_orphan",
	}
	if _, _, err := repo.ApplyVerifiedDonation(context.Background(), orphan); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestApplyVerifiedDonation_ConsumesOldestMatchingOrder(t *testing.T) {
	repo := NewMemoryRepository()
	project := seedProject(t, repo, domain.ProjectStatusApproved, 1000000)

	older := &domain.DonationOrder{
		ID:                    uuid.New(),
		ProjectID:             project.ID,
		DonorEmail:            "asha@example.org",
		Amount:                5000,
		GatewayOrderReference: "order_old",
		Status:                domain.OrderStatusCreated,
		CreatedAt:             time.Now().UTC().Add(-time.Minute),
	}
	newer := &domain.DonationOrder{
		ID:                    uuid.New(),
		ProjectID:             project.ID,
		DonorEmail:            "asha@example.org",
		Amount:                5000,
		GatewayOrderReference: "order_new",
		Status:                domain.OrderStatusCreated,
		CreatedAt:             time.Now().UTC(),
	}
	for _, o := range []*domain.DonationOrder{older, newer} {
		if err := repo.CreateDonationOrder(context.Background(), o); err != nil {
			t.Fatalf("CreateDonationOrder returned error: %v", err)
		}
	}

	if _, _, err := repo.ApplyVerifiedDonation(context.Background(), donationFor(project, "pay_match", 5000)); err != nil {
		t.Fatalf("ApplyVerifiedDonation returned error: %v", err)
	}

	gotOlder, _ := repo.OrderByID(older.ID)
	gotNewer, _ := repo.OrderByID(newer.ID)
	if gotOlder.Status != domain.OrderStatusConsumed {
		t.Fatalf("expected oldest order consumed, got %q", gotOlder.Status)
	}
	if gotNewer.Status != domain.OrderStatusCreated {
		t.Fatalf("expected newer order untouched, got %q", gotNewer.Status)
	}
}

func TestApproveProject_ConcurrentCallsConverge(t *testing.T) {
	repo := NewMemoryRepository()
	project := seedProject(t, repo, domain.ProjectStatusPending, 1000000)

	const workers = 8
	var wg sync.WaitGroup
	transitions := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, transitioned, err := repo.ApproveProject(context.Background(), project.ID)
			if err != nil {
				t.Errorf("ApproveProject returned error: %v", err)
				return
			}
			if got.Status != domain.ProjectStatusApproved {
				t.Errorf("expected approved status, got %q", got.Status)
			}
			transitions <- transitioned
		}()
	}
	wg.Wait()
	close(transitions)

	count := 0
	for transitioned := range transitions {
		if transitioned {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one transition, got %d", count)
	}
}

func TestApproveProject_UnknownID(t *testing.T) {
	repo := NewMemoryRepository()
	if _, _, err := repo.ApproveProject(context.Background(), uuid.New()); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestListPendingProjects_OldestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Now().UTC()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		p := &domain.Project{
			ID:         uuid.New(),
			Title:      fmt.Sprintf("Project %d", i),
			Description: "d",
			Category:   "education",
			GoalAmount: 100,
			Status:     domain.ProjectStatusPending,
			CreatedAt:  base.Add(time.Duration(2-i) * time.Minute), // insert newest first
		}
		if err := repo.CreateProject(context.Background(), p); err != nil {
			t.Fatalf("CreateProject returned error: %v", err)
		}
		ids = append(ids, p.ID)
	}

	pending, err := repo.ListPendingProjects(context.Background())
	if err != nil {
		t.Fatalf("ListPendingProjects returned error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending projects, got %d", len(pending))
	}
	// Insert order was newest first, so the listing must reverse it.
	if pending[0].ID != ids[2] || pending[2].ID != ids[0] {
		t.Fatalf("expected oldest-first ordering, got %v then %v", pending[0].CreatedAt, pending[2].CreatedAt)
	}
}

func TestDonorCount_DistinctEmails(t *testing.T) {
	repo := NewMemoryRepository()
	project := seedProject(t, repo, domain.ProjectStatusApproved, 1000000)

	donations := []*domain.Donation{
		donationFor(project, "pay_a", 100),
		donationFor(project, "pay_b", 200),
	}
	donations[1].DonorEmail = "ravi@example.org"
	repeat := donationFor(project, "pay_c", 300) // same email as pay_a
	donations = append(donations, repeat)

	for _, d := range donations {
		if _, _, err := repo.ApplyVerifiedDonation(context.Background(), d); err != nil {
			t.Fatalf("ApplyVerifiedDonation returned error: %v", err)
		}
	}

	count, err := repo.DonorCount(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("DonorCount returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 distinct donors, got %d", count)
	}
}
