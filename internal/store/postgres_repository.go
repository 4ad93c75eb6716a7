/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It owns the two durable collections (projects, donations) plus
 * the advisory donation_orders table, and enforces the ledger invariants:
 * a unique index on donations.gateway_payment_reference makes verification
 * idempotent, and raised_amount only changes through an atomic add inside
 * the same transaction that inserts the donation row.
 *
 * Expected schema:
 *   projects(id uuid pk, title, description, category, location, owner_email,
 *            goal_amount bigint, raised_amount bigint default 0,
 *            status text, needs_volunteers bool, volunteer_form_url,
 *            volunteer_description, image_urls text[], pdf_description_url,
 *            approved_at timestamptz null, created_at timestamptz)
 *   project_milestones(id uuid pk, project_id uuid fk, amount bigint,
 *            description, completed bool default false,
 *            completed_at timestamptz null)
 *   donations(id uuid pk, project_id uuid fk, donor_name, donor_email,
 *            amount bigint, message text null,
 *            gateway_payment_reference text UNIQUE,
 *            gateway_order_reference text, verified_at timestamptz)
 *   donation_orders(id uuid pk, project_id uuid fk, donor_name, donor_email,
 *            amount bigint, message text null, gateway_order_reference text,
 *            status text, created_at timestamptz)
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sahaaya/donation-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isTransientWriteError reports whether the error is contention the caller
// can safely retry: serialization failures and deadlocks.
func isTransientWriteError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const projectColumns = `id, title, description, category, location, owner_email,
	goal_amount, raised_amount, status, needs_volunteers, volunteer_form_url,
	volunteer_description, image_urls, pdf_description_url, approved_at, created_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.Location, &p.OwnerEmail,
		&p.GoalAmount, &p.RaisedAmount, &p.Status, &p.NeedsVolunteers, &p.VolunteerFormURL,
		&p.VolunteerDescription, &p.ImageURLs, &p.PDFDescriptionURL, &p.ApprovedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject persists a newly submitted project in the pending state.
func (r *PostgresRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
		INSERT INTO projects (
			id, title, description, category, location, owner_email,
			goal_amount, raised_amount, status, needs_volunteers,
			volunteer_form_url, volunteer_description, image_urls,
			pdf_description_url, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		project.ID, project.Title, project.Description, project.Category,
		project.Location, project.OwnerEmail, project.GoalAmount, project.Status,
		project.NeedsVolunteers, project.VolunteerFormURL, project.VolunteerDescription,
		project.ImageURLs, project.PDFDescriptionURL, project.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if len(project.Milestones) == 0 {
		return nil
	}
	for i := range project.Milestones {
		m := &project.Milestones[i]
		_, err = r.db.Exec(ctx,
			`INSERT INTO project_milestones (id, project_id, amount, description, completed) VALUES ($1, $2, $3, $4, FALSE)`,
			m.ID, project.ID, m.Amount, m.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to insert project milestone: %w", err)
		}
	}
	return nil
}

// FindProjectByID retrieves one project with its milestones.
func (r *PostgresRepository) FindProjectByID(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.db.QueryRow(ctx, query, projectID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if err := r.attachMilestones(ctx, []*domain.Project{project}); err != nil {
		return nil, err
	}
	return project, nil
}

// ListPendingProjects returns the moderation queue, oldest submission first.
func (r *PostgresRepository) ListPendingProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE status = $1 ORDER BY created_at ASC`
	return r.listProjects(ctx, query, domain.ProjectStatusPending)
}

// ListApprovedProjects returns approved projects, optionally filtered by category.
func (r *PostgresRepository) ListApprovedProjects(ctx context.Context, category string) ([]domain.Project, error) {
	if category != "" {
		query := `SELECT ` + projectColumns + ` FROM projects WHERE status = $1 AND category = $2 ORDER BY created_at DESC`
		return r.listProjects(ctx, query, domain.ProjectStatusApproved, category)
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE status = $1 ORDER BY created_at DESC`
	return r.listProjects(ctx, query, domain.ProjectStatusApproved)
}

func (r *PostgresRepository) listProjects(ctx context.Context, query string, args ...interface{}) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	var refs []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range projects {
		refs = append(refs, &projects[i])
	}
	if err := r.attachMilestones(ctx, refs); err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *PostgresRepository) attachMilestones(ctx context.Context, projects []*domain.Project) error {
	if len(projects) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Project, len(projects))
	ids := make([]uuid.UUID, 0, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	query := `
		SELECT id, project_id, amount, description, completed, completed_at
		FROM project_milestones
		WHERE project_id = ANY($1)
		ORDER BY amount ASC
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Amount, &m.Description, &m.Completed, &m.CompletedAt); err != nil {
			return err
		}
		if p, ok := byID[m.ProjectID]; ok {
			p.Milestones = append(p.Milestones, m)
		}
	}
	return rows.Err()
}

// ApproveProject performs the one-way moderation transition. The UPDATE is
// unconditional on status so concurrent approvals converge on the same final
// state; the previous status is captured under a row lock to report whether
// this call performed the transition.
func (r *PostgresRepository) ApproveProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, bool, error) {
	query := `
		UPDATE projects p
		SET status = $2, approved_at = COALESCE(p.approved_at, NOW())
		FROM (SELECT status AS prev_status FROM projects WHERE id = $1 FOR UPDATE) prev
		WHERE p.id = $1
		RETURNING p.id, p.title, p.description, p.category, p.location, p.owner_email,
			p.goal_amount, p.raised_amount, p.status, p.needs_volunteers, p.volunteer_form_url,
			p.volunteer_description, p.image_urls, p.pdf_description_url, p.approved_at, p.created_at,
			prev.prev_status
	`
	var p domain.Project
	var prevStatus string
	err := r.db.QueryRow(ctx, query, projectID, domain.ProjectStatusApproved).Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.Location, &p.OwnerEmail,
		&p.GoalAmount, &p.RaisedAmount, &p.Status, &p.NeedsVolunteers, &p.VolunteerFormURL,
		&p.VolunteerDescription, &p.ImageURLs, &p.PDFDescriptionURL, &p.ApprovedAt, &p.CreatedAt,
		&prevStatus,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrProjectNotFound
		}
		if isTransientWriteError(err) {
			return nil, false, ErrStorageConflict
		}
		return nil, false, err
	}
	return &p, prevStatus == domain.ProjectStatusPending, nil
}

// CreateDonationOrder persists a gateway-correlated donation intent.
func (r *PostgresRepository) CreateDonationOrder(ctx context.Context, order *domain.DonationOrder) error {
	query := `
		INSERT INTO donation_orders (
			id, project_id, donor_name, donor_email, amount, message,
			gateway_order_reference, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		order.ID, order.ProjectID, order.DonorName, order.DonorEmail, order.Amount,
		order.Message, order.GatewayOrderReference, order.Status, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert donation order: %w", err)
	}
	return nil
}

const donationColumns = `id, project_id, donor_name, donor_email, amount, message,
	gateway_payment_reference, gateway_order_reference, verified_at`

// FindDonationByPaymentReference looks up a donation by its idempotency key.
func (r *PostgresRepository) FindDonationByPaymentReference(ctx context.Context, paymentRef string) (*domain.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE gateway_payment_reference = $1`
	var d domain.Donation
	err := r.db.QueryRow(ctx, query, paymentRef).Scan(
		&d.ID, &d.ProjectID, &d.DonorName, &d.DonorEmail, &d.Amount, &d.Message,
		&d.GatewayPaymentReference, &d.GatewayOrderReference, &d.VerifiedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ApplyVerifiedDonation commits one verified payment to the ledger atomically.
// The guarded insert and the raised-amount add happen in a single transaction:
// a replayed payment reference hits the unique index, inserts nothing, and
// returns the previously committed donation untouched.
func (r *PostgresRepository) ApplyVerifiedDonation(ctx context.Context, donation *domain.Donation) (*domain.Donation, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Guarded insert keyed by the gateway payment reference.
	insertQuery := `
		INSERT INTO donations (
			id, project_id, donor_name, donor_email, amount, message,
			gateway_payment_reference, gateway_order_reference, verified_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gateway_payment_reference) DO NOTHING
	`
	ct, err := tx.Exec(ctx, insertQuery,
		donation.ID, donation.ProjectID, donation.DonorName, donation.DonorEmail,
		donation.Amount, donation.Message, donation.GatewayPaymentReference,
		donation.GatewayOrderReference, donation.VerifiedAt,
	)
	if err != nil {
		if isTransientWriteError(err) || isUniqueViolation(err) {
			return nil, false, ErrStorageConflict
		}
		return nil, false, fmt.Errorf("failed to insert donation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Already applied by an earlier (or concurrent) verification.
		existing, err := r.FindDonationByPaymentReference(ctx, donation.GatewayPaymentReference)
		if err != nil {
			if errors.Is(err, ErrDonationNotFound) {
				// The conflicting row is not visible yet (concurrent commit in flight).
				return nil, false, ErrStorageConflict
			}
			return nil, false, err
		}
		return existing, false, nil
	}

	// 2. Atomic add to the project's raised amount.
	var raised int64
	err = tx.QueryRow(ctx,
		`UPDATE projects SET raised_amount = raised_amount + $1 WHERE id = $2 RETURNING raised_amount`,
		donation.Amount, donation.ProjectID,
	).Scan(&raised)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrProjectNotFound
		}
		if isTransientWriteError(err) {
			return nil, false, ErrStorageConflict
		}
		return nil, false, fmt.Errorf("failed to update raised amount: %w", err)
	}

	// 3. Stamp milestones the new total just crossed; completed_at is write-once.
	_, err = tx.Exec(ctx, `
		UPDATE project_milestones
		SET completed = TRUE, completed_at = NOW()
		WHERE project_id = $1 AND completed = FALSE AND amount <= $2
	`, donation.ProjectID, raised)
	if err != nil {
		return nil, false, fmt.Errorf("failed to stamp milestones: %w", err)
	}

	// 4. Consume the oldest matching open order. A missing match is expected
	// (the webhook may arrive before the local order bookkeeping).
	_, err = tx.Exec(ctx, `
		UPDATE donation_orders
		SET status = $1
		WHERE id = (
			SELECT id FROM donation_orders
			WHERE project_id = $2 AND donor_email = $3 AND amount = $4 AND status = $5
			ORDER BY created_at ASC
			LIMIT 1
		)
	`, domain.OrderStatusConsumed, donation.ProjectID, donation.DonorEmail, donation.Amount, domain.OrderStatusCreated)
	if err != nil {
		return nil, false, fmt.Errorf("failed to consume donation order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isTransientWriteError(err) {
			return nil, false, ErrStorageConflict
		}
		return nil, false, fmt.Errorf("failed to commit donation: %w", err)
	}
	return donation, true, nil
}

// DonorCount counts distinct donor emails so a repeat donor counts once.
func (r *PostgresRepository) DonorCount(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT donor_email) FROM donations WHERE project_id = $1`,
		projectID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
