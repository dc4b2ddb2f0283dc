// Package postgres provides PostgreSQL persistence for the lifecycle
// service. The prescription store implements the three-phase save:
// collect pending events, commit the transaction, then publish — events
// are never published before (or without) a durable commit.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
	"github.com/carelink/rx-lifecycle/internal/eventbus"
)

// PrescriptionStore persists prescription aggregates with optimistic
// concurrency on the version column.
type PrescriptionStore struct {
	pool   *pgxpool.Pool
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewPrescriptionStore creates a store publishing committed events on bus.
func NewPrescriptionStore(pool *pgxpool.Pool, bus *eventbus.Bus, logger *zap.Logger) *PrescriptionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionStore{pool: pool, bus: bus, logger: logger}
}

// Create inserts a new prescription together with any attached file
// references, then publishes the creation event.
func (s *PrescriptionStore) Create(ctx context.Context, p *prescription.Prescription, fileRefs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO prescriptions
		(id, main_member_id, beneficiary_id, doctor_id, assigned_pharmacy_id,
		 status, issued_at, expires_at, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		p.ID(), p.MainMemberID(), p.BeneficiaryID(), p.DoctorID(), p.AssignedPharmacyID(),
		string(p.Status()), p.IssuedAt(), p.ExpiresAt(), p.Notes(), p.Version(),
		p.CreatedAt(), p.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}

	for _, ref := range fileRefs {
		_, err = tx.Exec(ctx,
			`INSERT INTO prescription_files (prescription_id, storage_ref) VALUES ($1, $2)`,
			p.ID(), ref)
		if err != nil {
			return fmt.Errorf("insert prescription file: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.publishCommitted(ctx, p)
	return nil
}

// Save persists the aggregate's current state. The update is guarded by
// the version the aggregate was loaded with; losing the race surfaces
// domain.ErrVersionConflict and publishes nothing.
func (s *PrescriptionStore) Save(ctx context.Context, p *prescription.Prescription) error {
	query := `
		UPDATE prescriptions
		SET status = $1, assigned_pharmacy_id = $2, notes = $3,
		    version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6
	`
	tag, err := s.pool.Exec(ctx, query,
		string(p.Status()), p.AssignedPharmacyID(), p.Notes(), p.UpdatedAt(),
		p.ID(), p.Version(),
	)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	s.publishCommitted(ctx, p)
	return nil
}

// Get loads one prescription aggregate.
func (s *PrescriptionStore) Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	query := `
		SELECT id, main_member_id, beneficiary_id, doctor_id, assigned_pharmacy_id,
		       status, issued_at, expires_at, notes, version, created_at, updated_at
		FROM prescriptions
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	return scanPrescription(row)
}

// GetDetail loads a prescription together with its assigned pharmacy's
// name, the navigation data notification text needs.
func (s *PrescriptionStore) GetDetail(ctx context.Context, id uuid.UUID) (*prescription.Prescription, string, error) {
	query := `
		SELECT p.id, p.main_member_id, p.beneficiary_id, p.doctor_id, p.assigned_pharmacy_id,
		       p.status, p.issued_at, p.expires_at, p.notes, p.version, p.created_at, p.updated_at,
		       COALESCE(ph.name, '')
		FROM prescriptions p
		LEFT JOIN pharmacies ph ON ph.id = p.assigned_pharmacy_id
		WHERE p.id = $1
	`
	var r prescription.Restored
	var status string
	var pharmacyName string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.MainMemberID, &r.BeneficiaryID, &r.DoctorID, &r.AssignedPharmacyID,
		&status, &r.IssuedAt, &r.ExpiresAt, &r.Notes, &r.Version, &r.CreatedAt, &r.UpdatedAt,
		&pharmacyName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", domain.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("query prescription detail: %w", err)
	}
	r.Status = prescription.Status(status)
	return prescription.Restore(r), pharmacyName, nil
}

// List returns prescriptions matching the filter, newest first.
func (s *PrescriptionStore) List(ctx context.Context, f prescription.Filter) ([]*prescription.Prescription, error) {
	query := `
		SELECT id, main_member_id, beneficiary_id, doctor_id, assigned_pharmacy_id,
		       status, issued_at, expires_at, notes, version, created_at, updated_at
		FROM prescriptions
		WHERE ($1 = '' OR status = $1)
		  AND ($2::bigint IS NULL OR assigned_pharmacy_id = $2)
		  AND ($3::bigint IS NULL OR main_member_id = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, string(f.Status), f.PharmacyID, f.MainMemberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var result []*prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CountActive returns the number of non-terminal prescriptions.
func (s *PrescriptionStore) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE status NOT IN ('Delivered', 'Rejected', 'Cancelled', 'Expired')`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active prescriptions: %w", err)
	}
	return n, nil
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	var r prescription.Restored
	var status string
	err := row.Scan(
		&r.ID, &r.MainMemberID, &r.BeneficiaryID, &r.DoctorID, &r.AssignedPharmacyID,
		&status, &r.IssuedAt, &r.ExpiresAt, &r.Notes, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prescription: %w", err)
	}
	r.Status = prescription.Status(status)
	return prescription.Restore(r), nil
}

// publishCommitted drains committed events and dispatches them inline.
// A handler failure at this point is logged, not returned: the state
// transition is already durable and the caller sees success.
func (s *PrescriptionStore) publishCommitted(ctx context.Context, p *prescription.Prescription) {
	events := p.Committed()
	if len(events) == 0 || s.bus == nil {
		return
	}

	busEvents := make([]eventbus.Event, len(events))
	for i, e := range events {
		busEvents[i] = e
	}
	if err := s.bus.Publish(ctx, busEvents...); err != nil {
		s.logger.Error("post-commit event dispatch failed",
			zap.String("prescription_id", p.ID().String()),
			zap.Error(err))
	}
}
