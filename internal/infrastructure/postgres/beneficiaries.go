package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/beneficiary"
)

// BeneficiaryStore is thin CRUD over main-member dependents.
type BeneficiaryStore struct {
	pool *pgxpool.Pool
}

// NewBeneficiaryStore creates a beneficiary store.
func NewBeneficiaryStore(pool *pgxpool.Pool) *BeneficiaryStore {
	return &BeneficiaryStore{pool: pool}
}

// Create inserts a beneficiary and fills in its assigned id.
func (s *BeneficiaryStore) Create(ctx context.Context, b *beneficiary.Beneficiary) error {
	now := time.Now().UTC()
	b.Active = true
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `
		INSERT INTO beneficiaries
		(main_member_id, first_name, last_name, date_of_birth, relationship, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		b.MainMemberID, b.FirstName, b.LastName, b.DateOfBirth, b.Relationship,
		b.Active, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	return nil
}

// Get returns one beneficiary.
func (s *BeneficiaryStore) Get(ctx context.Context, id int64) (*beneficiary.Beneficiary, error) {
	query := `
		SELECT id, main_member_id, first_name, last_name, date_of_birth, relationship,
		       active, created_at, updated_at
		FROM beneficiaries WHERE id = $1
	`
	var b beneficiary.Beneficiary
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.MainMemberID, &b.FirstName, &b.LastName, &b.DateOfBirth,
		&b.Relationship, &b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query beneficiary: %w", err)
	}
	return &b, nil
}

// ListByMember returns a member's active beneficiaries.
func (s *BeneficiaryStore) ListByMember(ctx context.Context, mainMemberID int64) ([]beneficiary.Beneficiary, error) {
	query := `
		SELECT id, main_member_id, first_name, last_name, date_of_birth, relationship,
		       active, created_at, updated_at
		FROM beneficiaries
		WHERE main_member_id = $1 AND active
		ORDER BY last_name, first_name
	`
	rows, err := s.pool.Query(ctx, query, mainMemberID)
	if err != nil {
		return nil, fmt.Errorf("query beneficiaries: %w", err)
	}
	defer rows.Close()

	var result []beneficiary.Beneficiary
	for rows.Next() {
		var b beneficiary.Beneficiary
		err := rows.Scan(&b.ID, &b.MainMemberID, &b.FirstName, &b.LastName, &b.DateOfBirth,
			&b.Relationship, &b.Active, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// Update rewrites the mutable fields.
func (s *BeneficiaryStore) Update(ctx context.Context, b *beneficiary.Beneficiary) error {
	b.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE beneficiaries
		SET first_name = $1, last_name = $2, date_of_birth = $3, relationship = $4, updated_at = $5
		WHERE id = $6 AND active
	`
	tag, err := s.pool.Exec(ctx, query,
		b.FirstName, b.LastName, b.DateOfBirth, b.Relationship, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update beneficiary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a beneficiary.
func (s *BeneficiaryStore) Deactivate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE beneficiaries SET active = false, updated_at = $1 WHERE id = $2 AND active`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate beneficiary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
