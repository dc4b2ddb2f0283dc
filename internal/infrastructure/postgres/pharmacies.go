package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/rx-lifecycle/internal/domain"
	"github.com/carelink/rx-lifecycle/internal/domain/pharmacy"
)

// PharmacyStore is thin CRUD over the pharmacy registry.
type PharmacyStore struct {
	pool *pgxpool.Pool
}

// NewPharmacyStore creates a pharmacy store.
func NewPharmacyStore(pool *pgxpool.Pool) *PharmacyStore {
	return &PharmacyStore{pool: pool}
}

// Create inserts a pharmacy and fills in its assigned id.
func (s *PharmacyStore) Create(ctx context.Context, p *pharmacy.Pharmacy) error {
	now := time.Now().UTC()
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO pharmacies (name, address, phone, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		p.Name, p.Address, p.Phone, p.Email, p.Active, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert pharmacy: %w", err)
	}
	return nil
}

// Get returns one pharmacy, including soft-deleted rows.
func (s *PharmacyStore) Get(ctx context.Context, id int64) (*pharmacy.Pharmacy, error) {
	query := `
		SELECT id, name, address, phone, email, active, created_at, updated_at
		FROM pharmacies WHERE id = $1
	`
	var p pharmacy.Pharmacy
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Address, &p.Phone, &p.Email, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pharmacy: %w", err)
	}
	return &p, nil
}

// List returns active pharmacies.
func (s *PharmacyStore) List(ctx context.Context) ([]pharmacy.Pharmacy, error) {
	query := `
		SELECT id, name, address, phone, email, active, created_at, updated_at
		FROM pharmacies WHERE active ORDER BY name ASC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pharmacies: %w", err)
	}
	defer rows.Close()

	var result []pharmacy.Pharmacy
	for rows.Next() {
		var p pharmacy.Pharmacy
		err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Phone, &p.Email, &p.Active, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan pharmacy: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Update rewrites the mutable fields.
func (s *PharmacyStore) Update(ctx context.Context, p *pharmacy.Pharmacy) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE pharmacies SET name = $1, address = $2, phone = $3, email = $4, updated_at = $5
		WHERE id = $6 AND active
	`
	tag, err := s.pool.Exec(ctx, query, p.Name, p.Address, p.Phone, p.Email, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update pharmacy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a pharmacy.
func (s *PharmacyStore) Deactivate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pharmacies SET active = false, updated_at = $1 WHERE id = $2 AND active`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("deactivate pharmacy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
