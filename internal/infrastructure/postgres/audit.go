package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/domain/audit"
)

// AuditStore appends and reads the append-only audit log.
type AuditStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAuditStore creates an audit store.
func NewAuditStore(pool *pgxpool.Pool, logger *zap.Logger) *AuditStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditStore{pool: pool, logger: logger}
}

// Append writes one audit entry in its own transaction. Used by direct
// command handlers (e.g. beneficiary creation).
func (s *AuditStore) Append(ctx context.Context, entry audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Recent returns the newest audit entries.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, action, details, actor_id, prescription_id, pharmacy_id, at
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		err := rows.Scan(&e.ID, &e.Action, &e.Details, &e.ActorID, &e.PrescriptionID, &e.PharmacyID, &e.At)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertAuditEntry(ctx context.Context, tx pgx.Tx, entry audit.Entry) error {
	query := `
		INSERT INTO audit_log (action, details, actor_id, prescription_id, pharmacy_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		entry.Action, entry.Details, entry.ActorID, entry.PrescriptionID, entry.PharmacyID, entry.At,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
