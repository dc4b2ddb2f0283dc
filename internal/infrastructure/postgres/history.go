package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/carelink/rx-lifecycle/internal/domain/audit"
	"github.com/carelink/rx-lifecycle/internal/domain/prescription"
)

// HistoryStore appends and reads the append-only status-history trail.
type HistoryStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewHistoryStore creates a history store.
func NewHistoryStore(pool *pgxpool.Pool, logger *zap.Logger) *HistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryStore{pool: pool, logger: logger}
}

// AppendWithAudit writes one status-history row and one audit row in a
// single transaction. Lifecycle handlers call this so the trail is
// all-or-nothing per event.
func (s *HistoryStore) AppendWithAudit(ctx context.Context, change prescription.StatusChange, entry audit.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertStatusChange(ctx, tx, change); err != nil {
		return err
	}
	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByPrescription returns the ordered status trail, oldest first.
func (s *HistoryStore) ListByPrescription(ctx context.Context, id uuid.UUID) ([]prescription.StatusChange, error) {
	query := `
		SELECT id, prescription_id, old_status, new_status, actor_id, reason, at
		FROM prescription_status_history
		WHERE prescription_id = $1
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var changes []prescription.StatusChange
	for rows.Next() {
		var c prescription.StatusChange
		var oldStatus, newStatus string
		err := rows.Scan(&c.ID, &c.PrescriptionID, &oldStatus, &newStatus, &c.ActorID, &c.Reason, &c.At)
		if err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.OldStatus = prescription.Status(oldStatus)
		c.NewStatus = prescription.Status(newStatus)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func insertStatusChange(ctx context.Context, tx pgx.Tx, change prescription.StatusChange) error {
	query := `
		INSERT INTO prescription_status_history
		(prescription_id, old_status, new_status, actor_id, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Exec(ctx, query,
		change.PrescriptionID, string(change.OldStatus), string(change.NewStatus),
		change.ActorID, change.Reason, change.At,
	)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}
