package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// AuditRepository stores the timetable write trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Payload == "" {
		log.Payload = "{}"
	}
	const query = `INSERT INTO timetable_audit_logs (id, school_id, user_id, action, resource, resource_id, payload, created_at) VALUES (:id, :school_id, :user_id, :action, :resource, :resource_id, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListRecent returns the newest audit records of a tenant.
func (r *AuditRepository) ListRecent(ctx context.Context, schoolID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.Rebind(fmt.Sprintf("SELECT id, school_id, user_id, action, resource, resource_id, payload, created_at FROM timetable_audit_logs WHERE school_id = ? ORDER BY created_at DESC LIMIT %d", limit))
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, schoolID); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
