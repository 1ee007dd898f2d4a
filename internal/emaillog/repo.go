package emaillog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

const uniqueKeyIndex = "idx_email_logs_idempotency_key"

// Repository exposes the append-only email log.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns an email log repository bound to the provided database.
func NewRepository(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

// Append inserts a log row. A duplicate idempotency key is a no-op; the
// returned bool reports whether a fresh row was written.
func (r *Repository) Append(ctx context.Context, row *models.EmailLog) (bool, error) {
	return appendRow(r.db.WithContext(ctx), row)
}

// AppendTx inserts a log row inside the caller's transaction with the same
// duplicate-key semantics as Append.
func (r *Repository) AppendTx(tx *gorm.DB, row *models.EmailLog) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	return appendRow(tx, row)
}

func appendRow(tx *gorm.DB, row *models.EmailLog) (bool, error) {
	if row == nil {
		return false, errors.New("log row required")
	}
	if row.IdempotencyKey == "" {
		return false, errors.New("idempotency key required")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if err := tx.Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, uniqueKeyIndex) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListForLead returns the most recent log rows for a lead, newest first.
func (r *Repository) ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]models.EmailLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.EmailLog
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListSince returns log rows created after the given cursor time, oldest
// first, for analytics export.
func (r *Repository) ListSince(ctx context.Context, since time.Time, limit int) ([]models.EmailLog, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []models.EmailLog
	err := r.db.WithContext(ctx).
		Where("created_at > ?", since).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
