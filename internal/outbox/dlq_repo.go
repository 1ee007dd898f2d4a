package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
)

// DLQRepository reads and prunes the dead-letter table.
type DLQRepository struct {
	client *db.Client
}

// NewDLQRepository returns a DLQ repository bound to the provided client.
func NewDLQRepository(client *db.Client) *DLQRepository {
	return &DLQRepository{client: client}
}

// List returns recent dead-lettered entries, newest failures first.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]models.OutboxEmailDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxEmailDLQ
	err := r.client.DB().WithContext(ctx).
		Order("failed_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListForLead returns dead-lettered entries for one lead.
func (r *DLQRepository) ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]models.OutboxEmailDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxEmailDLQ
	err := r.client.DB().WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("failed_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// PurgeOlderThan deletes dead-lettered rows whose failure predates the cutoff.
func (r *DLQRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.client.DB().WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.OutboxEmailDLQ{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
