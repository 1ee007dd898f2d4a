package leads

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// Repository owns lead cursor, halt, and reply mutations. All conditional
// transitions are single statements; callers learn the outcome from the
// affected-row count, never by reading first.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a leads repository bound to the provided database.
func NewRepository(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

// GetByID fetches a lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).First(&lead, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// ListDue returns unstopped leads whose next email is due, oldest-due first
// for fairness under backlog. Leads without an email address are skipped.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Lead
	err := r.db.WithContext(ctx).
		Where("email_sequence_stopped = ?", false).
		Where("next_email_at IS NOT NULL AND next_email_at <= ?", now).
		Where("email IS NOT NULL AND email <> ''").
		Order("next_email_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// AdvanceCursor points the lead at its next step. The update is conditioned on
// the stopped flag still being false; advanced=false means a stop won the race
// and the cursor must stay cleared.
func (r *Repository) AdvanceCursor(ctx context.Context, leadID uuid.UUID, nextStep int, dueAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ? AND email_sequence_stopped = ?", leadID, false).
		Updates(map[string]any{
			"next_email_step":   nextStep,
			"next_email_at":     dueAt,
			"last_email_status": "sent",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteSequence clears the cursor when no further step is defined. Like
// AdvanceCursor it is conditioned on the stopped flag: completed=false means a
// stop won the race and the stop's status must stand.
func (r *Repository) CompleteSequence(ctx context.Context, leadID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ? AND email_sequence_stopped = ?", leadID, false).
		Updates(map[string]any{
			"next_email_step":   nil,
			"next_email_at":     nil,
			"last_email_status": "sequence_complete",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Stop sets the monotonic halt flag and clears the cursor. Stopping an
// already-stopped lead converges on the same state. For reply stops the reply
// time is stamped as well. found=false means the lead does not exist.
func (r *Repository) Stop(ctx context.Context, leadID uuid.UUID, reason enums.StopReason, now time.Time) (bool, error) {
	updates := map[string]any{
		"email_sequence_stopped": true,
		"next_email_step":        nil,
		"next_email_at":          nil,
		"last_email_status":      string(reason),
	}
	if reason == enums.StopReasonReply {
		updates["last_email_reply_at"] = now
	}

	res := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ?", leadID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReplyFields carries the metadata captured from an inbound reply.
type ReplyFields struct {
	FromEmail string
	Subject   string
	Snippet   string
}

// MarkReplied records reply metadata and flips the lifecycle status.
func (r *Repository) MarkReplied(ctx context.Context, leadID uuid.UUID, reply ReplyFields, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ?", leadID).
		Updates(map[string]any{
			"status":              enums.LeadReplied,
			"last_reply_from":     reply.FromEmail,
			"last_reply_subject":  reply.Subject,
			"last_reply_snippet":  reply.Snippet,
			"last_reply_at":       now,
			"last_email_reply_at": now,
		}).Error
}
