package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outflowhq/outflow-backend/pkg/db"
	"github.com/outflowhq/outflow-backend/pkg/db/models"
	"github.com/outflowhq/outflow-backend/pkg/enums"
)

const dedupeKeyIndex = "idx_outbox_emails_dedupe_key"

// claimSQL marks up to N due, unclaimed rows as sending with a fresh lock
// token in one statement. SKIP LOCKED keeps concurrent dispatcher passes from
// blocking on or double-claiming the same rows.
const claimSQL = `
UPDATE outbox_emails
SET status = ?, lock_token = ?, claimed_at = ?, updated_at = ?
WHERE id IN (
    SELECT id FROM outbox_emails
    WHERE lock_token IS NULL AND status = ? AND send_after <= ?
    ORDER BY send_after ASC
    LIMIT ?
    FOR UPDATE SKIP LOCKED
)
RETURNING *`

// Repository owns every claim/release/complete transition on outbox rows.
// Application code never reads then writes the lock fields; each transition is
// a single conditional statement.
type Repository struct {
	client *db.Client
}

// NewRepository returns an outbox repository bound to the provided client.
func NewRepository(client *db.Client) *Repository {
	return &Repository{client: client}
}

// Enqueue inserts a rendered email idempotently. The dedupe key is derived
// from the entry's (lead, campaign, step); a duplicate insert is a no-op and
// reports created=false.
func (r *Repository) Enqueue(ctx context.Context, entry *models.OutboxEmail) (bool, error) {
	if entry == nil {
		return false, errors.New("outbox entry required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.DedupeKey == "" {
		entry.DedupeKey = DedupeKey(entry.LeadID, entry.CampaignID, entry.StepNumber)
	}
	if entry.Status == "" {
		entry.Status = enums.OutboxQueued
	}

	if err := r.client.DB().WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsUniqueViolation(err, dedupeKeyIndex) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ClaimDue atomically claims up to limit due, unclaimed entries and returns
// them together with the batch lock token. Zero claimed rows is a normal
// outcome, not an error.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEmail, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}

	token := uuid.NewString()
	var claimed []models.OutboxEmail
	err := r.client.DB().WithContext(ctx).
		Raw(claimSQL,
			enums.OutboxSending, token, now, now,
			enums.OutboxQueued, now, limit,
		).
		Scan(&claimed).Error
	if err != nil {
		return nil, "", err
	}
	return claimed, token, nil
}

// CompleteSent finalizes a confirmed send: in one transaction it deletes the
// entry if it still holds the token and appends the sent log row. A token
// mismatch means a concurrent completion already handled the row; that is a
// silent skip, reported as finalized=false.
func (r *Repository) CompleteSent(ctx context.Context, entryID uuid.UUID, token string, logRow *models.EmailLog) (bool, error) {
	if token == "" {
		return false, errors.New("lock token required")
	}
	if logRow == nil {
		return false, errors.New("log row required")
	}
	if logRow.ID == uuid.Nil {
		logRow.ID = uuid.New()
	}

	finalized := false
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND lock_token = ?", entryID, token).
			Delete(&models.OutboxEmail{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Create(logRow).Error; err != nil {
			if !db.IsUniqueViolation(err, "idx_email_logs_idempotency_key") {
				return err
			}
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

// Discard drops a claimed entry without sending, recording an optional log
// row in the same transaction. Used when the lead's sequence was stopped after
// the entry was enqueued; the queued step is stale and must not go out. A
// token mismatch is a silent skip.
func (r *Repository) Discard(ctx context.Context, entryID uuid.UUID, token string, logRow *models.EmailLog) (bool, error) {
	if token == "" {
		return false, errors.New("lock token required")
	}
	if logRow != nil && logRow.ID == uuid.Nil {
		logRow.ID = uuid.New()
	}

	discarded := false
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND lock_token = ?", entryID, token).
			Delete(&models.OutboxEmail{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if logRow != nil {
			if err := tx.Create(logRow).Error; err != nil {
				if !db.IsUniqueViolation(err, "idx_email_logs_idempotency_key") {
					return err
				}
			}
		}
		discarded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return discarded, nil
}

// Release returns a claimed entry to the queue after a send failure,
// incrementing attempts and recording the error. A token mismatch is a silent
// skip.
func (r *Repository) Release(ctx context.Context, entryID uuid.UUID, token string, sendErr error) (bool, error) {
	if token == "" {
		return false, errors.New("lock token required")
	}

	updates := map[string]any{
		"status":     enums.OutboxQueued,
		"lock_token": nil,
		"claimed_at": nil,
		"attempts":   gorm.Expr("attempts + 1"),
	}
	if sendErr != nil {
		updates["last_error"] = sendErr.Error()
	}

	res := r.client.DB().WithContext(ctx).
		Model(&models.OutboxEmail{}).
		Where("id = ? AND lock_token = ?", entryID, token).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeadLetter moves an entry whose retry budget is exhausted into the DLQ and
// appends the terminal failure log row, all token-guarded in one transaction.
func (r *Repository) DeadLetter(ctx context.Context, entry models.OutboxEmail, token string, reason enums.OutboxDLQReason, lastErr error, now time.Time, logRow *models.EmailLog) (bool, error) {
	if token == "" {
		return false, errors.New("lock token required")
	}

	moved := false
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND lock_token = ?", entry.ID, token).
			Delete(&models.OutboxEmail{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var lastErrText *string
		if lastErr != nil {
			text := lastErr.Error()
			lastErrText = &text
		} else {
			lastErrText = entry.LastError
		}

		dlqRow := models.OutboxEmailDLQ{
			ID:         uuid.New(),
			OutboxID:   entry.ID,
			DedupeKey:  entry.DedupeKey,
			LeadID:     entry.LeadID,
			CampaignID: entry.CampaignID,
			StepNumber: entry.StepNumber,
			ToEmail:    entry.ToEmail,
			Subject:    entry.Subject,
			Body:       entry.Body,
			Reason:     reason,
			Attempts:   entry.Attempts + 1,
			LastError:  lastErrText,
			FailedAt:   now,
		}
		if err := tx.Create(&dlqRow).Error; err != nil {
			return err
		}

		if logRow != nil {
			if logRow.ID == uuid.Nil {
				logRow.ID = uuid.New()
			}
			if err := tx.Create(logRow).Error; err != nil {
				if !db.IsUniqueViolation(err, "idx_email_logs_idempotency_key") {
					return err
				}
			}
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

// RequeueStale releases claims older than the cutoff back to queued. Covers
// dispatcher crashes mid-send; the lock token is cleared, so a late completion
// still holding the old token fails the guard and lands on the silent-skip
// path.
func (r *Repository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.client.DB().WithContext(ctx).
		Model(&models.OutboxEmail{}).
		Where("status = ? AND claimed_at < ?", enums.OutboxSending, cutoff).
		Updates(map[string]any{
			"status":     enums.OutboxQueued,
			"lock_token": nil,
			"claimed_at": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// GetByID fetches one entry; used by admin remediation surfaces.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.OutboxEmail, error) {
	var entry models.OutboxEmail
	if err := r.client.DB().WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
