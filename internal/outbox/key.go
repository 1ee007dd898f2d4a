package outbox

import (
	"fmt"

	"github.com/google/uuid"
)

// DedupeKey is the deterministic idempotency key enforcing at most one outbox
// row per (lead, campaign, step) triple over the triple's lifetime.
func DedupeKey(leadID, campaignID uuid.UUID, stepNumber int) string {
	return fmt.Sprintf("outbox:%s:%s:%d", leadID, campaignID, stepNumber)
}
