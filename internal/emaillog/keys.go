package emaillog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/outflowhq/outflow-backend/pkg/enums"
)

// Idempotency keys are deterministic functions of event identity, so retried
// logging calls collide on the unique index and no-op.

// SentKey identifies the single "sent" row a (lead, campaign, step) triple may have.
func SentKey(leadID, campaignID uuid.UUID, stepNumber int) string {
	return fmt.Sprintf("sent:%s:%s:%d", leadID, campaignID, stepNumber)
}

// FailedKey identifies the terminal-failure row for a dead-lettered entry.
func FailedKey(leadID, campaignID uuid.UUID, stepNumber int) string {
	return fmt.Sprintf("failed:%s:%s:%d", leadID, campaignID, stepNumber)
}

// StopKey identifies a stop marker. The nonce is the triggering event or
// request id: redelivery of the same event dedupes, distinct stop events are
// each recorded.
func StopKey(leadID uuid.UUID, reason enums.StopReason, nonce string) string {
	return fmt.Sprintf("stop:%s:%s:%s", leadID, reason, nonce)
}

// SkipKey identifies the row recording a queued step that was discarded
// because the lead's sequence had been stopped.
func SkipKey(leadID, campaignID uuid.UUID, stepNumber int) string {
	return fmt.Sprintf("skip:%s:%s:%d", leadID, campaignID, stepNumber)
}

// ReplyKey identifies an inbound reply row by the upstream event id.
func ReplyKey(leadID uuid.UUID, eventID string) string {
	return fmt.Sprintf("reply:%s:%s", leadID, eventID)
}

// TestKey identifies a test-send row by the issuing request id.
func TestKey(leadID uuid.UUID, requestID string) string {
	return fmt.Sprintf("test:%s:%s", leadID, requestID)
}
