package enums

import "fmt"

// OutboxStatus tracks the lifecycle of a queued email. Rows are deleted on
// confirmed send, so there is no terminal "sent" status here.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxQueued,
	OutboxSending,
}

// IsValid reports whether the value matches a known outbox status.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOutboxStatus converts raw input into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// OutboxDLQReason explains why an entry was parked in the dead-letter table.
type OutboxDLQReason string

const (
	DLQMaxAttempts OutboxDLQReason = "max_attempts"
	DLQManual      OutboxDLQReason = "manual"
)
