package enums

import "fmt"

// EmailLogEvent classifies an append-only email log row.
type EmailLogEvent string

const (
	LogEventSent    EmailLogEvent = "sent"
	LogEventFailed  EmailLogEvent = "failed"
	LogEventTest    EmailLogEvent = "test"
	LogEventReply   EmailLogEvent = "reply"
	LogEventStopped EmailLogEvent = "stopped"
)

var validEmailLogEvents = []EmailLogEvent{
	LogEventSent,
	LogEventFailed,
	LogEventTest,
	LogEventReply,
	LogEventStopped,
}

// IsValid reports whether the value matches a known log event type.
func (e EmailLogEvent) IsValid() bool {
	for _, candidate := range validEmailLogEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEmailLogEvent converts raw input into EmailLogEvent.
func ParseEmailLogEvent(value string) (EmailLogEvent, error) {
	for _, candidate := range validEmailLogEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email log event %q", value)
}

// EmailDirection marks whether a logged email was outbound or inbound.
type EmailDirection string

const (
	DirectionOutbound EmailDirection = "outbound"
	DirectionInbound  EmailDirection = "inbound"
)
