package enums

import "fmt"

// StopReason records why a lead's sequence was halted. The stopped flag is
// monotonic; the reason is informational.
type StopReason string

const (
	StopReasonReply       StopReason = "reply"
	StopReasonManual      StopReason = "manual"
	StopReasonUnsubscribe StopReason = "unsubscribe"
	StopReasonBounce      StopReason = "bounce"
)

var validStopReasons = []StopReason{
	StopReasonReply,
	StopReasonManual,
	StopReasonUnsubscribe,
	StopReasonBounce,
}

// IsValid reports whether the value matches a known stop reason.
func (r StopReason) IsValid() bool {
	for _, candidate := range validStopReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseStopReason converts raw input into StopReason.
func ParseStopReason(value string) (StopReason, error) {
	for _, candidate := range validStopReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stop reason %q", value)
}
