package restore

import "strings"

// ErrorKind maps a platform status code to the label used when grouping
// failures in restore output.
type ErrorKind struct {
	Code  string
	Label string
}

// errorKinds is checked in order; the first code contained in the message
// wins.
var errorKinds = []ErrorKind{
	{"REQUIRED_FIELD_MISSING", "Required field missing"},
	{"FIELD_CUSTOM_VALIDATION_EXCEPTION", "Validation rule failed"},
	{"DUPLICATE_VALUE", "Duplicate value"},
	{"INVALID_CROSS_REFERENCE_KEY", "Invalid lookup reference"},
	{"MALFORMED_ID", "Malformed ID"},
	{"INVALID_FIELD", "Invalid field"},
	{"INVALID_OR_NULL_FOR_RESTRICTED_PICKLIST", "Invalid picklist value"},
	{"STRING_TOO_LONG", "String too long"},
	{"UNABLE_TO_LOCK_ROW", "Row lock conflict"},
	{"CANNOT_INSERT_UPDATE_ACTIVATE_ENTITY", "Trigger/process failure"},
	{"ENTITY_IS_DELETED", "Referenced record deleted"},
	{"INSUFFICIENT_ACCESS", "Insufficient access"},
}

// ClassifyError returns the grouping label for a platform error message.
// Unrecognized messages are truncated to 50 characters and used verbatim.
func ClassifyError(message string) string {
	for _, kind := range errorKinds {
		if strings.Contains(message, kind.Code) {
			return kind.Label
		}
	}
	if len(message) > 50 {
		return message[:50] + "..."
	}
	return message
}

// IsRetryableError reports whether a per-record error message indicates a
// transient condition worth retrying the batch for.
func IsRetryableError(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "temporarily unavailable") ||
		(strings.Contains(lower, "concurrent") && strings.Contains(lower, "update")) ||
		strings.Contains(lower, "lock") ||
		strings.Contains(lower, "unable_to_lock_row") ||
		strings.Contains(lower, "request_running_too_long")
}

// IsRetryableFailure reports whether a whole-batch failure looks like a
// transient network or service issue.
func IsRetryableFailure(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())

	// Network-level failures.
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no route to host") ||
		strings.Contains(lower, "network unreachable") {
		return true
	}

	// Platform transient errors.
	return strings.Contains(lower, "temporarily unavailable") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504")
}
