package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication / Authorization ────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrRoleDenied    ErrCode = "ROLE_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam definition ───────────────────────────────────────────────
	ErrInvalidTimeRange ErrCode = "INVALID_TIME_RANGE"
	ErrExamLocked       ErrCode = "EXAM_LOCKED"
	ErrAttemptsExist    ErrCode = "ATTEMPTS_EXIST"
	ErrNotExamOwner     ErrCode = "NOT_EXAM_OWNER"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamNotOpen          ErrCode = "EXAM_NOT_OPEN"
	ErrExamClosed           ErrCode = "EXAM_CLOSED"
	ErrAttemptAlreadyActive ErrCode = "ATTEMPT_ALREADY_ACTIVE"
	ErrInvalidAttemptToken  ErrCode = "INVALID_ATTEMPT_TOKEN"
	ErrNotAttemptOwner      ErrCode = "NOT_ATTEMPT_OWNER"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrTimeLimitExceeded    ErrCode = "TIME_LIMIT_EXCEEDED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrRoleDenied:
		return "This resource is restricted to another role."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrInvalidTimeRange:
		return "The exam start time must be before its end time."
	case ErrExamLocked:
		return "This exam has submitted attempts and can no longer be modified."
	case ErrAttemptsExist:
		return "This exam has existing student attempts and cannot be deleted."
	case ErrNotExamOwner:
		return "You are not the owner of this exam."
	case ErrExamNotOpen:
		return "This exam has not opened yet."
	case ErrExamClosed:
		return "This exam has closed."
	case ErrAttemptAlreadyActive:
		return "You already have an active attempt for this exam."
	case ErrInvalidAttemptToken:
		return "Attempt token verification failed."
	case ErrNotAttemptOwner:
		return "This attempt does not belong to you."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrTimeLimitExceeded:
		return "The exam time limit has been exceeded."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
