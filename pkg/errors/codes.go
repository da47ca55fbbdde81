package errors

// Code 是稳定的机器可读错误码。
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInternal         Code = "INTERNAL"

	// 匹配流水线专用错误码
	CodeIncompleteProfile    Code = "INCOMPLETE_PROFILE"
	CodeScoringFailed        Code = "SCORING_FAILED"
	CodeScorerUnavailable    Code = "SCORER_UNAVAILABLE"
	CodeConversationInactive Code = "CONVERSATION_INACTIVE"
	CodeAlreadyModerated     Code = "ALREADY_MODERATED"
)
