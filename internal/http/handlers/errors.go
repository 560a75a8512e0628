package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these; the
// message text may change.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	ErrCodeReplyFailed     = "reply_failed"     // chat turn could not be answered
	ErrCodeListFailed      = "list_failed"      // intake message listing
	ErrCodeStatsFailed     = "stats_failed"     // status counts
	ErrCodeReprocessFailed = "reprocess_failed" // status reset
)

var internalMessages = map[string]string{
	ErrCodeReplyFailed:     "the assistant could not answer, please retry",
	ErrCodeListFailed:      "could not list messages",
	ErrCodeStatsFailed:     "could not compute stats",
	ErrCodeReprocessFailed: "could not reset message",
	ErrCodeInternal:        "internal server error",
}
