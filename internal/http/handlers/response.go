package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ticket-intake/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client error to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Machine-readable code, see errors.go
	Code string `json:"code" example:"not_found"`
	// Safe to show to end users
	Message string `json:"message" example:"message not found"`
}

// fail aborts with a client-facing error. Use serverError when the cause is
// an internal error that must not reach the caller.
func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's NoRoute/NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// serverError logs err on the request logger and replies 500 with a generic
// message. Database and upstream errors often quote addresses or SQL.
func serverError(c *gin.Context, code string, err error) {
	middleware.LoggerFrom(c).Error().
		Err(err).
		Str("code", code).
		Msg("request failed")
	msg, known := internalMessages[code]
	if !known {
		msg = internalMessages[ErrCodeInternal]
	}
	fail(c, http.StatusInternalServerError, code, msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
