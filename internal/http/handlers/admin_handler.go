// Operator HTTP handlers.
//
// This file exposes the admin surface for ingested mail:
//   - GET  /admin/messages                  (list, paginated, ETag support)
//   - POST /admin/messages/{id}/reprocess   (reset a failed message)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/http/middleware"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/services"
	"github.com/tbourn/go-ticket-intake/internal/utils"
)

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ReprocessResponse returns the message after the reset.
type ReprocessResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List ingested messages (paginated)
// @Description Returns a page of ingested messages, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"messages:all:10:1700000000\")
// @Param       status         query   string  false "Filter by status"  Enums(unprocessed, processed, duplicate, ignored, error_classification, error_no_requester, error_ticket_system, error_reconciliation)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	status := domain.MessageStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status")
		return
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		count, maxTS, err := repo.MessagesStats(ctx, h.opts.DB, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			filter := string(status)
			if filter == "" {
				filter = "all"
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, filter, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, status, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status")
			return
		}
		serverError(c, ErrCodeListFailed, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ReprocessMessage godoc
// @ID          reprocessMessage
// @Summary     Re-run a failed message
// @Description Moves a message in error_classification, error_no_requester or error_ticket_system
// @Description back to unprocessed. The next ticket attempt carries a new correlation token.
// @Tags        Admin
// @Produce     json
//
// @Param       id  path  string  true  "Message ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.ReprocessResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Status cannot be reset"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/messages/{id}/reprocess [post]
func (h *Handlers) ReprocessMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	m, err := h.msgSvc.Reprocess(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		return
	case errors.Is(err, services.ErrNotResettable):
		fail(c, http.StatusConflict, ErrCodeConflict, "message status cannot be reset")
		return
	case err != nil:
		serverError(c, ErrCodeReprocessFailed, err)
		return
	}

	middleware.LoggerFrom(c).Info().Str("message_id", id).Msg("message reset for reprocessing")
	ok(c, http.StatusOK, ReprocessResponse{Message: m})
}
