// Chat HTTP handlers.
//
// This file exposes the chat surface:
//   - POST /chat                 (one conversational turn)
//   - POST /reset/{requester}    (drop the requester's conversation)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a reply was stored
// for (requester, key), the handler returns that reply and sets
// `Idempotency-Replayed: true`. A replay never opens a second ticket.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-ticket-intake/internal/http/middleware"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/services"
)

//
// DTOs
//

// ChatRequest is the JSON payload for one chat turn.
type ChatRequest struct {
	// Message is the user's text. It must be non-empty.
	Message string `json:"message" example:"My laptop will not connect to the VPN since this morning"`
	// Requester is the user's email address.
	Requester string `json:"requester" example:"jane.doe@example.com"`
}

// ChatResponse is the assistant's answer to one turn.
type ChatResponse struct {
	Response       string  `json:"response" example:"I've created an incident for your VPN issue."`
	TicketCreated  bool    `json:"ticket_created"`
	TicketRef      *string `json:"ticket_ref,omitempty" example:"INC0010023"`
	RequiresAction bool    `json:"requires_action"`
}

// ResetResponse reports whether a conversation was dropped.
type ResetResponse struct {
	// Status is "success" or "no_active_conversation".
	Status string `json:"status" example:"success"`
}

const (
	resetSuccess  = "success"
	resetNoActive = "no_active_conversation"
)

//
// Handlers
//

// PostChat godoc
// @ID          postChat
// @Summary     Send a chat message
// @Description Runs one conversational turn. The assistant may answer from the FAQ,
// @Description ask for clarification, or open a ticket on the requester's behalf.
// @Description Supports idempotency via the Idempotency-Key header (same key → same reply).
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ChatRequest  true  "Chat turn"
//
// @Success     200  {object}  handlers.ChatResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the stored reply was returned"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [post]
func (h *Handlers) PostChat(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	requester := strings.ToLower(strings.TrimSpace(req.Requester))
	c.Set(middleware.CtxKeyRequester, requester)

	// Replay path.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.opts.DB != nil && requester != "" {
		if rec, err := repo.GetIdempotency(ctx, h.opts.DB, requester, idemKey, h.opts.Now().UTC()); err == nil {
			c.Header("Idempotency-Replayed", "true")
			c.Data(rec.Status, "application/json; charset=utf-8", []byte(rec.Response))
			return
		}
	}

	reply, err := h.chatSvc.Reply(ctx, requester, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message cannot be empty")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		case errors.Is(err, services.ErrInvalidRequester):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid requester email is required")
		default:
			serverError(c, ErrCodeReplyFailed, err)
		}
		return
	}

	resp := ChatResponse{
		Response:       reply.Response,
		TicketCreated:  reply.TicketCreated,
		RequiresAction: reply.RequiresAction,
	}
	if reply.TicketRef != "" {
		ref := reply.TicketRef
		resp.TicketRef = &ref
	}

	// Store path, best effort.
	if idemKey != "" && h.opts.DB != nil {
		if b, err := json.Marshal(resp); err == nil {
			if _, err := repo.CreateIdempotency(ctx, h.opts.DB, requester, idemKey, string(b), http.StatusOK, h.opts.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotent reply")
			}
		}
	}

	ok(c, http.StatusOK, resp)
}

// ResetConversation godoc
// @ID          resetConversation
// @Summary     Reset a conversation
// @Description Drops the requester's chat session, including any partially collected ticket details.
// @Tags        Chat
// @Produce     json
//
// @Param       requester  path  string  true  "Requester email"  example(jane.doe@example.com)
//
// @Success     200  {object}  handlers.ResetResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /reset/{requester} [post]
func (h *Handlers) ResetConversation(c *gin.Context) {
	requester := strings.ToLower(strings.TrimSpace(c.Param("requester")))
	if !strings.Contains(requester, "@") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "a valid requester email is required")
		return
	}
	c.Set(middleware.CtxKeyRequester, requester)

	status := resetNoActive
	if h.chatSvc.Reset(requester) {
		status = resetSuccess
	}
	ok(c, http.StatusOK, ResetResponse{Status: status})
}
