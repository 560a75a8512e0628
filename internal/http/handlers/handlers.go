// Package handlers provides HTTP handler implementations for the public chat
// API and the operator admin API.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services, and translate results into HTTP responses using the
// envelope helpers in response.go.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/faq"
	"github.com/tbourn/go-ticket-intake/internal/services"
)

//
// Service contracts (context-aware)
//

// ChatService runs chat turns and manages conversation sessions.
type ChatService interface {
	// Reply handles one user message and returns the assistant's answer.
	Reply(ctx context.Context, requester, message string) (services.ChatReply, error)
	// Reset ends the requester's conversation; false when none was active.
	Reset(requester string) bool
	// ActiveConversations returns the number of live sessions.
	ActiveConversations() int
}

// MessageService exposes ingested mail to operators.
type MessageService interface {
	ListPage(ctx context.Context, status domain.MessageStatus, page, pageSize int) ([]domain.Message, int64, error)
	Reprocess(ctx context.Context, id string) (*domain.Message, error)
	StatusCounts(ctx context.Context) (map[domain.MessageStatus]int64, error)
}

//
// Handler wiring
//

// Options carries optional dependencies.
type Options struct {
	// DB backs idempotent chat replays, ETags on the admin list and the
	// health probe. Nil disables all three.
	DB *gorm.DB
	// IdempotencyTTL bounds how long a stored chat reply can be replayed.
	IdempotencyTTL time.Duration
	// StartedAt is reported as uptime by /health.
	StartedAt time.Time
	// Now is injectable for tests.
	Now func() time.Time
}

// Handlers groups the HTTP endpoints. It depends on service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	chatSvc ChatService
	msgSvc  MessageService
	faq     *faq.KnowledgeBase
	opts    Options
}

// New constructs a Handlers instance bound to the given services. kb may be
// nil when the FAQ is disabled.
func New(chatSvc ChatService, msgSvc MessageService, kb *faq.KnowledgeBase, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = opts.Now()
	}
	return &Handlers{chatSvc: chatSvc, msgSvc: msgSvc, faq: kb, opts: opts}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
