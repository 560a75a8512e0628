// Package services – MessageService
//
// This file implements the operator view of ingested mail: paginated
// listing with an optional status filter, status counts, and the explicit
// reset that makes a failed message eligible for the pipeline again.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/utils"
)

// MessageStore is the persistence MessageService needs.
type MessageStore interface {
	ListMessages(ctx context.Context, status domain.MessageStatus, offset, limit int) ([]domain.Message, int64, error)
	ResetMessage(ctx context.Context, id string) (*domain.Message, error)
	StatusCounts(ctx context.Context) (map[domain.MessageStatus]int64, error)
}

// MessageService exposes ingested messages to operators.
type MessageService struct {
	Store MessageStore
}

// ListPage returns one page of messages, newest first, and the total count
// for the filter. An empty status lists all messages.
func (s *MessageService) ListPage(ctx context.Context, status domain.MessageStatus, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("status", string(status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	items, total, err := s.Store.ListMessages(ctx, status, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []domain.Message{}
	}
	return items, total, nil
}

// Reprocess resets a message to unprocessed. Only the resettable error
// statuses qualify.
func (s *MessageService) Reprocess(ctx context.Context, id string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Reprocess", trace.WithAttributes(attribute.String("message.id", id)))
	defer span.End()

	m, err := s.Store.ResetMessage(ctx, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrMessageNotFound
	case errors.Is(err, repo.ErrNotResettable):
		return nil, ErrNotResettable
	case err != nil:
		return nil, err
	}
	return m, nil
}

// StatusCounts returns the number of messages per status.
func (s *MessageService) StatusCounts(ctx context.Context) (map[domain.MessageStatus]int64, error) {
	return s.Store.StatusCounts(ctx)
}
