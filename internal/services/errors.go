// Package services defines the business logic for the intake pipeline, the
// chat assistant and the operator surface. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Chat-related errors.
var (
	// ErrEmptyMessage is returned when a chat request carries no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a chat message exceeds the configured limit.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidRequester is returned when the requester is not an email
	// address.
	ErrInvalidRequester = errors.New("requester must be an email address")
)

// Operator errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotResettable is returned when an operator asks to re-run a message
	// whose status does not allow it.
	ErrNotResettable = errors.New("message status cannot be reset")

	// ErrInvalidStatus is returned for an unknown status filter.
	ErrInvalidStatus = errors.New("unknown message status")
)
