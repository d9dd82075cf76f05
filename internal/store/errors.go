package store

import "errors"

var (
	// ErrConversationNotFound is returned when an operation references an
	// unknown conversation id. Surfaced to the caller, never retried.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned by EditMessage for an unknown message id
	ErrMessageNotFound = errors.New("message not found")

	// ErrQuotaExceeded is returned when a mutation would push the serialized
	// document over the configured storage quota. The write is rejected.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidData marks a corrupt or unmigratable persisted document.
	// The store recovers with a fresh default document instead of failing.
	ErrInvalidData = errors.New("invalid store document")

	// ErrStoreClosed is returned for operations after Close
	ErrStoreClosed = errors.New("store is closed")
)
