// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/peaklee4u/inquirytutor/internal/domain"
)

// ErrMissingIdentity is returned when a transcript lacks a student number or name.
var ErrMissingIdentity = errors.New("transcript requires student number and name")

// ListFilter narrows ListTranscripts.
type ListFilter struct {
	// StudentNumber restricts results to one student when non-empty.
	StudentNumber string
	// Limit caps the number of rows; zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit is used when ListFilter.Limit is zero.
const DefaultListLimit = 50

// Repository defines the interface for persisting conversation transcripts.
type Repository interface {
	// SaveTranscript inserts a transcript and returns its row ID.
	SaveTranscript(ctx context.Context, t *domain.Transcript) (int64, error)

	// GetTranscript retrieves a transcript by ID. Returns nil, nil if absent.
	GetTranscript(ctx context.Context, id int64) (*domain.Transcript, error)

	// ListTranscripts returns transcripts newest first.
	ListTranscripts(ctx context.Context, filter ListFilter) ([]*domain.Transcript, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
