// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/xiaot623/opro/internal/domain"
)

// Store defines the interface for data persistence. Sessions are stored as
// whole documents keyed by id; the service layer reconciles working copies
// through Put on every mutation.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	PutSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
