package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/opro/internal/domain"
)

// recordEvent records a progress event to the store.
func (s *Service) recordEvent(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// ListEvents returns a session's events, oldest first. afterTs, types and
// limit filter the feed for polling consumers.
func (s *Service) ListEvents(ctx context.Context, sessionID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, sessionID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}
