package memory

import (
	"context"
	"log/slog"
	"sync"

	"smong-quiz-service/internal/domain"
)

const defaultRecorderCapacity = 256

// EventRecorder logs analytics events and keeps the most recent ones in memory.
type EventRecorder struct {
	logger   *slog.Logger
	capacity int

	mu     sync.Mutex
	events []domain.AnalyticsEvent
}

func NewEventRecorder(logger *slog.Logger, capacity int) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = defaultRecorderCapacity
	}
	return &EventRecorder{logger: logger, capacity: capacity}
}

func (r *EventRecorder) Track(ctx context.Context, event domain.AnalyticsEvent) error {
	r.logger.InfoContext(ctx, "event tracked",
		"event_id", event.ID,
		"event_type", event.EventType,
		"user_id", event.UserID,
		"event_data", event.EventData,
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append([]domain.AnalyticsEvent(nil), r.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (r *EventRecorder) Events() []domain.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AnalyticsEvent, len(r.events))
	copy(out, r.events)
	return out
}

// EventTypes returns the retained event types in order.
func (r *EventRecorder) EventTypes() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}
