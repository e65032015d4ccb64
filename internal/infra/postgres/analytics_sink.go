package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"smong-quiz-service/internal/domain"
)

type analyticsRow struct {
	bun.BaseModel `bun:"table:analytics"`

	ID        string         `bun:"id,pk,type:uuid"`
	EventType string         `bun:"event_type,notnull"`
	EventData map[string]any `bun:"event_data,type:jsonb"`
	UserID    string         `bun:"user_id,nullzero"`
	CreatedAt time.Time      `bun:"created_at,notnull"`
}

// AnalyticsSink writes events to the analytics table.
type AnalyticsSink struct {
	db *bun.DB
}

func NewAnalyticsSink(db *bun.DB) *AnalyticsSink {
	return &AnalyticsSink{db: db}
}

func (s *AnalyticsSink) Track(ctx context.Context, event domain.AnalyticsEvent) error {
	row := &analyticsRow{
		ID:        event.ID,
		EventType: event.EventType,
		EventData: event.EventData,
		UserID:    event.UserID,
		CreatedAt: event.CreatedAt,
	}
	if row.EventData == nil {
		row.EventData = map[string]any{}
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// CountEvents returns how many events of eventType were recorded.
func (s *AnalyticsSink) CountEvents(ctx context.Context, eventType string) (int, error) {
	return s.db.NewSelect().Model((*analyticsRow)(nil)).Where("event_type = ?", eventType).Count(ctx)
}
