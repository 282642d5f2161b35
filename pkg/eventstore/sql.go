package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/packfinderz-events/pkg/db/models"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps events in the events table. Unlike the key/value store it filters on every
// provided column in SQL, and its write errors are returned to the caller.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) SaveEvent(ctx context.Context, evt *events.Event) error {
	if evt == nil {
		return events.NewValidationError("event is required")
	}
	row, err := toRecord(evt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"event_type", "status", "tenant_id", "priority", "dead_lettered", "record", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *SQLStore) UpdateEvent(ctx context.Context, evt *events.Event) error {
	return s.SaveEvent(ctx, evt)
}

func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (*events.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, nil
	}
	var row models.EventRecord
	err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRecord(row)
}

func (s *SQLStore) QueryEvents(ctx context.Context, q Query) ([]*events.Event, error) {
	tx := s.db.WithContext(ctx).Model(&models.EventRecord{})
	if q.EventType != "" {
		tx = tx.Where("event_type = ?", q.EventType)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.TenantID != "" {
		tx = tx.Where("tenant_id = ?", q.TenantID)
	}
	if q.DeadLettered {
		tx = tx.Where("dead_lettered = ?", true)
	}

	var rows []models.EventRecord
	err := tx.Order("created_at DESC").
		Order("id DESC").
		Limit(q.limit()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*events.Event, 0, len(rows))
	for _, row := range rows {
		evt, err := fromRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *SQLStore) GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	return s.QueryEvents(ctx, deadLetterQuery(limit))
}

func (s *SQLStore) ClearOldEvents(ctx context.Context, days int) (int, error) {
	cutoff := retentionCutoff(days, events.Now())
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.EventRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func toRecord(evt *events.Event) (models.EventRecord, error) {
	data, err := events.Encode(evt)
	if err != nil {
		return models.EventRecord{}, err
	}
	row := models.EventRecord{
		ID:           evt.ID,
		EventType:    evt.Type,
		Status:       evt.Status,
		Priority:     evt.Priority,
		DeadLettered: evt.HasDeadLetter(),
		Record:       data,
		CreatedAt:    evt.CreatedAt,
	}
	if tenant := evt.TenantID(); tenant != "" {
		row.TenantID = &tenant
	}
	return row, nil
}

func fromRecord(row models.EventRecord) (*events.Event, error) {
	evt, err := events.Decode(row.Record)
	if err != nil {
		return nil, fmt.Errorf("decode event row %s: %w", row.ID, err)
	}
	return evt, nil
}
