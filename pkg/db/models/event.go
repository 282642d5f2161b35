package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
)

// EventRecord stores one event in its wire form with the indexed columns broken out.
type EventRecord struct {
	ID        string              `gorm:"column:id;type:uuid;primaryKey"`
	EventType string              `gorm:"column:event_type;not null;index:idx_events_type_created,priority:1"`
	Status    enums.EventStatus   `gorm:"column:status;not null;index:idx_events_status_created,priority:1"`
	TenantID  *string             `gorm:"column:tenant_id;index:idx_events_tenant_created,priority:1"`
	Priority  enums.EventPriority `gorm:"column:priority;not null"`
	// DeadLettered is set when the event or any handler delivery dead-lettered.
	DeadLettered bool            `gorm:"column:dead_lettered;not null;index:idx_events_dead_lettered_created,priority:1"`
	Record       json.RawMessage `gorm:"column:record;type:jsonb;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null;index:idx_events_type_created,priority:2;index:idx_events_status_created,priority:2;index:idx_events_tenant_created,priority:2;index:idx_events_dead_lettered_created,priority:2"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (EventRecord) TableName() string {
	return "events"
}
