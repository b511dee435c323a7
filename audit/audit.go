// Package audit keeps a queryable trail of profile writes and deletions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the profile service.
const (
	ActionSave        = "save"
	ActionDelete      = "delete"
	ActionDeleteImage = "delete_image"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Event is one completed profile operation. Field values are never stored,
// only the names of the fields that were persisted.
type Event struct {
	ID          uint64         `gorm:"primaryKey" json:"id"`
	Action      string         `gorm:"size:32;not null;index" json:"action"`
	Template    string         `gorm:"size:100;not null" json:"template"`
	CommunityID string         `gorm:"size:32;not null;index:idx_audit_community_created" json:"community_id"`
	UserID      string         `gorm:"size:32;not null" json:"user_id"`
	Warning     *string        `gorm:"type:text" json:"warning,omitempty"`
	Fields      datatypes.JSON `gorm:"type:json" json:"fields,omitempty"`
	CreatedAt   time.Time      `gorm:"index:idx_audit_community_created" json:"created_at"`
}

func (Event) TableName() string {
	return "profile_audit_events"
}

// NewEvent builds an Event. fields is sorted before it is stored.
func NewEvent(action, template, communityID, userID string, fields []string, warning string) Event {
	event := Event{
		Action:      action,
		Template:    template,
		CommunityID: communityID,
		UserID:      userID,
	}
	if warning != "" {
		event.Warning = &warning
	}
	if fields != nil {
		sorted := append([]string(nil), fields...)
		sort.Strings(sorted)
		if data, err := json.Marshal(sorted); err == nil {
			event.Fields = datatypes.JSON(data)
		}
	}
	return event
}

// FieldNames decodes Fields.
func (e Event) FieldNames() []string {
	if len(e.Fields) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(e.Fields, &names); err != nil {
		return nil
	}
	return names
}

// Recorder stores events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Lister reads events back, newest first.
type Lister interface {
	List(ctx context.Context, communityID string, limit int) ([]Event, error)
}

// GormRecorder writes events through gorm.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder migrates the events table and returns a recorder over db.
func NewGormRecorder(db *gorm.DB) (*GormRecorder, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("audit: migrate tables: %w", err)
	}
	return &GormRecorder{db: db}, nil
}

func (r *GormRecorder) Record(ctx context.Context, event Event) error {
	event.ID = 0
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("audit: record %s: %w", event.Action, err)
	}
	return nil
}

func (r *GormRecorder) List(ctx context.Context, communityID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var events []Event
	err := r.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	return events, nil
}

// NopRecorder discards events. It is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

func (NopRecorder) List(context.Context, string, int) ([]Event, error) { return []Event{}, nil }
