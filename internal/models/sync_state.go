package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// SyncState is the live progress record for a connection's sync run, one
// row per connection. The orchestrator rewrites it at every phase through
// a status-guarded update that doubles as the cancellation check.
type SyncState struct {
	ID               string     `json:"id" gorm:"type:uuid;primary_key"`
	ConnectionID     string     `json:"connection_id" gorm:"type:uuid;uniqueIndex;not null"`
	Status           SyncStatus `json:"status" gorm:"not null"`
	Phase            string     `json:"phase" gorm:"not null"`
	Message          string     `json:"message"`
	Progress         int        `json:"progress"`
	ItemsFetched     int        `json:"items_fetched"`
	ItemsSynced      int        `json:"items_synced"`
	CanonicalCreated int        `json:"canonical_created"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (s *SyncState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Terminal reports whether the run has reached a final status.
func (s *SyncState) Terminal() bool {
	return s.Status == SyncStatusCompleted || s.Status == SyncStatusFailed || s.Status == SyncStatusCancelled
}
