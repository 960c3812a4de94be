package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"stocklink/internal/models"
)

// StateStore persists the per-connection SyncState row. The row is a soft
// signal readable by UI pollers and writable by the cancel handler; it is
// not a hard lock between runs.
type StateStore struct {
	db         *gorm.DB
	staleAfter time.Duration
}

func NewStateStore(db *gorm.DB, staleAfter time.Duration) *StateStore {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &StateStore{db: db, staleAfter: staleAfter}
}

// Begin claims the connection's state row for a new run. A running row
// that has been updated within the staleness window rejects the new run;
// an abandoned one is overwritten.
func (s *StateStore) Begin(ctx context.Context, connectionID string) (*models.SyncState, error) {
	var existing models.SyncState
	err := s.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	if err == nil {
		if existing.Status == models.SyncStatusRunning && time.Since(existing.UpdatedAt) < s.staleAfter {
			return nil, ErrSyncInProgress
		}
		if err := s.db.WithContext(ctx).Delete(&models.SyncState{}, "connection_id = ?", connectionID).Error; err != nil {
			return nil, fmt.Errorf("failed to reset sync state: %w", err)
		}
	}

	state := &models.SyncState{
		ConnectionID: connectionID,
		Status:       models.SyncStatusRunning,
		Phase:        PhaseInit,
		Message:      "starting sync",
		Progress:     0,
		StartedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(state).Error; err != nil {
		return nil, fmt.Errorf("failed to create sync state: %w", err)
	}
	return state, nil
}

// Get returns the connection's current state row, or nil when none exists.
func (s *StateStore) Get(ctx context.Context, connectionID string) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.WithContext(ctx).Where("connection_id = ?", connectionID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return &state, nil
}

// Save writes the mutated state row back.
func (s *StateStore) Save(ctx context.Context, state *models.SyncState) error {
	state.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(state).Error; err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// UpdateProgress writes the run's phase, message and counters onto its
// row. The write is guarded on status = running, so it can never
// overwrite an externally requested cancellation; a false return means
// the row is no longer running and the run must stop.
func (s *StateStore) UpdateProgress(ctx context.Context, state *models.SyncState) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("connection_id = ? AND status = ?", state.ConnectionID, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"phase":             state.Phase,
			"message":           state.Message,
			"progress":          state.Progress,
			"items_fetched":     state.ItemsFetched,
			"items_synced":      state.ItemsSynced,
			"canonical_created": state.CanonicalCreated,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to save sync progress: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RequestCancel flags a running sync as cancelled. The orchestrator picks
// the flag up at its next progress checkpoint.
func (s *StateStore) RequestCancel(ctx context.Context, connectionID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("connection_id = ? AND status = ?", connectionID, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":     models.SyncStatusCancelled,
			"message":    "cancellation requested",
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to request cancellation: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// finish stamps a terminal status onto the state row.
func (s *StateStore) finish(ctx context.Context, state *models.SyncState, status models.SyncStatus, phase, message string, progress int) error {
	now := time.Now()
	state.Status = status
	state.Phase = phase
	state.Message = message
	state.Progress = progress
	state.CompletedAt = &now
	return s.Save(ctx, state)
}
