package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklink/internal/models"
)

func TestStateStoreBegin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t.Run("creates a running row", func(t *testing.T) {
		store := NewStateStore(db, time.Minute)
		state, err := store.Begin(ctx, "conn-a")
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusRunning, state.Status)
		assert.Equal(t, PhaseInit, state.Phase)
		assert.Zero(t, state.Progress)
	})

	t.Run("rejects a second run while fresh", func(t *testing.T) {
		store := NewStateStore(db, time.Minute)
		_, err := store.Begin(ctx, "conn-a")
		assert.ErrorIs(t, err, ErrSyncInProgress)
	})

	t.Run("reclaims a stale running row", func(t *testing.T) {
		store := NewStateStore(db, time.Nanosecond)
		state, err := store.Begin(ctx, "conn-a")
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusRunning, state.Status)
	})

	t.Run("replaces a terminal row", func(t *testing.T) {
		store := NewStateStore(db, time.Minute)
		state, err := store.Get(ctx, "conn-a")
		require.NoError(t, err)
		require.NotNil(t, state)
		require.NoError(t, store.finish(ctx, state, models.SyncStatusCompleted, PhaseComplete, "done", 100))

		fresh, err := store.Begin(ctx, "conn-a")
		require.NoError(t, err)
		assert.Equal(t, models.SyncStatusRunning, fresh.Status)
	})
}

func TestStateStoreRequestCancel(t *testing.T) {
	db := newTestDB(t)
	store := NewStateStore(db, time.Minute)
	ctx := context.Background()

	t.Run("no state row", func(t *testing.T) {
		cancelled, err := store.RequestCancel(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, cancelled)
	})

	t.Run("flags a running sync", func(t *testing.T) {
		_, err := store.Begin(ctx, "conn-b")
		require.NoError(t, err)

		cancelled, err := store.RequestCancel(ctx, "conn-b")
		require.NoError(t, err)
		assert.True(t, cancelled)

		flagged, err := store.Get(ctx, "conn-b")
		require.NoError(t, err)
		require.NotNil(t, flagged)
		assert.Equal(t, models.SyncStatusCancelled, flagged.Status)
	})

	t.Run("ignores a terminal sync", func(t *testing.T) {
		state, err := store.Get(ctx, "conn-b")
		require.NoError(t, err)
		require.NoError(t, store.finish(ctx, state, models.SyncStatusCompleted, PhaseComplete, "done", 100))

		cancelled, err := store.RequestCancel(ctx, "conn-b")
		require.NoError(t, err)
		assert.False(t, cancelled)
	})
}

func TestStateStoreUpdateProgress(t *testing.T) {
	db := newTestDB(t)
	store := NewStateStore(db, time.Minute)
	ctx := context.Background()

	state, err := store.Begin(ctx, "conn-c")
	require.NoError(t, err)

	t.Run("writes onto a running row", func(t *testing.T) {
		state.Phase = PhaseInsert
		state.Message = "writing rows"
		state.Progress = 80
		alive, err := store.UpdateProgress(ctx, state)
		require.NoError(t, err)
		assert.True(t, alive)

		saved, err := store.Get(ctx, "conn-c")
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, PhaseInsert, saved.Phase)
		assert.Equal(t, 80, saved.Progress)
	})

	t.Run("a cancel between checkpoints survives the next write", func(t *testing.T) {
		cancelled, err := store.RequestCancel(ctx, "conn-c")
		require.NoError(t, err)
		require.True(t, cancelled)

		state.Progress = 90
		alive, err := store.UpdateProgress(ctx, state)
		require.NoError(t, err)
		assert.False(t, alive)

		saved, err := store.Get(ctx, "conn-c")
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, models.SyncStatusCancelled, saved.Status)
		assert.Equal(t, 80, saved.Progress)
	})

	t.Run("no row at all reports not running", func(t *testing.T) {
		orphan := &models.SyncState{ConnectionID: "conn-never"}
		alive, err := store.UpdateProgress(ctx, orphan)
		require.NoError(t, err)
		assert.False(t, alive)
	})
}

func TestStateStoreGetMissing(t *testing.T) {
	db := newTestDB(t)
	store := NewStateStore(db, time.Minute)

	state, err := store.Get(context.Background(), "never-synced")
	require.NoError(t, err)
	assert.Nil(t, state)
}
