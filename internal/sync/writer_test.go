package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stocklink/internal/models"
)

func testRows(connectionID string, n int) []models.ProductRow {
	rows := make([]models.ProductRow, n)
	for i := range rows {
		rows[i] = models.ProductRow{
			ConnectionID: connectionID,
			UserID:       "user-1",
			RemoteItemID: fmt.Sprintf("item-%03d", i),
			Description:  fmt.Sprintf("Product %03d", i),
			QtyOnHand:    i + 1,
			Price:        9.99,
		}
	}
	return rows
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.ProductRow{}).Count(&count).Error)
	return count
}

func TestWriterIdempotence(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 10, 3)
	ctx := context.Background()

	written, attempted := writer.Write(ctx, testRows(connection.ID, 25), nil)
	assert.Equal(t, 25, written)
	assert.Equal(t, 25, attempted)
	assert.EqualValues(t, 25, countRows(t, db))

	// Re-running with identical input converges, no row growth.
	written, attempted = writer.Write(ctx, testRows(connection.ID, 25), nil)
	assert.Equal(t, 25, written)
	assert.Equal(t, 25, attempted)
	assert.EqualValues(t, 25, countRows(t, db))
}

func TestWriterOverwritesFieldsOnConflict(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 10, 1)
	ctx := context.Background()

	rows := testRows(connection.ID, 1)
	writer.Write(ctx, rows, nil)

	rows = testRows(connection.ID, 1)
	rows[0].QtyOnHand = 42
	rows[0].Description = "Renamed Product"
	writer.Write(ctx, rows, nil)

	var stored models.ProductRow
	require.NoError(t, db.First(&stored, "remote_item_id = ?", "item-000").Error)
	assert.Equal(t, 42, stored.QtyOnHand)
	assert.Equal(t, "Renamed Product", stored.Description)
	assert.EqualValues(t, 1, countRows(t, db))
}

func TestWriterPreservesExistingCanonicalLink(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 10, 1)
	ctx := context.Background()

	original := "11111111-1111-1111-1111-111111111111"
	rows := testRows(connection.ID, 1)
	rows[0].CanonicalProductID = &original
	writer.Write(ctx, rows, nil)

	// A later sync computes a different match; the established link wins.
	replacement := "22222222-2222-2222-2222-222222222222"
	rows = testRows(connection.ID, 1)
	rows[0].CanonicalProductID = &replacement
	writer.Write(ctx, rows, nil)

	var stored models.ProductRow
	require.NoError(t, db.First(&stored, "remote_item_id = ?", "item-000").Error)
	require.NotNil(t, stored.CanonicalProductID)
	assert.Equal(t, original, *stored.CanonicalProductID)
}

func TestWriterFillsMissingCanonicalLink(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 10, 1)
	ctx := context.Background()

	// First sync could not link the item.
	writer.Write(ctx, testRows(connection.ID, 1), nil)

	id := "33333333-3333-3333-3333-333333333333"
	rows := testRows(connection.ID, 1)
	rows[0].CanonicalProductID = &id
	writer.Write(ctx, rows, nil)

	var stored models.ProductRow
	require.NoError(t, db.First(&stored, "remote_item_id = ?", "item-000").Error)
	require.NotNil(t, stored.CanonicalProductID)
	assert.Equal(t, id, *stored.CanonicalProductID)
}

func TestWriterSkipsFailedChunkAndContinues(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 2, 1)
	ctx := context.Background()

	rows := testRows(connection.ID, 10)
	// Poison one chunk with a primary key collision inside the same
	// insert; that chunk fails while the rest land.
	rows[4].ID = "dddddddd-dddd-dddd-dddd-dddddddddddd"
	rows[5].ID = "dddddddd-dddd-dddd-dddd-dddddddddddd"

	written, attempted := writer.Write(ctx, rows, nil)
	assert.Equal(t, 10, attempted)
	assert.Equal(t, 8, written)
	assert.EqualValues(t, 8, countRows(t, db))
}

func TestWriterReportsChunkProgress(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 5, 1)
	ctx := context.Background()

	var calls []int
	writer.Write(ctx, testRows(connection.ID, 12), func(done, total int) {
		assert.Equal(t, 12, total)
		calls = append(calls, done)
	})
	require.Len(t, calls, 3)
	assert.Equal(t, 12, calls[len(calls)-1])
}

func TestWriterStopsOnCancelledContext(t *testing.T) {
	db := newTestDB(t)
	connection := newTestConnection(t, db)
	writer := NewWriter(db, newTestLogger(), 2, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, attempted := writer.Write(ctx, testRows(connection.ID, 10), nil)
	assert.Zero(t, attempted)
	assert.Zero(t, written)
	assert.EqualValues(t, 0, countRows(t, db))
}

func TestWriterEmptyInput(t *testing.T) {
	db := newTestDB(t)
	writer := NewWriter(db, newTestLogger(), 2, 1)

	written, attempted := writer.Write(context.Background(), nil, nil)
	assert.Zero(t, written)
	assert.Zero(t, attempted)
}
