package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocklink/internal/logger"
	"stocklink/internal/models"
)

// Writer upserts prepared product rows in parallel chunks. Re-running
// with identical input converges to the same table contents; a chunk
// failure is logged and skipped, never fatal.
type Writer struct {
	db          *gorm.DB
	logger      *logger.Logger
	chunkSize   int
	concurrency int
}

func NewWriter(db *gorm.DB, logger *logger.Logger, chunkSize, concurrency int) *Writer {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Writer{
		db:          db,
		logger:      logger,
		chunkSize:   chunkSize,
		concurrency: concurrency,
	}
}

// upsertColumns are overwritten on conflict. canonical_product_id is
// handled separately: an existing link always wins over a new match.
var upsertColumns = []string{
	"user_id", "description", "category", "subcategory", "manufacturer",
	"upc", "price", "model_year", "qty_on_hand", "qty_sellable",
	"reorder_point", "reorder_level", "image_url", "updated_at",
}

// Write upserts rows keyed on (connection_id, remote_item_id) and returns
// how many rows were written versus attempted. onChunk, when non-nil, is
// invoked after each chunk completes; a cancelled context stops further
// chunks from being attempted.
func (w *Writer) Write(ctx context.Context, rows []models.ProductRow, onChunk func(done, total int)) (written, attempted int) {
	if len(rows) == 0 {
		return 0, 0
	}

	var chunks [][]models.ProductRow
	for start := 0; start < len(rows); start += w.chunkSize {
		end := start + w.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}

	assignments := clause.AssignmentColumns(upsertColumns)
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "canonical_product_id"},
		Value:  gorm.Expr(`COALESCE("product_rows"."canonical_product_id", "excluded"."canonical_product_id")`),
	})
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "remote_item_id"}},
		DoUpdates: assignments,
	}

	var writtenCount int64
	var doneCount int64
	var wg gosync.WaitGroup
	sem := make(chan struct{}, w.concurrency)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		attempted += len(chunk)

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, chunk []models.ProductRow) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := w.db.WithContext(ctx).Clauses(conflict).Create(&chunk).Error; err != nil {
				w.logger.Error("product row chunk %d failed (%d rows): %v", i, len(chunk), err)
			} else {
				atomic.AddInt64(&writtenCount, int64(len(chunk)))
			}
			done := atomic.AddInt64(&doneCount, int64(len(chunk)))
			if onChunk != nil {
				onChunk(int(done), len(rows))
			}
		}(i, chunk)
	}
	wg.Wait()

	return int(atomic.LoadInt64(&writtenCount)), attempted
}
