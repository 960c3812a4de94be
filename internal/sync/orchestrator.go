package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"gorm.io/gorm"

	"stocklink/internal/catalog"
	"stocklink/internal/events"
	"stocklink/internal/logger"
	"stocklink/internal/models"
	"stocklink/internal/services/pos"
)

// Phase names, in execution order. complete, error and cancelled are
// terminal.
const (
	PhaseInit            = "init"
	PhaseFetchInventory  = "fetch_inventory"
	PhaseFetchItems      = "fetch_items"
	PhaseFetchCategory   = "fetch_category"
	PhaseFilter          = "filter"
	PhaseFetchCategories = "fetch_categories"
	PhasePrepare         = "prepare"
	PhaseMatching        = "matching"
	PhaseInsert          = "insert"
	PhaseComplete        = "complete"
	PhaseError           = "error"
	PhaseCancelled       = "cancelled"
)

// ProgressUpdate is one event on the progress stream.
type ProgressUpdate struct {
	Phase    string                 `json:"phase"`
	Message  string                 `json:"message"`
	Progress int                    `json:"progress"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// ProgressFunc receives live progress. The synchronous path passes nil;
// the SSE path adapts the same callback onto a channel.
type ProgressFunc func(ProgressUpdate)

// Result is the final summary of one run.
type Result struct {
	Status           models.SyncStatus `json:"status"`
	Message          string            `json:"message"`
	ItemsFetched     int               `json:"items_fetched"`
	ItemsInStock     int               `json:"items_in_stock"`
	ItemsMatched     int               `json:"items_matched"`
	CanonicalCreated int               `json:"canonical_created"`
	RowsWritten      int               `json:"rows_written"`
	RowsAttempted    int               `json:"rows_attempted"`
}

// Fetcher is the remote POS surface the orchestrator drives. *pos.Client
// implements it.
type Fetcher interface {
	ListItems(ctx context.Context, onPage pos.PageFunc) ([]pos.Item, error)
	ListItemsByCategory(ctx context.Context, categoryID string, onPage pos.PageFunc) ([]pos.Item, error)
	ListInventory(ctx context.Context, onPage pos.PageFunc) ([]pos.InventoryRecord, error)
	ListCategories(ctx context.Context) ([]pos.Category, error)
	ListManufacturers(ctx context.Context) ([]pos.Manufacturer, error)
}

// Orchestrator drives one sync run through its fixed phase sequence and
// keeps the SyncState row current at every checkpoint.
type Orchestrator struct {
	db        *gorm.DB
	states    *StateStore
	matcher   *Matcher
	writer    *Writer
	publisher events.Publisher
	logger    *logger.Logger
}

func NewOrchestrator(db *gorm.DB, states *StateStore, matcher *Matcher, writer *Writer, publisher events.Publisher, logger *logger.Logger) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		db:        db,
		states:    states,
		matcher:   matcher,
		writer:    writer,
		publisher: publisher,
		logger:    logger,
	}
}

// tracker serializes progress checkpoints for one run. Every report
// writes through a status-guarded update, so an externally requested
// cancellation takes effect at the next checkpoint and can never be
// overwritten by a progress write.
type tracker struct {
	mu         gosync.Mutex
	ctx        context.Context // caller's context, outlives run cancellation
	store      *StateStore
	state      *models.SyncState
	onProgress ProgressFunc
	cancelRun  context.CancelFunc
	cancelled  bool
	progress   int
	logger     *logger.Logger
}

func (t *tracker) report(phase, message string, progress int, details map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return ErrCancelled
	}

	// Progress never moves backwards within a run.
	if progress < t.progress {
		progress = t.progress
	}
	t.progress = progress

	t.state.Phase = phase
	t.state.Message = message
	t.state.Progress = progress

	alive, err := t.store.UpdateProgress(t.ctx, t.state)
	if err != nil {
		t.logger.Error("failed to persist sync progress: %v", err)
	} else if !alive {
		t.cancelled = true
		t.cancelRun()
		return ErrCancelled
	}
	if t.onProgress != nil {
		t.onProgress(ProgressUpdate{Phase: phase, Message: message, Progress: progress, Details: details})
	}
	return nil
}

func (t *tracker) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *tracker) emit(update ProgressUpdate) {
	if t.onProgress != nil {
		t.onProgress(update)
	}
}

// Run executes a full sync for the connection. categoryIDs, when
// non-empty, restricts the item fetch to those categories with one
// concurrent fetch per category. The returned Result is terminal
// (completed, failed or cancelled); a non-nil error is only returned for
// preconditions (missing credentials, run already in progress).
func (o *Orchestrator) Run(ctx context.Context, conn *models.Connection, fetcher Fetcher, categoryIDs []string, onProgress ProgressFunc) (*Result, error) {
	if conn.AccessToken() == "" || conn.AccountID() == "" {
		return nil, ErrNoCredentials
	}

	state, err := o.states.Begin(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	t := &tracker{
		ctx:        ctx,
		store:      o.states,
		state:      state,
		onProgress: onProgress,
		cancelRun:  cancelRun,
		logger:     o.logger,
	}

	if err := t.report(PhaseInit, "sync started", 0, nil); err != nil {
		return o.finishCancelled(t), nil
	}

	// Inventory and items are fetched as concurrent tasks and joined
	// before the filter phase.
	var (
		inventory []pos.InventoryRecord
		items     []pos.Item
		fetchErr  error
		errOnce   gosync.Mutex
	)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		errOnce.Lock()
		if fetchErr == nil {
			fetchErr = err
		}
		errOnce.Unlock()
	}

	var wg gosync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		inventory, err = fetcher.ListInventory(runCtx, func(pages, records int) {
			t.report(PhaseFetchInventory, fmt.Sprintf("fetched %d inventory records", records), 10,
				map[string]interface{}{"pages": pages, "records": records})
		})
		recordErr(err)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if len(categoryIDs) == 0 {
			fetched, err := fetcher.ListItems(runCtx, func(pages, records int) {
				t.report(PhaseFetchItems, fmt.Sprintf("fetched %d items", records), itemFetchProgress(pages),
					map[string]interface{}{"pages": pages, "records": records})
			})
			items = fetched
			recordErr(err)
			return
		}

		// One concurrent fetch per requested category.
		var (
			catWG gosync.WaitGroup
			catMu gosync.Mutex
		)
		for _, categoryID := range categoryIDs {
			catWG.Add(1)
			go func(categoryID string) {
				defer catWG.Done()
				fetched, err := fetcher.ListItemsByCategory(runCtx, categoryID, func(pages, records int) {
					t.report(PhaseFetchCategory, fmt.Sprintf("category %s: fetched %d items", categoryID, records),
						itemFetchProgress(pages), map[string]interface{}{"category_id": categoryID, "records": records})
				})
				if err != nil {
					recordErr(err)
					return
				}
				catMu.Lock()
				items = append(items, fetched...)
				catMu.Unlock()
			}(categoryID)
		}
		catWG.Wait()
	}()
	wg.Wait()

	if t.isCancelled() {
		return o.finishCancelled(t), nil
	}
	if fetchErr != nil {
		return o.finishFailed(t, fmt.Sprintf("fetch failed: %v", fetchErr)), nil
	}
	if len(items) == 0 {
		return o.finishFailed(t, "no items fetched from POS"), nil
	}

	t.state.ItemsFetched = len(items)
	if err := t.report(PhaseFilter, fmt.Sprintf("filtering %d items by stock", len(items)), 60, nil); err != nil {
		return o.finishCancelled(t), nil
	}
	aggregates := AggregateInventory(inventory)
	inStock := items[:0:0]
	for _, item := range items {
		if _, ok := aggregates[item.ID]; ok {
			inStock = append(inStock, item)
		}
	}

	if err := t.report(PhaseFetchCategories, "fetching category and manufacturer names", 63, nil); err != nil {
		return o.finishCancelled(t), nil
	}
	categoryPaths := o.fetchCategoryPaths(runCtx, fetcher)
	manufacturerNames := o.fetchManufacturerNames(runCtx, fetcher)

	if err := t.report(PhasePrepare, fmt.Sprintf("preparing %d in-stock items", len(inStock)), 67, nil); err != nil {
		return o.finishCancelled(t), nil
	}
	rows, inputs := o.prepare(conn, inStock, aggregates, categoryPaths, manufacturerNames)

	if err := t.report(PhaseMatching, "matching items to canonical products", 70, nil); err != nil {
		return o.finishCancelled(t), nil
	}
	links, err := o.existingLinks(runCtx, conn.ID)
	if err != nil {
		o.logger.Error("failed to load existing canonical links, matching fresh: %v", err)
		links = map[string]string{}
	}
	matches := o.matcher.Match(runCtx, inputs, links)

	matched, created := 0, 0
	var createdIDs []string
	for i := range rows {
		match, ok := matches[rows[i].RemoteItemID]
		if !ok {
			continue
		}
		id := match.CanonicalID
		rows[i].CanonicalProductID = &id
		matched++
		if match.Created {
			created++
			createdIDs = append(createdIDs, id)
		}
	}
	t.state.CanonicalCreated = created

	if err := t.report(PhaseInsert, fmt.Sprintf("writing %d product rows", len(rows)), 75, nil); err != nil {
		return o.finishCancelled(t), nil
	}
	written, attempted := o.writer.Write(runCtx, rows, func(done, total int) {
		t.report(PhaseInsert, fmt.Sprintf("wrote %d of %d rows", done, total), insertProgress(done, total), nil)
	})
	if t.isCancelled() {
		return o.finishCancelled(t), nil
	}

	t.state.ItemsSynced = written
	if err := o.states.finish(ctx, t.state, models.SyncStatusCompleted, PhaseComplete, "sync complete", 100); err != nil {
		o.logger.Error("failed to finalize sync state: %v", err)
	}

	result := &Result{
		Status:           models.SyncStatusCompleted,
		Message:          "sync complete",
		ItemsFetched:     len(items),
		ItemsInStock:     len(inStock),
		ItemsMatched:     matched,
		CanonicalCreated: created,
		RowsWritten:      written,
		RowsAttempted:    attempted,
	}
	t.emit(ProgressUpdate{Phase: PhaseComplete, Message: result.Message, Progress: 100, Details: map[string]interface{}{
		"items_synced":      written,
		"canonical_created": created,
	}})

	o.publishResults(ctx, conn.ID, result, createdIDs)
	return result, nil
}

// ContinueResult tells a poll loop whether a previous run still has work
// outstanding.
type ContinueResult struct {
	ShouldContinue bool              `json:"should_continue"`
	State          *models.SyncState `json:"state,omitempty"`
}

// ContinueSync inspects the last run. A fresh running row means work is
// still in flight; a running row past the staleness window is marked
// failed so the caller can start over.
func (o *Orchestrator) ContinueSync(ctx context.Context, connectionID string) (*ContinueResult, error) {
	state, err := o.states.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &ContinueResult{ShouldContinue: false}, nil
	}
	if state.Status == models.SyncStatusRunning {
		if time.Since(state.UpdatedAt) < o.states.staleAfter {
			return &ContinueResult{ShouldContinue: true, State: state}, nil
		}
		if err := o.states.finish(ctx, state, models.SyncStatusFailed, PhaseError, "sync interrupted", state.Progress); err != nil {
			return nil, err
		}
	}
	return &ContinueResult{ShouldContinue: false, State: state}, nil
}

func (o *Orchestrator) finishCancelled(t *tracker) *Result {
	if err := o.states.finish(t.ctx, t.state, models.SyncStatusCancelled, PhaseCancelled, "sync cancelled", t.state.Progress); err != nil {
		o.logger.Error("failed to finalize cancelled sync state: %v", err)
	}
	t.emit(ProgressUpdate{Phase: PhaseCancelled, Message: "sync cancelled", Progress: t.state.Progress})
	o.logger.Info("sync cancelled for connection %s at phase %s", t.state.ConnectionID, t.state.Phase)
	return &Result{Status: models.SyncStatusCancelled, Message: "sync cancelled"}
}

func (o *Orchestrator) finishFailed(t *tracker, message string) *Result {
	if err := o.states.finish(t.ctx, t.state, models.SyncStatusFailed, PhaseError, message, t.state.Progress); err != nil {
		o.logger.Error("failed to finalize failed sync state: %v", err)
	}
	t.emit(ProgressUpdate{Phase: PhaseError, Message: message, Progress: t.state.Progress})
	o.logger.Error("sync failed for connection %s: %s", t.state.ConnectionID, message)
	return &Result{Status: models.SyncStatusFailed, Message: message}
}

// existingLinks loads the canonical ids established by prior syncs for
// this connection. Those links are authoritative and never recomputed.
func (o *Orchestrator) existingLinks(ctx context.Context, connectionID string) (map[string]string, error) {
	var rows []models.ProductRow
	err := o.db.WithContext(ctx).
		Select("remote_item_id", "canonical_product_id").
		Where("connection_id = ? AND canonical_product_id IS NOT NULL", connectionID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load existing links: %w", err)
	}
	links := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.CanonicalProductID != nil {
			links[row.RemoteItemID] = *row.CanonicalProductID
		}
	}
	return links, nil
}

func (o *Orchestrator) fetchCategoryPaths(ctx context.Context, fetcher Fetcher) map[string]pos.Category {
	categories, err := fetcher.ListCategories(ctx)
	if err != nil {
		o.logger.Error("failed to fetch categories, proceeding without names: %v", err)
		return nil
	}
	paths := make(map[string]pos.Category, len(categories))
	for _, category := range categories {
		paths[category.ID] = category
	}
	return paths
}

func (o *Orchestrator) fetchManufacturerNames(ctx context.Context, fetcher Fetcher) map[string]string {
	manufacturers, err := fetcher.ListManufacturers(ctx)
	if err != nil {
		o.logger.Error("failed to fetch manufacturers, proceeding without names: %v", err)
		return nil
	}
	names := make(map[string]string, len(manufacturers))
	for _, manufacturer := range manufacturers {
		names[manufacturer.ID] = manufacturer.Name
	}
	return names
}

// prepare flattens in-stock items into destination rows and matcher
// inputs.
func (o *Orchestrator) prepare(conn *models.Connection, items []pos.Item, aggregates map[string]Aggregate, categories map[string]pos.Category, manufacturers map[string]string) ([]models.ProductRow, []MatchInput) {
	rows := make([]models.ProductRow, 0, len(items))
	inputs := make([]MatchInput, 0, len(items))

	for _, item := range items {
		agg := aggregates[item.ID]
		category, subcategory, subSubcategory := splitCategoryPath(categories, item.CategoryID)

		var upc *string
		if normalized := catalog.NormalizeUPC(item.UPC); normalized != "" {
			upc = &normalized
		}

		rows = append(rows, models.ProductRow{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			RemoteItemID: item.ID,
			Description:  item.Description,
			Category:     category,
			Subcategory:  subcategory,
			Manufacturer: manufacturers[item.ManufacturerID],
			UPC:          upc,
			Price:        item.DefaultPrice(),
			ModelYear:    item.ModelYear,
			QtyOnHand:    agg.QtyOnHand,
			QtySellable:  agg.Sellable,
			ReorderPoint: agg.ReorderPoint,
			ReorderLevel: agg.ReorderLevel,
			ImageURL:     item.PrimaryImageURL(),
		})
		inputs = append(inputs, MatchInput{
			RemoteItemID:   item.ID,
			UPC:            item.UPC,
			Description:    item.Description,
			Category:       category,
			Subcategory:    subcategory,
			SubSubcategory: subSubcategory,
		})
	}
	return rows, inputs
}

func splitCategoryPath(categories map[string]pos.Category, categoryID string) (category, subcategory, subSubcategory string) {
	c, ok := categories[categoryID]
	if !ok {
		return "", "", ""
	}
	path := c.FullPath
	if path == "" {
		path = c.Name
	}
	parts := strings.Split(path, "/")
	if len(parts) > 0 {
		category = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		subcategory = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		subSubcategory = strings.TrimSpace(parts[2])
	}
	return category, subcategory, subSubcategory
}

func (o *Orchestrator) publishResults(ctx context.Context, connectionID string, result *Result, createdIDs []string) {
	err := o.publisher.Publish(ctx, events.Event{
		Type:         events.TypeSyncCompleted,
		ConnectionID: connectionID,
		Data: map[string]interface{}{
			"items_synced":      result.RowsWritten,
			"rows_attempted":    result.RowsAttempted,
			"canonical_created": result.CanonicalCreated,
		},
	})
	if err != nil {
		o.logger.Error("failed to publish sync.completed: %v", err)
	}
	for _, id := range createdIDs {
		err := o.publisher.Publish(ctx, events.Event{
			Type:         events.TypeCanonicalProductCreated,
			ConnectionID: connectionID,
			Data:         map[string]interface{}{"canonical_product_id": id},
		})
		if err != nil {
			o.logger.Error("failed to publish canonical.product.created: %v", err)
		}
	}
}

// Fetch phases own the 10-55% band; items advance with page count.
func itemFetchProgress(pages int) int {
	p := 15 + pages*2
	if p > 55 {
		p = 55
	}
	return p
}

// Insert owns 75-99%; 100 is reserved for completion.
func insertProgress(done, total int) int {
	if total == 0 {
		return 99
	}
	p := 75 + done*24/total
	if p > 99 {
		p = 99
	}
	return p
}
