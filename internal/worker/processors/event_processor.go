package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"stocklink/internal/events"
	"stocklink/internal/logger"
	"stocklink/internal/models"
)

// EventProcessor reacts to catalog events emitted by the sync engine.
type EventProcessor struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewEventProcessor(db *gorm.DB, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		db:     db,
		logger: logger,
	}
}

func (ep *EventProcessor) Process(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.TypeCanonicalProductCreated:
		return ep.curateCanonicalProduct(ctx, event)
	case events.TypeSyncCompleted:
		return ep.stampConnectionSynced(ctx, event)
	default:
		ep.logger.Debug("Ignoring event type: %s", event.Type)
		return nil
	}
}

// curateCanonicalProduct gives a freshly created canonical row a tidy
// display name. Full categorisation happens in the downstream pipeline;
// this is only the first cosmetic pass.
func (ep *EventProcessor) curateCanonicalProduct(ctx context.Context, event events.Event) error {
	id, _ := event.Data["canonical_product_id"].(string)
	if id == "" {
		return fmt.Errorf("canonical.product.created event without canonical_product_id")
	}

	var product models.CanonicalProduct
	if err := ep.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			ep.logger.Debug("Canonical product %s no longer exists, skipping curation", id)
			return nil
		}
		return fmt.Errorf("failed to load canonical product %s: %w", id, err)
	}
	if product.Cleaned {
		return nil
	}

	display := titleCase(product.NormalizedName)
	if display == "" || display == product.DisplayName {
		return nil
	}

	err := ep.db.WithContext(ctx).Model(&product).Update("display_name", display).Error
	if err != nil {
		return fmt.Errorf("failed to curate canonical product %s: %w", id, err)
	}
	ep.logger.Debug("Curated display name for canonical product %s", id)
	return nil
}

// stampConnectionSynced records the completion time on the connection.
func (ep *EventProcessor) stampConnectionSynced(ctx context.Context, event events.Event) error {
	if event.ConnectionID == "" {
		return fmt.Errorf("sync.completed event without connection_id")
	}

	now := time.Now()
	err := ep.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", event.ConnectionID).
		Update("last_sync", &now).Error
	if err != nil {
		return fmt.Errorf("failed to stamp last_sync on connection %s: %w", event.ConnectionID, err)
	}
	return nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
