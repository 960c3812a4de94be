package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"gorm.io/gorm"

	"stocklink/internal/models"
)

// Repository reads and lazily creates canonical products. Creation is
// conflict-tolerant: when two writers race on the same UPC or normalized
// name, the loser re-reads and reuses the winner's row.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUPCs looks up existing canonical rows for a set of normalized
// UPCs in one query. The returned map is keyed by UPC.
func (r *Repository) FindByUPCs(ctx context.Context, upcs []string) (map[string]models.CanonicalProduct, error) {
	found := make(map[string]models.CanonicalProduct, len(upcs))
	if len(upcs) == 0 {
		return found, nil
	}

	var rows []models.CanonicalProduct
	if err := r.db.WithContext(ctx).Where("upc IN ?", upcs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to look up canonical products by UPC: %w", err)
	}
	for _, row := range rows {
		if row.UPC != nil {
			found[*row.UPC] = row
		}
	}
	return found, nil
}

// BestNameMatch scores every canonical name against the normalized input
// and returns the closest row with its similarity on a 0-100 scale.
// ok is false when the catalog is empty.
func (r *Repository) BestNameMatch(ctx context.Context, normalizedName string) (id string, score int, ok bool, err error) {
	var candidates []models.CanonicalProduct
	if err := r.db.WithContext(ctx).Select("id", "normalized_name").Find(&candidates).Error; err != nil {
		return "", 0, false, fmt.Errorf("failed to load canonical names: %w", err)
	}
	if len(candidates) == 0 {
		return "", 0, false, nil
	}

	metric := metrics.NewSorensenDice()
	metric.NgramSize = 3

	for _, candidate := range candidates {
		s := int(math.Round(strutil.Similarity(normalizedName, candidate.NormalizedName, metric) * 100))
		if s > score || id == "" {
			id = candidate.ID
			score = s
		}
	}
	return id, score, true, nil
}

// Create inserts a new canonical row. When another writer already claimed
// the UPC or normalized name, the existing row's id is returned instead
// and created is false.
func (r *Repository) Create(ctx context.Context, product *models.CanonicalProduct) (id string, created bool, err error) {
	err = r.db.WithContext(ctx).Create(product).Error
	if err == nil {
		return product.ID, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", false, fmt.Errorf("failed to create canonical product: %w", err)
	}

	// Lost a creation race; the winner's row is authoritative.
	var existing models.CanonicalProduct
	query := r.db.WithContext(ctx)
	if product.UPC != nil && *product.UPC != "" {
		query = query.Where("upc = ? OR normalized_name = ?", *product.UPC, product.NormalizedName)
	} else {
		query = query.Where("normalized_name = ?", product.NormalizedName)
	}
	if err := query.First(&existing).Error; err != nil {
		return "", false, fmt.Errorf("failed to re-read canonical product after conflict: %w", err)
	}
	return existing.ID, false, nil
}
