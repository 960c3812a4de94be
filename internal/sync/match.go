package sync

import (
	"context"
	gosync "sync"

	"stocklink/internal/catalog"
	"stocklink/internal/logger"
	"stocklink/internal/models"
)

// MatchInput is one incoming item's identity material.
type MatchInput struct {
	RemoteItemID   string
	UPC            *string
	Description    string
	Category       string
	Subcategory    string
	SubSubcategory string
}

// MatchResult links one remote item to a canonical product.
type MatchResult struct {
	CanonicalID string
	Created     bool
}

// CatalogStore is the canonical catalog surface the matcher needs.
// *catalog.Repository implements it.
type CatalogStore interface {
	FindByUPCs(ctx context.Context, upcs []string) (map[string]models.CanonicalProduct, error)
	BestNameMatch(ctx context.Context, normalizedName string) (id string, score int, ok bool, err error)
	Create(ctx context.Context, product *models.CanonicalProduct) (id string, created bool, err error)
}

// Matcher resolves items to canonical product ids: an existing link from
// a prior sync wins unconditionally, then UPC exact match, then name
// similarity at or above the threshold, then lazy creation.
type Matcher struct {
	catalog   CatalogStore
	logger    *logger.Logger
	threshold int // 0-100 similarity score accepted as a name match
	groupSize int // items matched concurrently
}

func NewMatcher(repo CatalogStore, logger *logger.Logger, threshold, groupSize int) *Matcher {
	if groupSize <= 0 {
		groupSize = 20
	}
	return &Matcher{
		catalog:   repo,
		logger:    logger,
		threshold: threshold,
		groupSize: groupSize,
	}
}

// Match resolves every input. existingLinks maps remote item ids to the
// canonical ids established by prior syncs; those are preserved as-is.
// Items that fail to resolve (database errors) are absent from the result
// and proceed through the sync unlinked.
func (m *Matcher) Match(ctx context.Context, inputs []MatchInput, existingLinks map[string]string) map[string]MatchResult {
	results := make(map[string]MatchResult, len(inputs))

	var unlinked []MatchInput
	for _, input := range inputs {
		if id, ok := existingLinks[input.RemoteItemID]; ok && id != "" {
			results[input.RemoteItemID] = MatchResult{CanonicalID: id}
			continue
		}
		unlinked = append(unlinked, input)
	}
	if len(unlinked) == 0 {
		return results
	}

	// One bulk UPC lookup per batch instead of one query per item.
	var upcs []string
	seen := make(map[string]bool)
	for _, input := range unlinked {
		if upc := catalog.NormalizeUPC(input.UPC); upc != "" && !seen[upc] {
			seen[upc] = true
			upcs = append(upcs, upc)
		}
	}
	byUPC, err := m.catalog.FindByUPCs(ctx, upcs)
	if err != nil {
		m.logger.Error("canonical UPC lookup failed, matching without it: %v", err)
		byUPC = map[string]models.CanonicalProduct{}
	}

	var mu gosync.Mutex
	// UPCs resolved earlier in this run; duplicate UPCs in one batch map
	// to one canonical id without touching the database again.
	resolvedUPC := make(map[string]string)

	for start := 0; start < len(unlinked); start += m.groupSize {
		end := start + m.groupSize
		if end > len(unlinked) {
			end = len(unlinked)
		}

		var wg gosync.WaitGroup
		for _, input := range unlinked[start:end] {
			wg.Add(1)
			go func(input MatchInput) {
				defer wg.Done()
				result, ok := m.matchOne(ctx, input, byUPC, &mu, resolvedUPC)
				if !ok {
					return
				}
				mu.Lock()
				results[input.RemoteItemID] = result
				if upc := catalog.NormalizeUPC(input.UPC); upc != "" {
					resolvedUPC[upc] = result.CanonicalID
				}
				mu.Unlock()
			}(input)
		}
		wg.Wait()
	}

	return results
}

func (m *Matcher) matchOne(ctx context.Context, input MatchInput, byUPC map[string]models.CanonicalProduct, mu *gosync.Mutex, resolvedUPC map[string]string) (MatchResult, bool) {
	upc := catalog.NormalizeUPC(input.UPC)
	name := catalog.NormalizeName(input.Description)

	if upc != "" {
		if existing, ok := byUPC[upc]; ok {
			return MatchResult{CanonicalID: existing.ID}, true
		}
		mu.Lock()
		id, ok := resolvedUPC[upc]
		mu.Unlock()
		if ok {
			return MatchResult{CanonicalID: id}, true
		}
	}

	if name != "" {
		id, score, found, err := m.catalog.BestNameMatch(ctx, name)
		if err != nil {
			m.logger.Error("name match failed for item %s: %v", input.RemoteItemID, err)
		} else if found && score >= m.threshold {
			return MatchResult{CanonicalID: id}, true
		}
	}

	product := &models.CanonicalProduct{
		NormalizedName: name,
		DisplayName:    input.Description,
		Category:       input.Category,
		Subcategory:    input.Subcategory,
		SubSubcategory: input.SubSubcategory,
	}
	if upc != "" {
		product.UPC = &upc
	}
	id, created, err := m.catalog.Create(ctx, product)
	if err != nil {
		// Not fatal to the batch; the item syncs without a link.
		m.logger.Error("failed to create canonical product for item %s: %v", input.RemoteItemID, err)
		return MatchResult{}, false
	}
	return MatchResult{CanonicalID: id, Created: created}, true
}
