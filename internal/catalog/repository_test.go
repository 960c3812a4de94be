package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"stocklink/internal/database"
	"stocklink/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func seedCanonical(t *testing.T, db *gorm.DB, upc, name string) models.CanonicalProduct {
	t.Helper()
	product := models.CanonicalProduct{
		NormalizedName: name,
		DisplayName:    name,
	}
	if upc != "" {
		product.UPC = &upc
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func TestRepositoryFindByUPCs(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedCanonical(t, db, "036000291452", "crest toothpaste")
	second := seedCanonical(t, db, "885909950805", "apple lightning cable")
	seedCanonical(t, db, "", "no upc product")

	found, err := repo.FindByUPCs(ctx, []string{"036000291452", "885909950805", "000000000000"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, first.ID, found["036000291452"].ID)
	assert.Equal(t, second.ID, found["885909950805"].ID)

	found, err = repo.FindByUPCs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRepositoryBestNameMatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("empty catalog", func(t *testing.T) {
		_, _, ok, err := repo.BestNameMatch(ctx, "anything")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	exact := seedCanonical(t, db, "", "specialized rockhopper 29")
	seedCanonical(t, db, "", "completely unrelated thing")

	t.Run("identical name scores 100", func(t *testing.T) {
		id, score, ok, err := repo.BestNameMatch(ctx, "specialized rockhopper 29")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, exact.ID, id)
		assert.Equal(t, 100, score)
	})

	t.Run("unrelated name scores low", func(t *testing.T) {
		_, score, ok, err := repo.BestNameMatch(ctx, "zzqx vvwk ppnm")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Less(t, score, 85)
	})
}

func TestRepositoryCreate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("creates new row", func(t *testing.T) {
		upc := "036000291452"
		id, created, err := repo.Create(ctx, &models.CanonicalProduct{
			UPC:            &upc,
			NormalizedName: "crest toothpaste",
			DisplayName:    "Crest Toothpaste",
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, id)
	})

	t.Run("upc conflict reuses winner", func(t *testing.T) {
		upc := "036000291452"
		var winner models.CanonicalProduct
		require.NoError(t, db.First(&winner, "upc = ?", upc).Error)

		id, created, err := repo.Create(ctx, &models.CanonicalProduct{
			UPC:            &upc,
			NormalizedName: "crest toothpaste whitening",
			DisplayName:    "Crest Toothpaste Whitening",
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, winner.ID, id)

		var count int64
		db.Model(&models.CanonicalProduct{}).Where("upc = ?", upc).Count(&count)
		assert.EqualValues(t, 1, count)
	})

	t.Run("name conflict reuses winner", func(t *testing.T) {
		first, created, err := repo.Create(ctx, &models.CanonicalProduct{
			NormalizedName: "generic inner tube 26",
			DisplayName:    "Generic Inner Tube 26",
		})
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := repo.Create(ctx, &models.CanonicalProduct{
			NormalizedName: "generic inner tube 26",
			DisplayName:    "GENERIC Inner-Tube (26)",
		})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first, second)
	})
}
