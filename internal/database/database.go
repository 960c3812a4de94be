package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stocklink/internal/models"
)

type Database struct {
	DB *gorm.DB
}

func New(databaseURL string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.AutoMigrate(
			&models.Connection{},
			&models.ProductRow{},
			&models.CanonicalProduct{},
			&models.SyncState{},
		); err != nil {
			return nil, fmt.Errorf("failed to migrate tables: %w", err)
		}
		return &Database{DB: db}, nil
	}

	// PostgreSQL for production
	db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create tables manually with raw SQL
	createTablesSQL := `
	CREATE TABLE IF NOT EXISTS connections (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT DEFAULT 'ACTIVE',
		config JSONB,
		credentials JSONB,
		last_sync TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS canonical_products (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		upc TEXT UNIQUE,
		normalized_name TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		category TEXT,
		subcategory TEXT,
		sub_subcategory TEXT,
		cleaned BOOLEAN DEFAULT false,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS product_rows (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		connection_id UUID NOT NULL,
		user_id TEXT NOT NULL,
		remote_item_id TEXT NOT NULL,
		description TEXT,
		category TEXT,
		subcategory TEXT,
		manufacturer TEXT,
		upc TEXT,
		price DECIMAL(10,2),
		model_year INT,
		qty_on_hand INT DEFAULT 0,
		qty_sellable INT DEFAULT 0,
		reorder_point INT DEFAULT 0,
		reorder_level INT DEFAULT 0,
		image_url TEXT,
		canonical_product_id UUID,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE (connection_id, remote_item_id)
	);

	CREATE TABLE IF NOT EXISTS sync_states (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		connection_id UUID UNIQUE NOT NULL,
		status TEXT NOT NULL,
		phase TEXT NOT NULL,
		message TEXT,
		progress INT DEFAULT 0,
		items_fetched INT DEFAULT 0,
		items_synced INT DEFAULT 0,
		canonical_created INT DEFAULT 0,
		started_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		completed_at TIMESTAMPTZ
	);
	`

	if err := db.Exec(createTablesSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
