package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductRow is one mirrored POS item for one connection. (connection_id,
// remote_item_id) is the upsert key; canonical_product_id, once set, is
// never replaced by a later sync.
type ProductRow struct {
	ID                 string    `json:"id" gorm:"type:uuid;primary_key"`
	ConnectionID       string    `json:"connection_id" gorm:"type:uuid;not null;uniqueIndex:idx_connection_item"`
	UserID             string    `json:"user_id" gorm:"not null;index"`
	RemoteItemID       string    `json:"remote_item_id" gorm:"not null;uniqueIndex:idx_connection_item"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	Subcategory        string    `json:"subcategory"`
	Manufacturer       string    `json:"manufacturer"`
	UPC                *string   `json:"upc"`
	Price              float64   `json:"price" gorm:"type:decimal(10,2)"`
	ModelYear          int       `json:"model_year"`
	QtyOnHand          int       `json:"qty_on_hand"`
	QtySellable        int       `json:"qty_sellable"`
	ReorderPoint       int       `json:"reorder_point"`
	ReorderLevel       int       `json:"reorder_level"`
	ImageURL           string    `json:"image_url"`
	CanonicalProductID *string   `json:"canonical_product_id" gorm:"type:uuid"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p *ProductRow) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
