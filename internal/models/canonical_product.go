package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanonicalProduct is one deduplicated catalog entry shared by every
// seller's listing of the same physical product. Rows are created lazily
// during sync and never deleted by it; categorisation happens downstream.
type CanonicalProduct struct {
	ID             string    `json:"id" gorm:"type:uuid;primary_key"`
	UPC            *string   `json:"upc" gorm:"unique"`
	NormalizedName string    `json:"normalized_name" gorm:"unique;not null"`
	DisplayName    string    `json:"display_name" gorm:"not null"`
	Category       string    `json:"category"`
	Subcategory    string    `json:"subcategory"`
	SubSubcategory string    `json:"sub_subcategory"`
	Cleaned        bool      `json:"cleaned" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *CanonicalProduct) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
