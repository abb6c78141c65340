package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entity owning sellable variants. The core reads it
// only to resolve ownership and activity; catalog edits happen elsewhere.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
