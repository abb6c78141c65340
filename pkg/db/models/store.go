package models

import (
	"time"

	"github.com/google/uuid"
)

// Store is the seller identity the core consumes read-only. Bank connection
// status and the connected account reference are maintained by the onboarding
// flow outside this repository.
type Store struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null"`
	StripeAccountID *string   `gorm:"column:stripe_account_id"`
	BankConnected   bool      `gorm:"column:bank_connected;not null;default:false"`
	Active          bool      `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
