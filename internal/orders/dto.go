package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/dariomatias/vendora-backend/pkg/db/models"
	"github.com/dariomatias/vendora-backend/pkg/enums"
)

// ListFilters describe the inputs supported by the order list queries.
type ListFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderList is one page of orders plus the cursor for the next page.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SellerTransitionInput captures a seller-side status change request.
type SellerTransitionInput struct {
	OrderID uuid.UUID
	StoreID uuid.UUID
	Target  enums.OrderStatus
}

// BuyerTransitionInput captures a buyer-side status change request.
type BuyerTransitionInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Target  enums.OrderStatus
	Reason  string
}
