package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/shared"
)

// Item is a stocked product, unique by SKU.
type Item struct {
	ID             uuid.UUID
	SKU            string
	Name           string
	Description    string
	UnitPriceCents int64
	Quantity       int64
	WarehouseID    *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        uuid.UUID
	Name      string
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Movement types recorded against an item.
const (
	MovementInbound    = "inbound"
	MovementOutbound   = "outbound"
	MovementAdjustment = "adjustment"
)

// StockMovement is one quantity change against an item.
type StockMovement struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	WarehouseID  *uuid.UUID
	MovementType string
	Quantity     int64
	Note         string
	CreatedBy    *uuid.UUID
	CreatedAt    time.Time
}

// Validate checks the movement before it is recorded. Inbound and outbound
// quantities are positive; adjustments may carry either sign but not zero.
func (m StockMovement) Validate() error {
	switch m.MovementType {
	case MovementInbound, MovementOutbound:
		if m.Quantity <= 0 {
			return fmt.Errorf("%w: %s quantity must be positive", shared.ErrInvalidInput, m.MovementType)
		}
	case MovementAdjustment:
		if m.Quantity == 0 {
			return fmt.Errorf("%w: adjustment quantity must be non-zero", shared.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown movement type %q", shared.ErrInvalidInput, m.MovementType)
	}
	if m.ItemID == uuid.Nil {
		return fmt.Errorf("%w: movement requires an item", shared.ErrInvalidInput)
	}
	return nil
}

// Delta is the signed quantity change the movement applies to the item.
func (m StockMovement) Delta() int64 {
	if m.MovementType == MovementOutbound {
		return -m.Quantity
	}
	return m.Quantity
}
