package domain

import "time"

// Inventory unit states.
const (
	UnitStateOnHand      = "on_hand"
	UnitStateBackordered = "backordered"
	UnitStateShipped     = "shipped"
	UnitStateReturned    = "returned"
)

// InventoryUnit allocates one unit of a variant to a line item and shipment.
type InventoryUnit struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	LineItemID string    `json:"line_item_id"`
	VariantID  string    `json:"variant_id"`
	ShipmentID string    `json:"shipment_id"`
	State      string    `json:"state"`
	Pending    bool      `json:"pending"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *InventoryUnit) IsShipped() bool { return u.State == UnitStateShipped }

func (u *InventoryUnit) IsBackordered() bool { return u.State == UnitStateBackordered }
