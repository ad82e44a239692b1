package domain

import (
	"slices"
	"time"
)

// Order states.
const (
	OrderStateCart     = "cart"
	OrderStateAddress  = "address"
	OrderStateDelivery = "delivery"
	OrderStatePayment  = "payment"
	OrderStateConfirm  = "confirm"
	OrderStateComplete = "complete"
	OrderStateCanceled = "canceled"
)

// CheckoutStepDelivery is the checkout step after which inventory is allocated.
const CheckoutStepDelivery = "delivery"

// Shipment states.
const (
	ShipmentStatePending  = "pending"
	ShipmentStateReady    = "ready"
	ShipmentStateShipped  = "shipped"
	ShipmentStateCanceled = "canceled"
)

// Order is the subset of an order the line item pipeline reads.
type Order struct {
	ID            string     `json:"id"`
	Currency      string     `json:"currency"`
	TaxZoneID     string     `json:"tax_zone_id,omitempty"`
	State         string     `json:"state"`
	CheckoutSteps []string   `json:"checkout_steps"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Shipments     []Shipment `json:"shipments,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasCheckoutStep reports whether the order's checkout flow includes step.
func (o *Order) HasCheckoutStep(step string) bool {
	return slices.Contains(o.CheckoutSteps, step)
}

// IsCompleted reports whether checkout has finished.
func (o *Order) IsCompleted() bool {
	return o.CompletedAt != nil
}

// Shipment groups inventory units leaving one stock location.
type Shipment struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	StockLocationID string    `json:"stock_location_id"`
	State           string    `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
}

func (s *Shipment) IsShipped() bool { return s.State == ShipmentStateShipped }

func (s *Shipment) IsPending() bool { return s.State == ShipmentStatePending }

// Shipment returns the order's shipment with the given id.
func (o *Order) Shipment(id string) (*Shipment, bool) {
	for i := range o.Shipments {
		if o.Shipments[i].ID == id {
			return &o.Shipments[i], true
		}
	}
	return nil, false
}
