package inventory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/repository"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

// Supplier reports how many units of a variant are on hand.
type Supplier interface {
	Available(ctx context.Context, v *domain.Variant) (int, error)
}

// OrderInventory keeps a line item's inventory units in step with its
// quantity across the order's shipments.
type OrderInventory struct {
	units    repository.InventoryUnitRepository
	supplier Supplier
	now      func() time.Time
}

// NewOrderInventory creates an OrderInventory.
func NewOrderInventory(units repository.InventoryUnitRepository, supplier Supplier) *OrderInventory {
	return &OrderInventory{
		units:    units,
		supplier: supplier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Verify adds or removes units so the item holds exactly item.Quantity of
// them. Nothing happens until the order is completed unless a target
// shipment is given.
func (o *OrderInventory) Verify(ctx context.Context, order *domain.Order, item *domain.LineItem, targetShipmentID string) error {
	if !order.IsCompleted() && targetShipmentID == "" {
		return nil
	}

	var target *domain.Shipment
	if targetShipmentID != "" {
		s, ok := order.Shipment(targetShipmentID)
		if !ok {
			return apperrors.NotFound("shipment", targetShipmentID)
		}
		target = s
	}

	units, err := o.units.ListByLineItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("list inventory units: %w", err)
	}

	switch {
	case len(units) < item.Quantity:
		if target == nil {
			target = targetShipment(order, units)
			if target == nil {
				return apperrors.Conflict(fmt.Sprintf("order %s has no pending shipment for line item %s", order.ID, item.ID))
			}
		}
		return o.addToShipment(ctx, order, item, target, item.Quantity-len(units))
	case len(units) > item.Quantity:
		return o.remove(ctx, order, units, target, len(units)-item.Quantity)
	}
	return nil
}

// targetShipment picks the first open shipment already holding the item,
// falling back to the first open shipment.
func targetShipment(order *domain.Order, units []domain.InventoryUnit) *domain.Shipment {
	holding := make(map[string]bool, len(units))
	for _, u := range units {
		holding[u.ShipmentID] = true
	}

	var fallback *domain.Shipment
	for i := range order.Shipments {
		s := &order.Shipments[i]
		if !isOpen(s) {
			continue
		}
		if holding[s.ID] {
			return s
		}
		if fallback == nil {
			fallback = s
		}
	}
	return fallback
}

func isOpen(s *domain.Shipment) bool {
	return s.State == domain.ShipmentStatePending || s.State == domain.ShipmentStateReady
}

func (o *OrderInventory) addToShipment(ctx context.Context, order *domain.Order, item *domain.LineItem, shipment *domain.Shipment, quantity int) error {
	onHand := quantity
	if item.ShouldTrackInventory() {
		available, err := o.supplier.Available(ctx, item.Variant)
		if err != nil {
			return err
		}
		onHand = min(max(available, 0), quantity)
	}

	now := o.now()
	units := make([]domain.InventoryUnit, 0, quantity)
	for i := range quantity {
		state := domain.UnitStateOnHand
		if i >= onHand {
			state = domain.UnitStateBackordered
		}
		units = append(units, domain.InventoryUnit{
			ID:         uuid.New().String(),
			OrderID:    order.ID,
			LineItemID: item.ID,
			VariantID:  item.VariantID,
			ShipmentID: shipment.ID,
			State:      state,
			Pending:    !order.IsCompleted(),
			CreatedAt:  now,
		})
	}

	if err := o.units.CreateBatch(ctx, units); err != nil {
		return fmt.Errorf("add inventory units: %w", err)
	}
	return nil
}

// remove drops excess units from the target shipment, or from each
// unshipped shipment in order until the excess is gone.
func (o *OrderInventory) remove(ctx context.Context, order *domain.Order, units []domain.InventoryUnit, target *domain.Shipment, excess int) error {
	var shipments []*domain.Shipment
	if target != nil {
		shipments = []*domain.Shipment{target}
	} else {
		for i := range order.Shipments {
			shipments = append(shipments, &order.Shipments[i])
		}
	}

	var ids []string
	for _, s := range shipments {
		if excess == 0 {
			break
		}
		picked := removableUnits(units, s, excess)
		ids = append(ids, picked...)
		excess -= len(picked)
	}

	if err := o.units.DeleteByIDs(ctx, ids); err != nil {
		return fmt.Errorf("remove inventory units: %w", err)
	}
	return nil
}

// removableUnits returns up to n unshipped units of shipment s, backordered
// units first.
func removableUnits(units []domain.InventoryUnit, s *domain.Shipment, n int) []string {
	if n <= 0 || s.IsShipped() {
		return nil
	}

	var candidates []domain.InventoryUnit
	for _, u := range units {
		if u.ShipmentID == s.ID && !u.IsShipped() {
			candidates = append(candidates, u)
		}
	}
	slices.SortStableFunc(candidates, func(a, b domain.InventoryUnit) int {
		return cmp.Compare(a.State, b.State)
	})

	ids := make([]string, 0, min(n, len(candidates)))
	for _, u := range candidates[:min(n, len(candidates))] {
		ids = append(ids, u.ID)
	}
	return ids
}

// OnHandCount returns how many of the item's units hold physical stock.
func (o *OrderInventory) OnHandCount(ctx context.Context, lineItemID string) (int, error) {
	n, err := o.units.CountOnHand(ctx, lineItemID)
	if err != nil {
		return 0, fmt.Errorf("count on-hand units: %w", err)
	}
	return n, nil
}

// DestroyUnits removes every unit the item owns.
func (o *OrderInventory) DestroyUnits(ctx context.Context, lineItemID string) (int64, error) {
	n, err := o.units.DeleteByLineItem(ctx, lineItemID)
	if err != nil {
		return 0, fmt.Errorf("destroy inventory units: %w", err)
	}
	return n, nil
}
