package adjustment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/internal/repository"
)

// Updater recalculates a line item's adjustments and rolls them up into its
// totals.
type Updater struct {
	adjustments repository.AdjustmentRepository
	promotions  repository.PromotionActionRepository
	lineItems   repository.LineItemRepository
}

// NewUpdater creates an Updater.
func NewUpdater(adjustments repository.AdjustmentRepository, promotions repository.PromotionActionRepository, lineItems repository.LineItemRepository) *Updater {
	return &Updater{adjustments: adjustments, promotions: promotions, lineItems: lineItems}
}

// UpdateAdjustments recomputes open promotion adjustments, keeps only the
// best eligible one, and stores promo, tax and adjustment totals on item.
func (u *Updater) UpdateAdjustments(ctx context.Context, item *domain.LineItem) error {
	adjs, err := u.adjustments.ListByAdjustable(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("list adjustments: %w", err)
	}

	promos := make([]*domain.Adjustment, 0, len(adjs))
	included, additional := decimal.Zero, decimal.Zero
	for i := range adjs {
		adj := &adjs[i]
		switch {
		case adj.IsPromotion():
			if !adj.Closed {
				action, err := u.promotions.GetByID(ctx, adj.SourceID)
				if err != nil {
					return fmt.Errorf("load promotion action %s: %w", adj.SourceID, err)
				}
				adj.Amount = action.Compute(item)
			}
			promos = append(promos, adj)
		case adj.IsTax() && adj.Included:
			included = included.Add(adj.Amount)
		case adj.IsTax():
			additional = additional.Add(adj.Amount)
		}
	}

	best := bestPromotion(promos)
	promoTotal := decimal.Zero
	for _, adj := range promos {
		eligible := adj == best
		if eligible {
			promoTotal = adj.Amount
		}
		if adj.Closed && adj.Eligible == eligible {
			continue
		}
		if err := u.adjustments.UpdateAmount(ctx, adj.ID, adj.Amount, eligible); err != nil {
			return fmt.Errorf("update promotion adjustment %s: %w", adj.ID, err)
		}
	}

	item.PromoTotal = promoTotal
	item.IncludedTaxTotal = included
	item.AdditionalTaxTotal = additional
	item.AdjustmentTotal = promoTotal.Add(additional)
	if err := u.lineItems.UpdateTotals(ctx, item); err != nil {
		return fmt.Errorf("store adjustment totals: %w", err)
	}
	return nil
}

// bestPromotion returns the most negative non-zero promotion. Ties go to the
// first one listed. Closed adjustments compete only while still eligible.
func bestPromotion(promos []*domain.Adjustment) *domain.Adjustment {
	var best *domain.Adjustment
	for _, adj := range promos {
		if adj.Amount.IsZero() || (adj.Closed && !adj.Eligible) {
			continue
		}
		if best == nil || adj.Amount.LessThan(best.Amount) {
			best = adj
		}
	}
	return best
}
