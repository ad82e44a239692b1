package stock

import (
	"context"
	"fmt"

	"github.com/prakyath/spree-commerse/internal/domain"
)

// Levels reports how many units of a variant can be supplied.
type Levels interface {
	Available(ctx context.Context, v *domain.Variant) (int, error)
}

// Quantifier answers supply questions for variants.
type Quantifier struct {
	levels Levels
}

// NewQuantifier creates a Quantifier over levels.
func NewQuantifier(levels Levels) *Quantifier {
	return &Quantifier{levels: levels}
}

// Available returns the count the stock service can supply for v.
func (q *Quantifier) Available(ctx context.Context, v *domain.Variant) (int, error) {
	n, err := q.levels.Available(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("stock level for variant %s: %w", v.ID, err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// CanSupply reports whether quantity units of v can be sold.
func (q *Quantifier) CanSupply(ctx context.Context, v *domain.Variant, quantity int) (bool, error) {
	if quantity <= 0 || !v.TrackInventory || v.Backorderable {
		return true, nil
	}
	n, err := q.Available(ctx, v)
	if err != nil {
		return false, err
	}
	return n >= quantity, nil
}
