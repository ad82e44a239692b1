package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/database"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

// TaxRateRepository implements repository.TaxRateRepository using PostgreSQL.
type TaxRateRepository struct {
	db database.DBTX
}

// NewTaxRateRepository creates a new PostgreSQL-backed tax rate repository.
func NewTaxRateRepository(db database.DBTX) *TaxRateRepository {
	return &TaxRateRepository{db: db}
}

// ListByZone returns the rates of one zone ordered by name.
func (r *TaxRateRepository) ListByZone(ctx context.Context, zoneID string) (_ []domain.TaxRate, err error) {
	const query = `
		SELECT id, name, zone_id, tax_category_id, amount, included_in_price
		FROM tax_rates
		WHERE zone_id = $1
		ORDER BY name, id`

	ctx, end := database.TraceQuery(ctx, "ListTaxRates", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, zoneID)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	rates := make([]domain.TaxRate, 0)
	for rows.Next() {
		var tr domain.TaxRate
		if err := rows.Scan(&tr.ID, &tr.Name, &tr.ZoneID, &tr.TaxCategoryID, &tr.Amount, &tr.IncludedInPrice); err != nil {
			return nil, fmt.Errorf("scan tax rate row: %w", err)
		}
		rates = append(rates, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tax rate rows: %w", err)
	}
	return rates, nil
}

// IncludedRateFor sums the price-included rates of a zone and tax category.
func (r *TaxRateRepository) IncludedRateFor(ctx context.Context, zoneID, taxCategoryID string) (_ decimal.Decimal, err error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM tax_rates
		WHERE zone_id = $1 AND tax_category_id = $2 AND included_in_price`

	ctx, end := database.TraceQuery(ctx, "SumIncludedTaxRates", query)
	defer func() { end(err) }()

	var sum decimal.Decimal
	if err = r.db.QueryRow(ctx, query, zoneID, taxCategoryID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum included tax rates: %w", err)
	}
	return sum, nil
}

// PromotionActionRepository implements repository.PromotionActionRepository
// using PostgreSQL.
type PromotionActionRepository struct {
	db database.DBTX
}

// NewPromotionActionRepository creates a new PostgreSQL-backed promotion action repository.
func NewPromotionActionRepository(db database.DBTX) *PromotionActionRepository {
	return &PromotionActionRepository{db: db}
}

// GetByID retrieves a promotion action.
func (r *PromotionActionRepository) GetByID(ctx context.Context, id string) (_ *domain.PromotionAction, err error) {
	const query = `SELECT id, calculator, amount FROM promotion_actions WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetPromotionAction", query)
	defer func() { end(err) }()

	var a domain.PromotionAction
	if err = r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Calculator, &a.Amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("promotion action", id)
		}
		return nil, fmt.Errorf("scan promotion action: %w", err)
	}
	return &a, nil
}
