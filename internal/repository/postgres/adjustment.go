package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/database"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

// AdjustmentRepository implements repository.AdjustmentRepository using PostgreSQL.
type AdjustmentRepository struct {
	db database.DBTX
}

// NewAdjustmentRepository creates a new PostgreSQL-backed adjustment repository.
func NewAdjustmentRepository(db database.DBTX) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// ListByAdjustable returns the adjustments on one line item.
func (r *AdjustmentRepository) ListByAdjustable(ctx context.Context, adjustableID string) (_ []domain.Adjustment, err error) {
	const query = `
		SELECT id, adjustable_id, order_id, source_type, source_id, label, amount, included, eligible, closed, created_at
		FROM adjustments
		WHERE adjustable_id = $1
		ORDER BY created_at, id`

	ctx, end := database.TraceQuery(ctx, "ListAdjustments", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, adjustableID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := make([]domain.Adjustment, 0)
	for rows.Next() {
		var a domain.Adjustment
		if err := rows.Scan(
			&a.ID,
			&a.AdjustableID,
			&a.OrderID,
			&a.SourceType,
			&a.SourceID,
			&a.Label,
			&a.Amount,
			&a.Included,
			&a.Eligible,
			&a.Closed,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan adjustment row: %w", err)
		}
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adjustment rows: %w", err)
	}
	return adjustments, nil
}

// Create inserts an adjustment.
func (r *AdjustmentRepository) Create(ctx context.Context, a *domain.Adjustment) (err error) {
	const query = `
		INSERT INTO adjustments (id, adjustable_id, order_id, source_type, source_id, label, amount, included, eligible, closed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateAdjustment", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.AdjustableID,
		a.OrderID,
		a.SourceType,
		a.SourceID,
		a.Label,
		a.Amount,
		a.Included,
		a.Eligible,
		a.Closed,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// UpdateAmount sets an adjustment's amount and eligibility.
func (r *AdjustmentRepository) UpdateAmount(ctx context.Context, id string, amount decimal.Decimal, eligible bool) (err error) {
	const query = `UPDATE adjustments SET amount = $2, eligible = $3 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateAdjustmentAmount", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id, amount, eligible)
	if err != nil {
		return fmt.Errorf("update adjustment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("adjustment", id)
	}
	return nil
}

// DeleteTaxByAdjustable removes the tax adjustments on one line item.
func (r *AdjustmentRepository) DeleteTaxByAdjustable(ctx context.Context, adjustableID string) (err error) {
	const query = `DELETE FROM adjustments WHERE adjustable_id = $1 AND source_type = 'tax'`

	ctx, end := database.TraceQuery(ctx, "DeleteTaxAdjustments", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, adjustableID); err != nil {
		return fmt.Errorf("delete tax adjustments: %w", err)
	}
	return nil
}

// DeleteByAdjustable removes every adjustment on one line item.
func (r *AdjustmentRepository) DeleteByAdjustable(ctx context.Context, adjustableID string) (err error) {
	const query = `DELETE FROM adjustments WHERE adjustable_id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteAdjustments", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, adjustableID); err != nil {
		return fmt.Errorf("delete adjustments: %w", err)
	}
	return nil
}
