package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/database"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

const lineItemColumns = `id, order_id, variant_id, COALESCE(tax_category_id, ''), quantity, price, cost_price,
	currency, promo_total, adjustment_total, included_tax_total, additional_tax_total,
	pre_tax_amount, selected_options, created_at, updated_at`

// LineItemRepository implements repository.LineItemRepository using PostgreSQL.
type LineItemRepository struct {
	db database.DBTX
}

// NewLineItemRepository creates a new PostgreSQL-backed line item repository.
func NewLineItemRepository(db database.DBTX) *LineItemRepository {
	return &LineItemRepository{db: db}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalOptions(opts map[string]string) ([]byte, error) {
	if opts == nil {
		opts = map[string]string{}
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal selected options: %w", err)
	}
	return b, nil
}

// Create inserts a new line item and marks it persisted.
func (r *LineItemRepository) Create(ctx context.Context, li *domain.LineItem) (err error) {
	const query = `
		INSERT INTO line_items (id, order_id, variant_id, tax_category_id, quantity, price, cost_price, currency,
			promo_total, adjustment_total, included_tax_total, additional_tax_total, pre_tax_amount,
			selected_options, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	ctx, end := database.TraceQuery(ctx, "CreateLineItem", query)
	defer func() { end(err) }()

	opts, err := marshalOptions(li.SelectedOptions)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		li.ID,
		li.OrderID,
		li.VariantID,
		nullable(li.TaxCategoryID),
		li.Quantity,
		li.Price,
		li.CostPrice,
		li.Currency,
		li.PromoTotal,
		li.AdjustmentTotal,
		li.IncludedTaxTotal,
		li.AdditionalTaxTotal,
		li.PreTaxAmount,
		opts,
		li.CreatedAt,
		li.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}

	li.MarkPersisted()
	return nil
}

func scanLineItem(row pgx.Row) (*domain.LineItem, error) {
	var (
		li   domain.LineItem
		opts []byte
	)
	err := row.Scan(
		&li.ID,
		&li.OrderID,
		&li.VariantID,
		&li.TaxCategoryID,
		&li.Quantity,
		&li.Price,
		&li.CostPrice,
		&li.Currency,
		&li.PromoTotal,
		&li.AdjustmentTotal,
		&li.IncludedTaxTotal,
		&li.AdditionalTaxTotal,
		&li.PreTaxAmount,
		&opts,
		&li.CreatedAt,
		&li.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(opts) > 0 && string(opts) != "{}" && string(opts) != "null" {
		if err := json.Unmarshal(opts, &li.SelectedOptions); err != nil {
			return nil, fmt.Errorf("unmarshal selected options: %w", err)
		}
	}
	li.MarkPersisted()
	return &li, nil
}

// GetByID retrieves a line item by its ID.
func (r *LineItemRepository) GetByID(ctx context.Context, id string) (_ *domain.LineItem, err error) {
	query := `SELECT ` + lineItemColumns + ` FROM line_items WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetLineItem", query)
	defer func() { end(err) }()

	li, err := scanLineItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("line item", id)
		}
		return nil, fmt.Errorf("scan line item: %w", err)
	}
	return li, nil
}

// ListByOrder returns the order's line items in creation order.
func (r *LineItemRepository) ListByOrder(ctx context.Context, orderID string) (_ []domain.LineItem, err error) {
	query := `SELECT ` + lineItemColumns + ` FROM line_items WHERE order_id = $1 ORDER BY created_at, id`

	ctx, end := database.TraceQuery(ctx, "ListLineItemsByOrder", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line item row: %w", err)
		}
		items = append(items, *li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line item rows: %w", err)
	}
	return items, nil
}

// Update writes the item's mutable attributes and marks it persisted.
func (r *LineItemRepository) Update(ctx context.Context, li *domain.LineItem) (err error) {
	const query = `
		UPDATE line_items
		SET quantity = $2, price = $3, cost_price = $4, currency = $5, tax_category_id = $6,
			selected_options = $7, updated_at = $8
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateLineItem", query)
	defer func() { end(err) }()

	opts, err := marshalOptions(li.SelectedOptions)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query,
		li.ID,
		li.Quantity,
		li.Price,
		li.CostPrice,
		li.Currency,
		nullable(li.TaxCategoryID),
		opts,
		li.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("line item", li.ID)
	}

	li.MarkPersisted()
	return nil
}

// UpdateTotals writes the adjustment totals and pre-tax amount.
func (r *LineItemRepository) UpdateTotals(ctx context.Context, li *domain.LineItem) (err error) {
	const query = `
		UPDATE line_items
		SET promo_total = $2, adjustment_total = $3, included_tax_total = $4,
			additional_tax_total = $5, pre_tax_amount = $6, updated_at = NOW()
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateLineItemTotals", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		li.ID,
		li.PromoTotal,
		li.AdjustmentTotal,
		li.IncludedTaxTotal,
		li.AdditionalTaxTotal,
		li.PreTaxAmount,
	)
	if err != nil {
		return fmt.Errorf("update line item totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("line item", li.ID)
	}
	return nil
}

// Delete removes a line item by ID.
func (r *LineItemRepository) Delete(ctx context.Context, id string) (err error) {
	const query = `DELETE FROM line_items WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteLineItem", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("line item", id)
	}
	return nil
}
