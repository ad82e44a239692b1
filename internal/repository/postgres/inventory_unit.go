package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/database"
)

// InventoryUnitRepository implements repository.InventoryUnitRepository
// using PostgreSQL.
type InventoryUnitRepository struct {
	db database.DBTX
}

// NewInventoryUnitRepository creates a new PostgreSQL-backed inventory unit repository.
func NewInventoryUnitRepository(db database.DBTX) *InventoryUnitRepository {
	return &InventoryUnitRepository{db: db}
}

// ListByLineItem returns the line item's units oldest first.
func (r *InventoryUnitRepository) ListByLineItem(ctx context.Context, lineItemID string) (_ []domain.InventoryUnit, err error) {
	const query = `
		SELECT id, order_id, line_item_id, variant_id, COALESCE(shipment_id::text, ''), state, pending, created_at
		FROM inventory_units
		WHERE line_item_id = $1
		ORDER BY created_at, id`

	ctx, end := database.TraceQuery(ctx, "ListInventoryUnits", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("list inventory units: %w", err)
	}
	defer rows.Close()

	units := make([]domain.InventoryUnit, 0)
	for rows.Next() {
		var u domain.InventoryUnit
		if err := rows.Scan(&u.ID, &u.OrderID, &u.LineItemID, &u.VariantID, &u.ShipmentID, &u.State, &u.Pending, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory unit row: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory unit rows: %w", err)
	}
	return units, nil
}

// CountOnHand counts the line item's units that hold physical stock.
func (r *InventoryUnitRepository) CountOnHand(ctx context.Context, lineItemID string) (_ int, err error) {
	const query = `SELECT COUNT(*) FROM inventory_units WHERE line_item_id = $1 AND state = 'on_hand'`

	ctx, end := database.TraceQuery(ctx, "CountOnHandUnits", query)
	defer func() { end(err) }()

	var n int
	if err = r.db.QueryRow(ctx, query, lineItemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count on-hand units: %w", err)
	}
	return n, nil
}

// CreateBatch inserts units with a single multi-row statement.
func (r *InventoryUnitRepository) CreateBatch(ctx context.Context, units []domain.InventoryUnit) (err error) {
	if len(units) == 0 {
		return nil
	}

	const cols = 8
	values := make([]string, 0, len(units))
	args := make([]any, 0, len(units)*cols)
	for i, u := range units {
		n := i * cols
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))
		args = append(args, u.ID, u.OrderID, u.LineItemID, u.VariantID, nullable(u.ShipmentID), u.State, u.Pending, u.CreatedAt)
	}

	query := `INSERT INTO inventory_units (id, order_id, line_item_id, variant_id, shipment_id, state, pending, created_at)
		VALUES ` + strings.Join(values, ", ")

	ctx, end := database.TraceQuery(ctx, "CreateInventoryUnits", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert inventory units: %w", err)
	}
	return nil
}

// DeleteByIDs removes the given units.
func (r *InventoryUnitRepository) DeleteByIDs(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}

	const query = `DELETE FROM inventory_units WHERE id = ANY($1)`

	ctx, end := database.TraceQuery(ctx, "DeleteInventoryUnits", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete inventory units: %w", err)
	}
	return nil
}

// DeleteByLineItem removes every unit of a line item and returns the count.
func (r *InventoryUnitRepository) DeleteByLineItem(ctx context.Context, lineItemID string) (_ int64, err error) {
	const query = `DELETE FROM inventory_units WHERE line_item_id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteLineItemUnits", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, lineItemID)
	if err != nil {
		return 0, fmt.Errorf("delete line item units: %w", err)
	}
	return tag.RowsAffected(), nil
}
