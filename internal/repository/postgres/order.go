package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prakyath/spree-commerse/internal/domain"
	"github.com/prakyath/spree-commerse/pkg/database"
	apperrors "github.com/prakyath/spree-commerse/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByID retrieves an order and its shipments. The order row is locked for
// the rest of the enclosing transaction so concurrent line item changes on
// the same order serialize.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	const orderQuery = `
		SELECT id, currency, COALESCE(tax_zone_id, ''), state, checkout_steps, completed_at, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`

	ctx, end := database.TraceQuery(ctx, "GetOrder", orderQuery)
	defer func() { end(err) }()

	var o domain.Order
	err = r.db.QueryRow(ctx, orderQuery, id).Scan(
		&o.ID,
		&o.Currency,
		&o.TaxZoneID,
		&o.State,
		&o.CheckoutSteps,
		&o.CompletedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Shipments, err = r.listShipments(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) listShipments(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	const query = `
		SELECT id, order_id, stock_location_id, state, created_at
		FROM shipments
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	shipments := make([]domain.Shipment, 0)
	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(&s.ID, &s.OrderID, &s.StockLocationID, &s.State, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shipment row: %w", err)
		}
		shipments = append(shipments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment rows: %w", err)
	}
	return shipments, nil
}
