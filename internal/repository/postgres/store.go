package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/prakyath/spree-commerse/internal/repository"
	"github.com/prakyath/spree-commerse/pkg/database"
)

// Store implements repository.Transactor on a connection pool.
type Store struct {
	db database.DBTX
}

// NewStore creates a Store over db.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// Repositories returns repositories bound to db.
func Repositories(db database.DBTX) repository.Repositories {
	return repository.Repositories{
		LineItems:      NewLineItemRepository(db),
		Orders:         NewOrderRepository(db),
		InventoryUnits: NewInventoryUnitRepository(db),
		Adjustments:    NewAdjustmentRepository(db),
		TaxRates:       NewTaxRateRepository(db),
		Promotions:     NewPromotionActionRepository(db),
	}
}

// Repositories returns repositories that run outside any transaction.
func (s *Store) Repositories() repository.Repositories {
	return Repositories(s.db)
}

// WithinTx runs fn with repositories bound to a new transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, Repositories(tx))
	})
}
