package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres reads the catalog the collaborator maintains. The engine never
// writes here.
type Postgres struct{ DB *pgxpool.Pool }

func (c *Postgres) Item(ctx context.Context, sku string) (Item, error) {
	var (
		item  Item
		price string
	)
	err := c.DB.QueryRow(ctx,
		`SELECT sku, name, unit_price::text FROM catalog_items WHERE sku=$1`,
		sku).Scan(&item.SKU, &item.Name, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, &InconsistencyError{SKU: sku}
	}
	if err != nil {
		return Item{}, err
	}
	if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return Item{}, err
	}
	return item, nil
}
