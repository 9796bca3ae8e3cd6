package store

import (
	"context"

	"github.com/MeiCorl/mall-relay/internal/models"
)

// Directory resolves merchant identities against the merchant table owned
// by the merchant backend. The relay never writes it.
// Both PostgresDirectory and SQLiteDirectory implement this interface.
type Directory interface {
	Close()
	Ping(ctx context.Context) error

	GetMerchant(ctx context.Context, id int64) (*models.Merchant, error)
	MerchantExists(ctx context.Context, id int64) (bool, error)
}
