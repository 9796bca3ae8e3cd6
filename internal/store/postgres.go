package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MeiCorl/mall-relay/internal/models"
)

// PostgresDirectory reads merchant records from PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory backed by a connection pool.
func NewPostgresDirectory(ctx context.Context, databaseURL string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresDirectory{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresDirectory) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresDirectory) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetMerchant retrieves a merchant by id. Returns (nil, nil) when absent.
func (s *PostgresDirectory) GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	merchant := &models.Merchant{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_name, merchant_type, status, phone, create_time, update_time
		FROM t_merchant_info WHERE id = $1
	`, id).Scan(
		&merchant.ID,
		&merchant.Name,
		&merchant.Type,
		&merchant.Status,
		&merchant.Phone,
		&merchant.CreatedAt,
		&merchant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return merchant, nil
}

// MerchantExists reports whether a merchant id resolves.
func (s *PostgresDirectory) MerchantExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM t_merchant_info WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
