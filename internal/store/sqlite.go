package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MeiCorl/mall-relay/internal/models"
)

// SQLiteDirectory is the development-mode merchant directory.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates a SQLite-backed directory.
// If dbPath is empty, defaults to "./data/relay.db".
func NewSQLiteDirectory(ctx context.Context, dbPath string) (*SQLiteDirectory, error) {
	if dbPath == "" {
		dbPath = "./data/relay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteDirectory{db: db}

	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// initSchema creates the merchant table if it doesn't exist. In production
// the merchant backend owns this table; here it only has to be queryable.
func (s *SQLiteDirectory) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS t_merchant_info (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_name TEXT NOT NULL,
		merchant_type INTEGER DEFAULT 1,
		status INTEGER DEFAULT 0,
		phone TEXT DEFAULT '',
		create_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		update_time DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteDirectory) Close() {
	_ = s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteDirectory) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetMerchant retrieves a merchant by id. Returns (nil, nil) when absent.
func (s *SQLiteDirectory) GetMerchant(ctx context.Context, id int64) (*models.Merchant, error) {
	merchant := &models.Merchant{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, merchant_name, merchant_type, status, phone, create_time, update_time
		FROM t_merchant_info WHERE id = ?
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return merchant, nil
}

// MerchantExists reports whether a merchant id resolves.
func (s *SQLiteDirectory) MerchantExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM t_merchant_info WHERE id = ?)
	`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CreateMerchant inserts a merchant record. Development and test helper;
// not part of the Directory interface because the relay never writes.
func (s *SQLiteDirectory) CreateMerchant(ctx context.Context, name string, merchantType, status int16) (*models.Merchant, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO t_merchant_info (merchant_name, merchant_type, status, create_time, update_time)
		VALUES (?, ?, ?, ?, ?)
	`, name, merchantType, status, now, now)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Merchant{
		ID:        id,
		Name:      name,
		Type:      merchantType,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
