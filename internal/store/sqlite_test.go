package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MeiCorl/mall-relay/internal/models"
)

func newTestDirectory(t *testing.T) *SQLiteDirectory {
	t.Helper()

	dir, err := NewSQLiteDirectory(context.Background(), filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(dir.Close)
	return dir
}

func TestMerchantLookup(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	created, err := dir.CreateMerchant(ctx, "Corner Bakery", 1, models.MerchantApproved)
	if err != nil {
		t.Fatalf("create merchant failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	got, err := dir.GetMerchant(ctx, created.ID)
	if err != nil {
		t.Fatalf("get merchant failed: %v", err)
	}
	if got == nil || got.Name != "Corner Bakery" {
		t.Fatalf("unexpected merchant: %+v", got)
	}

	exists, err := dir.MerchantExists(ctx, created.ID)
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if !exists {
		t.Fatal("expected merchant to resolve")
	}
}

func TestUnknownMerchant(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()

	got, err := dir.GetMerchant(ctx, 99999)
	if err != nil {
		t.Fatalf("get of absent merchant must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent merchant, got %+v", got)
	}

	exists, err := dir.MerchantExists(ctx, 99999)
	if err != nil {
		t.Fatalf("exists check failed: %v", err)
	}
	if exists {
		t.Fatal("absent merchant must not resolve")
	}
}
