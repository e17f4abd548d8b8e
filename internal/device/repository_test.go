package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/migrations"
)

// setupTestRepo opens a migrated SQLite database in a temp dir.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "devices.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// testDevice creates a device for testing.
func testDevice(id, name, ip string) *Device {
	return &Device{
		ID:              id,
		Name:            name,
		IPAddress:       ip,
		Port:            80,
		Username:        "admin",
		EncryptedSecret: "00:00:00",
		TimeoutMs:       4000,
		Model:           "DS-K1T671M",
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice("door-1", "Front Door", "192.168.1.64")
	d.UseHTTPS = true
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Error("Create() should set timestamps")
	}

	got, err := repo.GetByID(ctx, "door-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Front Door" || got.IPAddress != "192.168.1.64" || !got.UseHTTPS ||
		got.TimeoutMs != 4000 || got.EncryptedSecret != "00:00:00" || got.Model != "DS-K1T671M" {
		t.Errorf("GetByID() = %+v", got)
	}

	byIP, err := repo.GetByIP(ctx, "192.168.1.64")
	if err != nil || byIP.ID != "door-1" {
		t.Errorf("GetByIP() = %v, %v", byIP, err)
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testDevice("door-1", "A", "10.0.0.1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, testDevice("door-1", "B", "10.0.0.2"))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := repo.GetByIP(ctx, "10.9.9.9"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByIP() error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Update(ctx, testDevice("missing", "x", "10.0.0.1")); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_UpdateListDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, d := range []*Device{
		testDevice("d2", "Warehouse", "10.0.0.2"),
		testDevice("d1", "Lobby", "10.0.0.1"),
	} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	upd := testDevice("d1", "Lobby East", "10.0.0.11")
	if err := repo.Update(ctx, upd); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "Lobby East" || list[1].Name != "Warehouse" {
		t.Fatalf("List() = %+v, want name order", list)
	}
	if list[0].IPAddress != "10.0.0.11" {
		t.Errorf("updated IP = %q", list[0].IPAddress)
	}

	if err := repo.Delete(ctx, "d2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	list, _ = repo.List(ctx)
	if len(list) != 1 {
		t.Errorf("List() after delete = %d devices, want 1", len(list))
	}
}
