package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileBackupStore_SaveAndRetention(t *testing.T) {
	dir := t.TempDir()
	store := NewFileBackupStore(dir, 2)
	base := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		path, err := store.Save(ctx, "door-1", []byte(body))
		if err != nil {
			t.Fatalf("Save(%s): %v", body, err)
		}
		if filepath.Dir(path) != filepath.Join(dir, "door-1") || !strings.HasSuffix(path, ".bin") {
			t.Errorf("path = %s", path)
		}
	}

	paths, err := store.List("door-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("kept %d backups, want 2", len(paths))
	}
	if filepath.Base(paths[0]) != "20260301T050000.000000000Z.bin" {
		t.Errorf("oldest kept = %s", filepath.Base(paths[0]))
	}

	latest, err := store.Latest("door-1")
	if err != nil || string(latest) != "three" {
		t.Errorf("Latest() = %q, %v", latest, err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "door-1", ".backup-*")) //nolint:errcheck // pattern is valid
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestFileBackupStore_InvalidDeviceID(t *testing.T) {
	store := NewFileBackupStore(t.TempDir(), 0)
	for _, id := range []string{"", ".", "..", "../etc", `a\b`, "a/b"} {
		if _, err := store.Save(context.Background(), id, []byte("x")); !errors.Is(err, ErrInvalidDeviceID) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidDeviceID", id, err)
		}
	}
}

func TestFileBackupStore_NoBackup(t *testing.T) {
	store := NewFileBackupStore(t.TempDir(), 3)
	if _, err := store.Latest("door-1"); !errors.Is(err, ErrNoBackup) {
		t.Errorf("Latest() error = %v, want ErrNoBackup", err)
	}

	// Files without the backup extension are ignored.
	dir := filepath.Join(store.dir, "door-1")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if paths, err := store.List("door-1"); err != nil || len(paths) != 0 {
		t.Errorf("List() = %v, %v", paths, err)
	}
}
