package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	backupExt = ".bin"

	// backupLayout is fixed-width so file names sort chronologically.
	backupLayout = "20060102T150405.000000000Z"

	// DefaultBackupKeep is used when retention is not configured.
	DefaultBackupKeep = 5
)

// BackupStore persists configuration backups.
type BackupStore interface {
	Save(ctx context.Context, deviceID string, data []byte) (string, error)
}

// FileBackupStore writes backups to <dir>/<deviceID>/<timestamp>.bin and
// keeps the newest keep files per device.
type FileBackupStore struct {
	dir  string
	keep int
	now  func() time.Time

	mu sync.Mutex
}

// NewFileBackupStore creates a store rooted at dir.
func NewFileBackupStore(dir string, keep int) *FileBackupStore {
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	return &FileBackupStore{dir: dir, keep: keep, now: time.Now}
}

func (s *FileBackupStore) deviceDir(deviceID string) (string, error) {
	if deviceID == "" || deviceID == "." || deviceID == ".." ||
		strings.ContainsAny(deviceID, `/\`) || filepath.Base(deviceID) != deviceID {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	return filepath.Join(s.dir, deviceID), nil
}

// Save writes data atomically and prunes old backups. It returns the path
// of the new file.
func (s *FileBackupStore) Save(_ context.Context, deviceID string, data []byte) (string, error) {
	dir, err := s.deviceDir(deviceID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	path := filepath.Join(dir, s.now().UTC().Format(backupLayout)+backupExt)
	tmp, err := os.CreateTemp(dir, ".backup-*")
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing backup: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storing backup: %w", err)
	}

	if err := s.prune(dir); err != nil {
		return path, err
	}
	return path, nil
}

// List returns the stored backup paths for deviceID, oldest first.
func (s *FileBackupStore) List(deviceID string) ([]string, error) {
	dir, err := s.deviceDir(deviceID)
	if err != nil {
		return nil, err
	}
	return listBackups(dir)
}

// Latest returns the newest backup for deviceID.
func (s *FileBackupStore) Latest(deviceID string) ([]byte, error) {
	paths, err := s.List(deviceID)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBackup, deviceID)
	}
	data, err := os.ReadFile(paths[len(paths)-1])
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	return data, nil
}

func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), backupExt) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileBackupStore) prune(dir string) error {
	paths, err := listBackups(dir)
	if err != nil {
		return err
	}
	for len(paths) > s.keep {
		if err := os.Remove(paths[0]); err != nil {
			return fmt.Errorf("pruning backup: %w", err)
		}
		paths = paths[1:]
	}
	return nil
}
