package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Backup errors.
var (
	ErrBackupNotFound  = errors.New("backup not found")
	ErrBackupCorrupted = errors.New("backup integrity check failed")
	ErrBackupExists    = errors.New("backup already exists")
	ErrInvalidBackupID = errors.New("invalid backup id: cannot contain path separators")
)

// maxAutoBackups is how many automatic backups are kept before the oldest are pruned.
const maxAutoBackups = 5

// BackupInfo describes one snapshot of the ledger database.
type BackupInfo struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	FileSize      int64     `json:"file_size"`
	Transactions  int       `json:"transactions"`
	Accounts      int       `json:"accounts"`
	SchemaVersion int       `json:"schema_version"`
	IsAuto        bool      `json:"is_auto"`
}

// BackupManager takes and restores file snapshots of the database. Snapshots
// live next to the database in a backups directory, each with a JSON sidecar.
type BackupManager struct {
	store *SQLiteStorage
	dir   string
}

// NewBackupManager creates a manager for the store's database file.
func NewBackupManager(store *SQLiteStorage) (*BackupManager, error) {
	if store.dbPath == ":memory:" {
		return nil, errors.New("in-memory databases cannot be backed up")
	}

	dir := filepath.Join(filepath.Dir(store.dbPath), "backups")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	return &BackupManager{store: store, dir: dir}, nil
}

// Create snapshots the database. An empty id is replaced by a timestamped one.
func (bm *BackupManager) Create(ctx context.Context, id, description string) (*BackupInfo, error) {
	return bm.create(ctx, id, description, false)
}

// Auto takes an automatic backup before a bulk operation and prunes old ones.
func (bm *BackupManager) Auto(ctx context.Context, reason string) (*BackupInfo, error) {
	id := fmt.Sprintf("auto-%s-%s", reason, bm.store.now().Format("2006-01-02-150405"))
	info, err := bm.create(ctx, id, "Automatic backup before "+reason, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic backup: %w", err)
	}

	if err := bm.pruneAuto(ctx); err != nil {
		slog.Warn("Failed to prune automatic backups", "error", err)
	}
	return info, nil
}

func (bm *BackupManager) create(ctx context.Context, id, description string, auto bool) (*BackupInfo, error) {
	if id == "" {
		id = "backup-" + bm.store.now().Format("2006-01-02-150405")
	}
	if err := validateBackupID(id); err != nil {
		return nil, err
	}

	dbFile := bm.path(id, ".db")
	if _, err := os.Stat(dbFile); err == nil {
		return nil, ErrBackupExists
	}

	schemaVersion, err := bm.store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	info := &BackupInfo{
		ID:            id,
		CreatedAt:     bm.store.now(),
		Description:   description,
		SchemaVersion: schemaVersion,
		IsAuto:        auto,
	}
	if err := bm.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&info.Transactions); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	if err := bm.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&info.Accounts); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	abs, err := filepath.Abs(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backup path: %w", err)
	}
	if strings.ContainsAny(abs, `'";`) {
		return nil, fmt.Errorf("invalid backup path %q", abs)
	}
	// #nosec G201 - abs is rejected above if it contains quoting characters
	if _, err := bm.store.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", abs)); err != nil {
		return nil, fmt.Errorf("failed to backup database: %w", classifyError(err))
	}

	stat, err := os.Stat(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}
	info.FileSize = stat.Size()

	if err := writeJSONAtomic(bm.path(id, ".meta.json"), info); err != nil {
		if rmErr := os.Remove(dbFile); rmErr != nil {
			slog.Error("Failed to remove backup after metadata failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save backup metadata: %w", err)
	}

	slog.Info("Created backup", "id", id, "transactions", info.Transactions, "accounts", info.Accounts)
	return info, nil
}

// List returns every backup, newest first. Unreadable sidecars are skipped.
func (bm *BackupManager) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(bm.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readBackupInfo(filepath.Join(bm.dir, entry.Name()))
		if err != nil {
			slog.Debug("Skipping unreadable backup metadata", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore replaces the database file with a backup. The store is closed
// first and must be reopened by the caller.
func (bm *BackupManager) Restore(ctx context.Context, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}

	dbFile := bm.path(id, ".db")
	if _, err := os.Stat(dbFile); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to access backup: %w", err)
	}

	if err := checkIntegrity(ctx, dbFile); err != nil {
		slog.Error("Backup failed integrity check", "id", id, "error", err)
		return ErrBackupCorrupted
	}

	if err := bm.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	// WAL side files belong to the database being replaced.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(bm.store.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}

	if err := copyFileAtomic(dbFile, bm.store.dbPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	slog.Info("Restored backup", "id", id)
	return nil
}

// Delete removes a backup and its metadata.
func (bm *BackupManager) Delete(_ context.Context, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}

	if err := os.Remove(bm.path(id, ".db")); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	if err := os.Remove(bm.path(id, ".meta.json")); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove backup metadata", "id", id, "error", err)
	}
	return nil
}

func (bm *BackupManager) pruneAuto(ctx context.Context) error {
	backups, err := bm.List(ctx)
	if err != nil {
		return err
	}

	kept := 0
	for _, b := range backups {
		if !b.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoBackups {
			if err := bm.Delete(ctx, b.ID); err != nil {
				slog.Debug("Failed to delete old automatic backup", "id", b.ID, "error", err)
			}
		}
	}
	return nil
}

func (bm *BackupManager) path(id, suffix string) string {
	return filepath.Join(bm.dir, id+suffix)
}

func validateBackupID(id string) error {
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidBackupID
	}
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := openReadOnly(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close backup database", "error", closeErr)
		}
	}()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func readBackupInfo(path string) (*BackupInfo, error) {
	// #nosec G304 - path comes from reading the backups directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func copyFileAtomic(src, dst string) error {
	// #nosec G304 - src is a backup file inside the managed directory
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			slog.Error("Failed to close source file", "error", closeErr)
		}
	}()

	tmp := dst + ".tmp"
	// #nosec G304 - tmp sits next to the configured database path
	destination, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := destination.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
