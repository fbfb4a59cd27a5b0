package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gdcore/internal/logging"
)

// BackupTimeLayout gives second-resolution backup file names.
const BackupTimeLayout = "20060102_150405"

// BackupRecord describes one versioned backup of a file.
type BackupRecord struct {
	// ID is the backup's file name, stable across listings of the same
	// backup.
	ID           string
	Timestamp    time.Time
	OriginalPath string
	BackupPath   string
	Checksum     string
	Size         int64
	Operation    string
}

// backupDirFor returns the per-file backup subdirectory:
// <backupRoot>/<name>_backups.
func (m *Manager) backupDirFor(path string) string {
	return filepath.Join(m.cfg.BackupDir, filepath.Base(path)+"_backups")
}

// createBackup copies the current content of path into its backup
// directory and prunes old backups beyond the retention limit. The caller
// must already hold the path's write lock. Prune failures are returned as
// warnings, not errors.
func (m *Manager) createBackup(path, operation string) (*BackupRecord, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &IOError{Step: "read for backup", Path: path, Err: err}
	}

	dir := m.backupDirFor(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, &IOError{Step: "create backup dir for", Path: path, Err: err}
	}

	now := time.Now()
	base := filepath.Base(path)
	name := fmt.Sprintf("%s.%s.bak", base, now.Format(BackupTimeLayout))
	backupPath := filepath.Join(dir, name)
	// Second-resolution names can collide under rapid writes; suffix a
	// counter rather than overwrite an earlier backup.
	for i := 1; ; i++ {
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			break
		}
		backupPath = filepath.Join(dir, fmt.Sprintf("%s.%s_%d.bak", base, now.Format(BackupTimeLayout), i))
	}

	if err := atomicWrite(backupPath, data); err != nil {
		return nil, nil, err
	}

	sum := sha256.Sum256(data)
	rec := &BackupRecord{
		ID:           filepath.Base(backupPath),
		Timestamp:    now,
		OriginalPath: path,
		BackupPath:   backupPath,
		Checksum:     hex.EncodeToString(sum[:]),
		Size:         int64(len(data)),
		Operation:    operation,
	}

	warnings := m.pruneBackups(dir)
	return rec, warnings, nil
}

// pruneBackups keeps the newest retention-limit backups in dir, deleting
// the rest by modification time. Failures are logged and surfaced as
// warnings only.
func (m *Manager) pruneBackups(dir string) []string {
	log := logging.Get(logging.CategoryBackup)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("backup prune skipped", zap.String("dir", dir), zap.Error(err))
		return []string{fmt.Sprintf("prune %s: %v", dir, err)}
	}

	type bak struct {
		path string
		mod  time.Time
	}
	var baks []bak
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bak") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		baks = append(baks, bak{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	if len(baks) <= m.cfg.BackupRetention {
		return nil
	}

	sort.Slice(baks, func(i, j int) bool { return baks[i].mod.After(baks[j].mod) })

	var warnings []string
	for _, old := range baks[m.cfg.BackupRetention:] {
		if err := os.Remove(old.path); err != nil {
			log.Warn("backup prune failed", zap.String("path", old.path), zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("prune %s: %v", old.path, err))
		}
	}
	return warnings
}

// BackupHistory lists the backups recorded on disk for path, newest first.
// Checksums are recomputed from the backup content so the listing reflects
// what would actually be restored.
func (m *Manager) BackupHistory(path string) ([]BackupRecord, error) {
	path, err := m.canonical(path)
	if err != nil {
		return nil, err
	}
	dir := m.backupDirFor(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Step: "list backups for", Path: path, Err: err}
	}

	var records []BackupRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bak") {
			continue
		}
		bp := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(bp)
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)
		records = append(records, BackupRecord{
			ID:           e.Name(),
			Timestamp:    parseBackupTime(e.Name(), info.ModTime()),
			OriginalPath: path,
			BackupPath:   bp,
			Checksum:     hex.EncodeToString(sum[:]),
			Size:         int64(len(data)),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// parseBackupTime extracts the timestamp token from a backup file name,
// falling back to the file's mtime when the name doesn't parse.
func parseBackupTime(name string, fallback time.Time) time.Time {
	trimmed := strings.TrimSuffix(name, ".bak")
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 {
		return fallback
	}
	token := trimmed[idx+1:]
	// Drop a collision counter suffix.
	if u := strings.LastIndex(token, "_"); u > len(BackupTimeLayout)-1 {
		token = token[:u]
	}
	ts, err := time.ParseInLocation(BackupTimeLayout, token, time.Local)
	if err != nil {
		return fallback
	}
	return ts
}
