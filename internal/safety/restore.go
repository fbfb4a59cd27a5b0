package safety

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// RestoreFromBackup replaces the current file with the backup taken at the
// given timestamp. The backup content is integrity-checked first, and the
// current file is itself backed up before being replaced, so a restore is
// always undoable. Warnings report non-fatal secondary failures.
func (m *Manager) RestoreFromBackup(path string, timestamp time.Time) ([]string, error) {
	cpath, err := m.canonical(path)
	if err != nil {
		return nil, err
	}

	history, err := m.BackupHistory(cpath)
	if err != nil {
		return nil, err
	}
	var match *BackupRecord
	want := timestamp.Format(BackupTimeLayout)
	for i := range history {
		if history[i].Timestamp.Format(BackupTimeLayout) == want {
			match = &history[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no backup of %s at %s", ErrNotFound, cpath, want)
	}

	data, err := os.ReadFile(match.BackupPath)
	if err != nil {
		return nil, &IOError{Step: "read backup", Path: match.BackupPath, Err: err}
	}
	if res := ValidateXMLIntegrity(data, m.cfg.MaxFileSize); !res.Valid {
		return nil, &IntegrityError{Path: match.BackupPath, Result: res}
	}

	var warnings []string
	addWarning := func(ws ...string) {
		for _, w := range ws {
			if w != "" {
				warnings = append(warnings, w)
			}
		}
	}

	lock := m.pathLock(cpath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(cpath); err == nil {
		rec, pruneWarnings, err := m.createBackup(cpath, "restore_from_backup")
		if err != nil {
			return warnings, err
		}
		addWarning(pruneWarnings...)
		m.log.Debug("pre-restore backup created",
			zap.String("path", cpath),
			zap.String("backup", rec.BackupPath))
	}

	if err := atomicWrite(cpath, data); err != nil {
		addWarning(m.audit.append(AuditRecord{
			Timestamp: nowFunc(),
			Operation: "restore_from_backup",
			Path:      cpath,
			Actor:     "direct",
			Success:   false,
			Error:     err.Error(),
		}))
		return warnings, err
	}

	m.log.Info("file restored from backup",
		zap.String("path", cpath),
		zap.String("backup", match.BackupPath))
	addWarning(m.audit.append(AuditRecord{
		Timestamp: nowFunc(),
		Operation: "restore_from_backup",
		Path:      cpath,
		Actor:     "direct",
		Success:   true,
		Metadata:  map[string]any{"backup": match.BackupPath},
	}))
	return warnings, nil
}
