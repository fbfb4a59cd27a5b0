// Package safety is the sole gateway for reading and writing game config
// files on disk. It provides per-path read/write locking, all-or-nothing
// transactions with lazy original snapshots, atomic writes with read-back
// verification, versioned backups with retention, structural integrity
// checks, and an append-only audit trail.
//
// All on-disk mutation must go through a Manager; there is no raw
// file-handle escape hatch, so the atomicity and backup guarantees hold for
// every write the process makes.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"gdcore/internal/config"
	"gdcore/internal/logging"
)

// Manager is the file safety gateway. Construct with NewManager; the zero
// value is not usable.
type Manager struct {
	cfg   config.SafetyConfig
	audit *auditWriter
	log   *zap.Logger

	// locks maps canonical path -> *sync.RWMutex. Locks are created
	// lazily and never evicted, so the table is bounded by the distinct
	// paths touched in the process lifetime.
	locks sync.Map

	// active tracks the one active transaction per logical owner.
	activeMu sync.Mutex
	active   map[string]*Transaction
}

// NewManager creates a file safety manager with the given configuration.
func NewManager(cfg config.SafetyConfig) *Manager {
	return &Manager{
		cfg:    cfg,
		audit:  newAuditWriter(cfg.AuditLogPath),
		log:    logging.Get(logging.CategorySafety),
		active: make(map[string]*Transaction),
	}
}

// Close releases the audit trail file handle.
func (m *Manager) Close() {
	m.audit.close()
}

// canonical resolves a path to its canonical absolute form, which keys the
// lock table.
func (m *Manager) canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &IOError{Step: "resolve", Path: path, Err: err}
	}
	return filepath.Clean(abs), nil
}

// pathLock returns the lock for a canonical path, creating it on first use.
func (m *Manager) pathLock(canonicalPath string) *sync.RWMutex {
	if l, ok := m.locks.Load(canonicalPath); ok {
		return l.(*sync.RWMutex)
	}
	l, _ := m.locks.LoadOrStore(canonicalPath, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// BeginTransaction opens a transaction for the given logical owner. Exactly
// one transaction may be active per owner; a second call before commit or
// rollback fails with ErrTransactionActive.
func (m *Manager) BeginTransaction(owner, description string) (*Transaction, error) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	if existing, ok := m.active[owner]; ok {
		return nil, fmt.Errorf("%w: owner %q holds transaction %s",
			ErrTransactionActive, owner, existing.ID)
	}
	txn := newTransaction(owner, description)
	m.active[owner] = txn

	m.log.Info("transaction started",
		zap.String("tx", txn.ID),
		zap.String("owner", owner),
		zap.String("description", description))
	m.audit.append(AuditRecord{
		Timestamp: txn.StartTime,
		Operation: "begin_transaction",
		Actor:     owner,
		Success:   true,
		TxID:      txn.ID,
		Metadata:  map[string]any{"description": description},
	})
	return txn, nil
}

// detach removes the transaction from the active set and marks its final
// status.
func (m *Manager) detach(txn *Transaction, status TxStatus) {
	m.activeMu.Lock()
	if cur, ok := m.active[txn.Owner]; ok && cur == txn {
		delete(m.active, txn.Owner)
	}
	m.activeMu.Unlock()

	txn.mu.Lock()
	txn.status = status
	txn.mu.Unlock()
}

// SafeRead returns the file's content under the path's shared lock. When a
// transaction is supplied and this is the path's first touch, the current
// content is snapshotted into the transaction before returning.
func (m *Manager) SafeRead(path string, txn *Transaction) ([]byte, error) {
	cpath, err := m.canonical(path)
	if err != nil {
		return nil, err
	}

	// Read under the path lock, then release it before touching the
	// transaction. Holding the path lock across txn.mu would invert the
	// order stageWrite uses (txn.mu first) and deadlock concurrent users
	// of one handle when a writer is queued on the path.
	lock := m.pathLock(cpath)
	lock.RLock()
	data, err := os.ReadFile(cpath)
	lock.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cpath)
		}
		return nil, &IOError{Step: "read", Path: cpath, Err: err}
	}

	if txn != nil {
		txn.mu.Lock()
		if txn.status == TxActive {
			txn.snapshotOriginal(cpath, data, true)
		}
		txn.mu.Unlock()
	}
	return data, nil
}

// SafeWrite persists content to a file.
//
// With an active transaction the write is only staged: the pre-existing
// content is snapshotted on first touch, the new bytes land in the pending
// map, and no disk I/O occurs until CommitTransaction.
//
// Without a transaction the content is integrity-checked (failures never
// touch disk), the existing file is backed up, and the new content is
// written atomically. Returned warnings report non-fatal secondary
// failures (audit writes, backup pruning).
func (m *Manager) SafeWrite(path string, data []byte, txn *Transaction) ([]string, error) {
	cpath, err := m.canonical(path)
	if err != nil {
		return nil, err
	}

	if txn != nil {
		return nil, m.stageWrite(cpath, data, txn)
	}
	return m.directWrite(cpath, data)
}

// stageWrite records the write inside the transaction without touching
// disk.
func (m *Manager) stageWrite(cpath string, data []byte, txn *Transaction) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if txn.status != TxActive {
		return fmt.Errorf("%w: transaction %s is %s", ErrNoTransaction, txn.ID, txn.status)
	}

	if _, touched := txn.originals[cpath]; !touched {
		lock := m.pathLock(cpath)
		lock.RLock()
		current, err := os.ReadFile(cpath)
		lock.RUnlock()
		switch {
		case err == nil:
			txn.snapshotOriginal(cpath, current, true)
		case os.IsNotExist(err):
			txn.snapshotOriginal(cpath, nil, false)
		default:
			return &IOError{Step: "snapshot", Path: cpath, Err: err}
		}
	}

	txn.stage(cpath, data)
	m.log.Debug("write staged",
		zap.String("tx", txn.ID),
		zap.String("path", cpath),
		zap.Int("size", len(data)))
	return nil
}

// directWrite validates, backs up, and atomically writes outside any
// transaction. Integrity failures never mutate disk.
func (m *Manager) directWrite(cpath string, data []byte) ([]string, error) {
	var warnings []string
	addWarning := func(w string) {
		if w != "" {
			warnings = append(warnings, w)
		}
	}

	if res := ValidateXMLIntegrity(data, m.cfg.MaxFileSize); !res.Valid {
		err := &IntegrityError{Path: cpath, Result: res}
		addWarning(m.audit.append(AuditRecord{
			Timestamp: nowFunc(),
			Operation: "safe_write",
			Path:      cpath,
			Actor:     "direct",
			Success:   false,
			Error:     err.Error(),
		}))
		return warnings, err
	}

	lock := m.pathLock(cpath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(cpath); err == nil {
		rec, pruneWarnings, err := m.createBackup(cpath, "safe_write")
		if err != nil {
			addWarning(m.audit.append(AuditRecord{
				Timestamp: nowFunc(),
				Operation: "safe_write",
				Path:      cpath,
				Actor:     "direct",
				Success:   false,
				Error:     err.Error(),
			}))
			return warnings, err
		}
		for _, w := range pruneWarnings {
			addWarning(w)
		}
		m.log.Debug("backup created",
			zap.String("path", cpath),
			zap.String("backup", rec.BackupPath))
	}

	if err := atomicWrite(cpath, data); err != nil {
		addWarning(m.audit.append(AuditRecord{
			Timestamp: nowFunc(),
			Operation: "safe_write",
			Path:      cpath,
			Actor:     "direct",
			Success:   false,
			Error:     err.Error(),
		}))
		return warnings, err
	}

	addWarning(m.audit.append(AuditRecord{
		Timestamp: nowFunc(),
		Operation: "safe_write",
		Path:      cpath,
		Actor:     "direct",
		Success:   true,
		Metadata:  map[string]any{"size": len(data)},
	}))
	return warnings, nil
}
