package safety

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
)

// nowFunc is a seam for tests that need deterministic audit timestamps.
var nowFunc = time.Now

// CommitTransaction applies every staged write, all-or-nothing:
//
//  1. Every staged byte sequence is integrity-checked. Any failure aborts
//     the commit before a single disk write and triggers an automatic
//     rollback of anything the transaction snapshotted.
//  2. Each path with pre-existing content is backed up, then the staged
//     content is written atomically, in staging order.
//  3. A mid-sequence disk failure rolls back everything written so far and
//     re-raises the original error.
//
// Returned warnings report non-fatal secondary failures (audit writes,
// backup pruning, best-effort restore problems during a failure rollback).
func (m *Manager) CommitTransaction(txn *Transaction) ([]string, error) {
	if txn == nil {
		return nil, ErrNoTransaction
	}

	txn.mu.Lock()
	if txn.status != TxActive {
		status := txn.status
		txn.mu.Unlock()
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrNoTransaction, txn.ID, status)
	}
	paths := make([]string, len(txn.order))
	copy(paths, txn.order)
	staged := make(map[string][]byte, len(txn.staged))
	for p, d := range txn.staged {
		staged[p] = d
	}
	txn.mu.Unlock()

	var warnings []string
	addWarning := func(ws ...string) {
		for _, w := range ws {
			if w != "" {
				warnings = append(warnings, w)
			}
		}
	}

	// Phase 1: validate everything before touching disk.
	for _, p := range paths {
		if res := ValidateXMLIntegrity(staged[p], m.cfg.MaxFileSize); !res.Valid {
			err := &IntegrityError{Path: p, Result: res}
			m.log.Warn("commit aborted by integrity check",
				zap.String("tx", txn.ID),
				zap.String("path", p),
				zap.Strings("violations", res.Violations))
			addWarning(m.restoreOriginals(txn, nil)...)
			m.detach(txn, TxFailed)
			addWarning(m.audit.append(AuditRecord{
				Timestamp: nowFunc(),
				Operation: "commit_transaction",
				Path:      p,
				Actor:     txn.Owner,
				Success:   false,
				Error:     err.Error(),
				TxID:      txn.ID,
			}))
			return warnings, err
		}
	}

	// Phase 2: serialize against other writers on every staged path for
	// the duration of the batch. Locks are always taken in sorted path
	// order so two commits sharing paths cannot deadlock; writes still
	// happen in staging order.
	lockOrder := make([]string, len(paths))
	copy(lockOrder, paths)
	sort.Strings(lockOrder)
	for _, p := range lockOrder {
		m.pathLock(p).Lock()
	}
	defer func() {
		for _, p := range lockOrder {
			m.pathLock(p).Unlock()
		}
	}()

	// Phase 3: back up and write, in staging order.
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			rec, pruneWarnings, err := m.createBackup(p, "commit_transaction")
			if err != nil {
				addWarning(m.failCommit(txn, paths, p, err)...)
				return warnings, err
			}
			addWarning(pruneWarnings...)
			m.log.Debug("backup created",
				zap.String("tx", txn.ID),
				zap.String("path", p),
				zap.String("backup", rec.BackupPath))
		}
		if err := atomicWrite(p, staged[p]); err != nil {
			addWarning(m.failCommit(txn, paths, p, err)...)
			return warnings, err
		}
	}

	m.detach(txn, TxCommitted)
	m.log.Info("transaction committed",
		zap.String("tx", txn.ID),
		zap.Int("files", len(paths)),
		zap.Duration("elapsed", nowFunc().Sub(txn.StartTime)))
	addWarning(m.audit.append(AuditRecord{
		Timestamp: nowFunc(),
		Operation: "commit_transaction",
		Actor:     txn.Owner,
		Success:   true,
		TxID:      txn.ID,
		Metadata:  map[string]any{"files": len(paths)},
	}))
	return warnings, nil
}

// failCommit handles a mid-sequence failure: restore originals for
// everything the transaction touched, mark it failed, audit the failure.
// lockedPaths names the staged paths whose write locks the caller holds.
func (m *Manager) failCommit(txn *Transaction, lockedPaths []string, failedPath string, cause error) []string {
	m.log.Error("commit failed, rolling back",
		zap.String("tx", txn.ID),
		zap.String("path", failedPath),
		zap.Error(cause))

	warnings := m.restoreOriginals(txn, lockedPaths)
	m.detach(txn, TxFailed)
	if w := m.audit.append(AuditRecord{
		Timestamp: nowFunc(),
		Operation: "commit_transaction",
		Path:      failedPath,
		Actor:     txn.Owner,
		Success:   false,
		Error:     cause.Error(),
		TxID:      txn.ID,
	}); w != "" {
		warnings = append(warnings, w)
	}
	return warnings
}

// RollbackTransaction restores every snapshotted path to its original
// content and removes files the transaction created. Per-path restore
// failures are logged and reported as warnings; restoration of the
// remaining paths continues regardless.
func (m *Manager) RollbackTransaction(txn *Transaction) ([]string, error) {
	if txn == nil {
		return nil, ErrNoTransaction
	}
	txn.mu.Lock()
	if txn.status != TxActive {
		status := txn.status
		txn.mu.Unlock()
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrNoTransaction, txn.ID, status)
	}
	txn.mu.Unlock()

	warnings := m.restoreOriginals(txn, nil)
	m.detach(txn, TxRolledBack)

	m.log.Info("transaction rolled back",
		zap.String("tx", txn.ID),
		zap.Int("warnings", len(warnings)))
	if w := m.audit.append(AuditRecord{
		Timestamp: nowFunc(),
		Operation: "rollback_transaction",
		Actor:     txn.Owner,
		Success:   true,
		TxID:      txn.ID,
	}); w != "" {
		warnings = append(warnings, w)
	}
	return warnings, nil
}

// restoreOriginals puts every snapshotted path back to its pre-transaction
// content, best-effort. Created paths (snapshotted as nonexistent) are
// removed, so a rolled-back transaction leaves no trace on disk. lockedPaths
// names paths whose write locks the caller already holds.
func (m *Manager) restoreOriginals(txn *Transaction, lockedPaths []string) []string {
	locked := make(map[string]bool, len(lockedPaths))
	for _, p := range lockedPaths {
		locked[p] = true
	}

	txn.mu.Lock()
	originals := make(map[string][]byte, len(txn.originals))
	for p, d := range txn.originals {
		originals[p] = d
	}
	txn.mu.Unlock()

	var warnings []string
	for p, original := range originals {
		restore := func() error {
			if original == nil {
				// The path did not exist before the transaction.
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					return &IOError{Step: "remove created", Path: p, Err: err}
				}
				return nil
			}
			return atomicWrite(p, original)
		}

		var err error
		if locked[p] {
			err = restore()
		} else {
			lock := m.pathLock(p)
			lock.Lock()
			err = restore()
			lock.Unlock()
		}
		if err != nil {
			m.log.Error("restore failed during rollback",
				zap.String("tx", txn.ID),
				zap.String("path", p),
				zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("restore %s: %v", p, err))
		}
	}
	return warnings
}
