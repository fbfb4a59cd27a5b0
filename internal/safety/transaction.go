package safety

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxActive     TxStatus = "active"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
	TxFailed     TxStatus = "failed"
)

// OpLogEntry records one staged operation inside a transaction.
type OpLogEntry struct {
	Time      time.Time
	Operation string
	Path      string
	Size      int
}

// Transaction is an explicit handle for a batch of file mutations that
// commit all-or-nothing. It is created by Manager.BeginTransaction and is
// threaded explicitly through SafeRead/SafeWrite/Commit/Rollback — there is
// no implicit per-thread active transaction.
type Transaction struct {
	// ID uniquely identifies the transaction in audit records.
	ID string

	// Owner is the logical caller that opened the transaction.
	Owner string

	// Description is free text for the audit trail.
	Description string

	// StartTime is when BeginTransaction ran.
	StartTime time.Time

	mu sync.Mutex

	// originals holds each touched path's pre-transaction content,
	// captured at most once per path. A nil value records that the path
	// did not exist when first touched.
	originals map[string][]byte

	// staged holds the pending new content per path. No disk I/O happens
	// until commit.
	staged map[string][]byte

	// order is the sequence paths were first staged in; commit applies
	// writes in this order.
	order []string

	// log is the ordered operation log.
	log []OpLogEntry

	status TxStatus
}

func newTransaction(owner, description string) *Transaction {
	return &Transaction{
		ID:          uuid.NewString(),
		Owner:       owner,
		Description: description,
		StartTime:   time.Now(),
		originals:   make(map[string][]byte),
		staged:      make(map[string][]byte),
		status:      TxActive,
	}
}

// Status returns the transaction's current lifecycle state.
func (t *Transaction) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Log returns a copy of the ordered operation log.
func (t *Transaction) Log() []OpLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]OpLogEntry, len(t.log))
	copy(out, t.log)
	return out
}

// StagedPaths returns the paths with pending writes, in staging order.
func (t *Transaction) StagedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// snapshotOriginal captures current as the path's original content if this
// is the path's first touch. existed=false records a missing file.
func (t *Transaction) snapshotOriginal(path string, current []byte, existed bool) {
	if _, done := t.originals[path]; done {
		return
	}
	if !existed {
		t.originals[path] = nil
		return
	}
	cp := make([]byte, len(current))
	copy(cp, current)
	t.originals[path] = cp
}

// stage records pending content for the path and appends to the op log.
func (t *Transaction) stage(path string, data []byte) {
	if _, seen := t.staged[path]; !seen {
		t.order = append(t.order, path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	t.staged[path] = cp
	t.log = append(t.log, OpLogEntry{
		Time:      time.Now(),
		Operation: "stage_write",
		Path:      path,
		Size:      len(data),
	})
}
