package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"gdcore/internal/logging"
)

// AuditRecord is one append-only entry in the audit trail. Records are
// diagnostic, not authoritative: failures writing them never block or mask
// the primary operation.
type AuditRecord struct {
	Timestamp time.Time      `json:"ts"`
	Operation string         `json:"op"`
	Path      string         `json:"path,omitempty"`
	Actor     string         `json:"actor"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	TxID      string         `json:"tx,omitempty"`
	Metadata  map[string]any `json:"meta,omitempty"`
}

// auditWriter appends one JSON line per record to a single file. The file
// handle is opened lazily and kept for the writer's lifetime.
type auditWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func newAuditWriter(path string) *auditWriter {
	return &auditWriter{path: path}
}

// append writes one record. On failure it logs and returns a warning
// string; it never returns an error.
func (w *auditWriter) append(rec AuditRecord) (warning string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if dir := filepath.Dir(w.path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return w.swallow("create audit dir", err)
			}
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return w.swallow("open audit log", err)
		}
		w.file = f
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return w.swallow("encode audit record", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return w.swallow("write audit record", err)
	}
	return ""
}

func (w *auditWriter) swallow(step string, err error) string {
	logging.Get(logging.CategoryAudit).Warn("audit trail degraded",
		zap.String("step", step), zap.Error(err))
	return fmt.Sprintf("%s: %v", step, err)
}

func (w *auditWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
}
