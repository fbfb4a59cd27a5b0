package safety

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransactionActive is returned by BeginTransaction when the caller
// already holds an active transaction.
var ErrTransactionActive = errors.New("transaction already active for this owner")

// ErrNoTransaction is returned when a commit or rollback is attempted on a
// transaction that is not active.
var ErrNoTransaction = errors.New("no active transaction")

// ErrNotFound is returned by SafeRead for a missing file.
var ErrNotFound = errors.New("file not found")

// IntegrityError carries the full integrity result for content that failed
// validation. It never accompanies a partial disk mutation.
type IntegrityError struct {
	Path   string
	Result IntegrityResult
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s",
		e.Path, strings.Join(e.Result.Violations, "; "))
}

// IOError wraps a filesystem-level failure during read, backup, or atomic
// write, naming the step that failed.
type IOError struct {
	Step string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
