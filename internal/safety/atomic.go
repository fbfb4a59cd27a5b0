package safety

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// atomicWrite persists data to path so the update is either fully visible
// or not visible at all:
//
//  1. Write data to a sibling temp file.
//  2. Read the temp file back and compare byte-for-byte, catching
//     truncated or partial writes before they can replace the target.
//  3. Rename the temp file over the destination.
//
// Any failure removes the temp file and leaves the destination untouched.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Step: "create temp for", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Step: "write temp for", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &IOError{Step: "sync temp for", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &IOError{Step: "close temp for", Path: path, Err: err}
	}

	written, err := os.ReadFile(tmpPath)
	if err != nil {
		cleanup()
		return &IOError{Step: "verify temp for", Path: path, Err: err}
	}
	if !bytes.Equal(written, data) {
		cleanup()
		return &IOError{Step: "verify temp for", Path: path,
			Err: fmt.Errorf("read-back mismatch: wrote %d bytes, read %d", len(data), len(written))}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return &IOError{Step: "rename temp over", Path: path, Err: err}
	}
	return nil
}
