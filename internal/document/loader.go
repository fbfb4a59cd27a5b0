package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gdcore/internal/logging"
)

// Loader discovers and parses XML files under one or more roots.
type Loader struct {
	workers     int
	fileTimeout time.Duration
}

// NewLoader creates a loader. workers bounds parallel parsing; fileTimeout
// caps the time spent on a single file.
func NewLoader(workers int, fileTimeout time.Duration) *Loader {
	if workers <= 0 {
		workers = 8
	}
	if fileTimeout <= 0 {
		fileTimeout = 30 * time.Second
	}
	return &Loader{workers: workers, fileTimeout: fileTimeout}
}

// LoadAll recursively discovers *.xml files under the roots and parses them
// on a bounded worker pool. A single file's failure is logged and the file
// is dropped from the set; only an unreadable root aborts the load. The
// returned map is not written to after LoadAll returns.
func (l *Loader) LoadAll(ctx context.Context, roots []string) (map[string]*Document, error) {
	log := logging.Get(logging.CategoryDocument)

	type target struct {
		root string
		path string
	}
	var targets []target
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".xml") {
				targets = append(targets, target{root: absRoot, path: path})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk root %s: %w", root, err)
		}
	}

	docs := make(map[string]*Document, len(targets))
	var mu sync.Mutex // protects docs

	var wg sync.WaitGroup
	sem := make(chan struct{}, l.workers)
	for _, tgt := range targets {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			doc, err := l.loadOne(ctx, tgt.root, tgt.path)
			if err != nil {
				log.Warn("skipping file",
					zap.String("path", tgt.path),
					zap.Error(err))
				return
			}
			mu.Lock()
			docs[doc.Key] = doc
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	log.Info("document set loaded",
		zap.Int("discovered", len(targets)),
		zap.Int("loaded", len(docs)))
	return docs, nil
}

// LoadFile parses a single file into a Document keyed by its base name.
// Used by the incremental validation fast path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return l.loadOne(ctx, filepath.Dir(abs), abs)
}

// ParseBytes builds a Document from in-memory content, as if it lived at
// path. The editor hands unsaved buffers through here.
func (l *Loader) ParseBytes(path string, data []byte) (*Document, error) {
	root, enc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &Document{
		Key:      filepath.Base(path),
		Path:     path,
		Root:     root,
		Size:     int64(len(data)),
		Encoding: enc,
	}, nil
}

func (l *Loader) loadOne(ctx context.Context, root, path string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, l.fileTimeout)
	defer cancel()

	type result struct {
		doc *Document
		err error
	}
	done := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(path)
		if err != nil {
			done <- result{err: fmt.Errorf("read: %w", err)}
			return
		}
		rootEl, enc, err := Parse(data)
		if err != nil {
			done <- result{err: err}
			return
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		done <- result{doc: &Document{
			Key:      filepath.ToSlash(rel),
			Path:     path,
			Root:     rootEl,
			Size:     int64(len(data)),
			Encoding: enc,
		}}
	}()

	select {
	case r := <-done:
		return r.doc, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("parse %s: %w", path, ctx.Err())
	}
}
