package validation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gdcore/internal/config"
	"gdcore/internal/document"
	"gdcore/internal/logging"
)

// Engine runs the rule registry over document snapshots.
type Engine struct {
	loader   *document.Loader
	registry []Rule
	workers  int
	timeout  time.Duration
	log      *zap.Logger

	// Snapshot of the last full load, consulted by the file-change fast
	// path for impact analysis.
	snapMu   sync.RWMutex
	lastDocs map[string]*document.Document
	lastIdx  *RefIndex

	// lastPaths maps absolute file path -> snapshot key, so the
	// file-change fast path lands on the same key LoadAll used even for
	// files in subdirectories.
	lastPaths map[string]string
}

// NewEngine builds an engine with the standard registry.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{
		loader: document.NewLoader(cfg.Document.LoadWorkers, cfg.Document.FileTimeout),
		registry: BuildRegistry(RuleParams{
			ExpTolerance:     cfg.Validation.ExpTolerance,
			BalanceHighRatio: cfg.Validation.BalanceHighRatio,
			BalanceLowRatio:  cfg.Validation.BalanceLowRatio,
		}),
		workers: cfg.Validation.RuleWorkers,
		timeout: cfg.Validation.RuleTimeout,
		log:     logging.Get(logging.CategoryValidation),
	}
}

// Registry exposes the rule descriptors, for inspection and reporting.
func (e *Engine) Registry() []Rule {
	out := make([]Rule, len(e.registry))
	copy(out, e.registry)
	return out
}

// ValidateAll loads every document under the roots and runs the full
// registry against the snapshot.
func (e *Engine) ValidateAll(ctx context.Context, roots []string) (*Report, error) {
	docs, err := e.loader.LoadAll(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	report := e.run(ctx, docs, e.registry)

	e.snapMu.Lock()
	e.lastDocs = docs
	e.lastIdx = BuildRefIndex(docs)
	e.lastPaths = make(map[string]string, len(docs))
	for key, doc := range docs {
		e.lastPaths[doc.Path] = key
	}
	e.snapMu.Unlock()

	return report, nil
}

// ValidateDocuments runs the full registry against an already-loaded
// snapshot. The snapshot is treated as immutable for the duration.
func (e *Engine) ValidateDocuments(ctx context.Context, docs map[string]*document.Document) *Report {
	return e.run(ctx, docs, e.registry)
}

// ValidateFileChange is the incremental fast path for interactive editing:
// it parses only the changed content, finds the loaded documents coupled to
// it through the reference index, and re-runs only the incremental rules
// against that subset. A prior ValidateAll must have populated the
// snapshot; otherwise the changed document is validated alone.
func (e *Engine) ValidateFileChange(ctx context.Context, path string, newContent []byte) (*Report, error) {
	changed, err := e.loader.ParseBytes(path, newContent)
	if err != nil {
		return nil, fmt.Errorf("parse changed file: %w", err)
	}

	// ParseBytes keys by base name; files below a root were loaded under a
	// root-relative key. Resolve through the snapshot so the changed
	// document replaces its loaded counterpart instead of sitting next to
	// it under a different key.
	if abs, absErr := filepath.Abs(path); absErr == nil {
		e.snapMu.RLock()
		if key, ok := e.lastPaths[abs]; ok {
			changed.Key = key
		}
		e.snapMu.RUnlock()
	}

	subset := e.impactSubset(changed)

	var incremental []Rule
	for _, r := range e.registry {
		if r.Incremental {
			incremental = append(incremental, r)
		}
	}
	return e.run(ctx, subset, incremental), nil
}

// impactSubset assembles the changed document plus every loaded document
// coupled to it: files referencing the changed document's entities, and
// files defining entities the changed document references.
func (e *Engine) impactSubset(changed *document.Document) map[string]*document.Document {
	subset := map[string]*document.Document{changed.Key: changed}

	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	if e.lastDocs == nil {
		return subset
	}

	include := func(key string) {
		if doc, ok := e.lastDocs[key]; ok && key != changed.Key {
			subset[key] = doc
		}
	}

	couple := func(el *document.Element) {
		// Who points at entities defined here?
		if idAttr, isEntity := entityKinds[el.Name]; isEntity {
			if id := el.Attr(idAttr); id != "" {
				for _, f := range e.lastIdx.Referrers(el.Name, id) {
					include(f)
				}
			}
		}
		// Who defines entities referenced from here?
		for attr, kind := range refAttrKinds {
			if el.Name == refTargetName(attr) {
				continue
			}
			if target := el.Attr(attr); target != "" {
				for _, ent := range e.lastIdx.Entities(kind)[target] {
					include(ent.File)
				}
			}
		}
	}

	changed.Root.Walk(couple)
	// Ids renamed or removed by the edit only exist in the previous
	// version, so its couplings count too.
	if old, ok := e.lastDocs[changed.Key]; ok && old.Root != nil {
		old.Root.Walk(couple)
	}
	return subset
}

// run fans the rules out over a bounded worker pool. A rule that panics or
// exceeds the per-rule timeout contributes zero results and is recorded in
// the report's RulesSkipped; the batch always completes.
func (e *Engine) run(ctx context.Context, docs map[string]*document.Document, rules []Rule) *Report {
	start := time.Now()
	idx := BuildRefIndex(docs)

	var mu sync.Mutex // guards results and skipped
	var results []Result
	var skipped []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			ruleResults, err := e.runOne(gctx, rule, docs, idx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Warn("rule skipped",
					zap.String("rule", rule.Name),
					zap.Error(err))
				skipped = append(skipped, rule.Name)
				return nil
			}
			results = append(results, ruleResults...)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(results, skipped, len(docs), time.Since(start))
	e.log.Info("validation run complete",
		zap.Int("documents", len(docs)),
		zap.Int("rules", len(rules)),
		zap.Int("errors", report.Errors),
		zap.Int("warnings", report.Warnings),
		zap.Int("infos", report.Infos),
		zap.Strings("skipped", skipped),
		zap.Duration("elapsed", report.Elapsed))
	return report
}

// runOne executes a single rule with panic containment and a timeout.
func (e *Engine) runOne(ctx context.Context, rule Rule, docs map[string]*document.Document, idx *RefIndex) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		results []Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("rule panicked: %v", r)}
			}
		}()
		done <- outcome{results: rule.Fn(docs, idx)}
	}()

	select {
	case o := <-done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("rule timed out after %s: %w", e.timeout, ctx.Err())
	}
}
