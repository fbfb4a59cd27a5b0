// Package validation cross-checks the loaded document set against a fixed
// registry of independent consistency rules: reference existence, expected
// values, orphan detection, and statistical balance. Rules run in parallel
// over a read-only snapshot; one failing rule never poisons the rest.
package validation

import "time"

// Severity classifies a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Result is a single finding produced by a rule.
type Result struct {
	Severity    Severity
	Type        string
	Message     string
	File        string
	ElementPath string
	Details     map[string]any
	Suggestions []string
}

// Report aggregates the findings of one validation run.
type Report struct {
	Errors   int
	Warnings int
	Infos    int

	// Results holds every finding. Ordering across rules is undefined;
	// use ByType or ByFile for stable grouping.
	Results []Result

	// ByType groups results by rule type string.
	ByType map[string][]Result

	// ByFile groups results by source file.
	ByFile map[string][]Result

	// RulesSkipped names rules that failed or timed out and therefore
	// contributed zero results.
	RulesSkipped []string

	// Documents is the number of documents in the validated snapshot.
	Documents int

	Elapsed   time.Duration
	Timestamp time.Time
}

// newReport builds a report from merged rule output, computing counts and
// groupings.
func newReport(results []Result, skipped []string, documents int, elapsed time.Duration) *Report {
	rep := &Report{
		Results:      results,
		ByType:       make(map[string][]Result),
		ByFile:       make(map[string][]Result),
		RulesSkipped: skipped,
		Documents:    documents,
		Elapsed:      elapsed,
		Timestamp:    time.Now(),
	}
	for _, r := range results {
		switch r.Severity {
		case SeverityError:
			rep.Errors++
		case SeverityWarning:
			rep.Warnings++
		case SeverityInfo:
			rep.Infos++
		}
		rep.ByType[r.Type] = append(rep.ByType[r.Type], r)
		if r.File != "" {
			rep.ByFile[r.File] = append(rep.ByFile[r.File], r)
		}
	}
	return rep
}
