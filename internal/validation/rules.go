package validation

import (
	"fmt"
	"math"
	"sort"

	"gdcore/internal/document"
)

// RuleFn is a pure validation function over a read-only document snapshot
// and its precomputed reference index. It must not mutate either input and
// must not depend on any other rule's output.
type RuleFn func(docs map[string]*document.Document, idx *RefIndex) []Result

// Rule is a tagged descriptor in the registry. Rules are plain data built
// at startup; adding or disabling one is a registry change, not a type
// hierarchy change.
type Rule struct {
	Name        string
	Description string

	// Incremental marks rules that are meaningful on the partial
	// snapshot used by the file-change fast path. Global statistics
	// (orphans, balance) only make sense over the full set.
	Incremental bool

	Fn RuleFn
}

// RuleParams carries the tunable thresholds rules close over when the
// registry is built. Values come from config; rules themselves stay free of
// engine state.
type RuleParams struct {
	ExpTolerance     float64
	BalanceHighRatio float64
	BalanceLowRatio  float64
}

// BuildRegistry returns the ordered rule registry.
func BuildRegistry(p RuleParams) []Rule {
	return []Rule{
		{
			Name:        "dangling-item-reference",
			Description: "drop tables and other documents must reference existing items",
			Incremental: true,
			Fn:          danglingRefRule("item", "dangling reference"),
		},
		{
			Name:        "dangling-skill-reference",
			Description: "NPCs and learn configs must reference existing skills",
			Incremental: true,
			Fn:          danglingRefRule("skill", "dangling reference"),
		},
		{
			Name:        "npc-exp-table",
			Description: "NPC experience must match the experience table for its level",
			Incremental: true,
			Fn:          npcExpTableRule(p.ExpTolerance),
		},
		{
			Name:        "skill-learn-config",
			Description: "every skill must have a learn config",
			Incremental: true,
			Fn:          skillLearnConfigRule,
		},
		{
			Name:        "orphaned-items",
			Description: "items never referenced anywhere are reported for review",
			Fn:          orphanRule("item"),
		},
		{
			Name:        "stat-balance",
			Description: "item stats should stay near the mean for their level",
			Fn:          statBalanceRule(p.BalanceHighRatio, p.BalanceLowRatio),
		},
	}
}

// danglingRefRule flags every reference to the given entity kind whose
// target id is not defined anywhere in the snapshot.
func danglingRefRule(kind, resultType string) RuleFn {
	return func(docs map[string]*document.Document, idx *RefIndex) []Result {
		known := idx.Entities(kind)
		var out []Result
		for _, ref := range idx.Refs(kind) {
			if _, ok := known[ref.TargetID]; ok {
				continue
			}
			out = append(out, Result{
				Severity:    SeverityError,
				Type:        resultType,
				Message:     fmt.Sprintf("%s=%q does not match any %s", ref.Attr, ref.TargetID, kind),
				File:        ref.File,
				ElementPath: ref.ElementPath,
				Details: map[string]any{
					"attribute": ref.Attr,
					"target_id": ref.TargetID,
					"kind":      kind,
				},
				Suggestions: []string{
					fmt.Sprintf("remove the reference or define %s id=%q", kind, ref.TargetID),
				},
			})
		}
		return out
	}
}

// npcExpTableRule compares each NPC's exp attribute against the experience
// table entry for its level, within a relative tolerance.
func npcExpTableRule(tolerance float64) RuleFn {
	return func(docs map[string]*document.Document, idx *RefIndex) []Result {
		// Expected exp per level, from exp_table documents:
		// <exp_table><level value="5" exp="500"/></exp_table>
		expected := make(map[int]float64)
		for _, de := range document.FindAllInDocs(docs, "exp_table") {
			for _, lvl := range de.El.FindAll("level") {
				v, okLevel := lvl.IntAttr("value")
				exp, okExp := lvl.FloatAttr("exp")
				if okLevel && okExp {
					expected[v] = exp
				}
			}
		}
		if len(expected) == 0 {
			return nil
		}

		var out []Result
		for _, de := range document.FindAllInDocs(docs, "npc") {
			level, okLevel := de.El.IntAttr("level")
			exp, okExp := de.El.FloatAttr("exp")
			if !okLevel || !okExp {
				continue
			}
			want, ok := expected[level]
			if !ok || want == 0 {
				continue
			}
			if math.Abs(exp-want)/want <= tolerance {
				continue
			}
			out = append(out, Result{
				Severity:    SeverityWarning,
				Type:        "exp-table-mismatch",
				Message: fmt.Sprintf("npc id=%q level %d has exp=%g, expected %g (±%.0f%%)",
					de.El.Attr("id"), level, exp, want, tolerance*100),
				File:        de.Doc.Key,
				ElementPath: de.El.Path,
				Details: map[string]any{
					"npc_id":   de.El.Attr("id"),
					"level":    level,
					"actual":   exp,
					"expected": want,
				},
				Suggestions: []string{
					fmt.Sprintf("set exp=%g to match the experience table", want),
				},
			})
		}
		return out
	}
}

// skillLearnConfigRule flags skills that no learn config references.
func skillLearnConfigRule(docs map[string]*document.Document, idx *RefIndex) []Result {
	learned := make(map[string]bool)
	for _, de := range document.FindAllInDocs(docs, "learn") {
		if id := de.El.Attr("skill_id"); id != "" {
			learned[id] = true
		}
	}

	var out []Result
	for id, occurrences := range idx.Entities("skill") {
		if learned[id] {
			continue
		}
		ent := occurrences[0]
		out = append(out, Result{
			Severity:    SeverityError,
			Type:        "missing learn config",
			Message:     fmt.Sprintf("skill id=%q has no learn config", id),
			File:        ent.File,
			ElementPath: ent.ElementPath,
			Details:     map[string]any{"skill_id": id},
			Suggestions: []string{
				fmt.Sprintf("add a learn entry with skill_id=%q", id),
			},
		})
	}
	sortResults(out)
	return out
}

// orphanRule reports entities of the given kind that nothing references.
// Orphans are informational: unused is not necessarily wrong.
func orphanRule(kind string) RuleFn {
	return func(docs map[string]*document.Document, idx *RefIndex) []Result {
		var out []Result
		for id, occurrences := range idx.Entities(kind) {
			if idx.IsReferenced(kind, id) {
				continue
			}
			ent := occurrences[0]
			out = append(out, Result{
				Severity:    SeverityInfo,
				Type:        "orphaned entity",
				Message:     fmt.Sprintf("%s id=%q is never referenced", kind, id),
				File:        ent.File,
				ElementPath: ent.ElementPath,
				Details:     map[string]any{"kind": kind, "id": id},
			})
		}
		sortResults(out)
		return out
	}
}

// statBalanceRule groups items by level and flags numeric attributes that
// deviate from the group mean beyond the multiplicative thresholds.
var balanceAttrs = []string{"attack", "defense"}

func statBalanceRule(highRatio, lowRatio float64) RuleFn {
	return func(docs map[string]*document.Document, idx *RefIndex) []Result {
		type member struct {
			ent   Entity
			value float64
		}
		// groups[attr][level]
		groups := make(map[string]map[int][]member)

		for _, occurrences := range idx.Entities("item") {
			for _, ent := range occurrences {
				level, ok := ent.El.IntAttr("level")
				if !ok {
					continue
				}
				for _, attr := range balanceAttrs {
					v, ok := ent.El.FloatAttr(attr)
					if !ok {
						continue
					}
					byLevel := groups[attr]
					if byLevel == nil {
						byLevel = make(map[int][]member)
						groups[attr] = byLevel
					}
					byLevel[level] = append(byLevel[level], member{ent: ent, value: v})
				}
			}
		}

		var out []Result
		for attr, byLevel := range groups {
			for level, members := range byLevel {
				if len(members) < 2 {
					continue
				}
				var sum float64
				for _, m := range members {
					sum += m.value
				}
				mean := sum / float64(len(members))
				if mean == 0 {
					continue
				}
				low, high := mean*lowRatio, mean*highRatio
				for _, m := range members {
					if m.value >= low && m.value <= high {
						continue
					}
					out = append(out, Result{
						Severity: SeverityWarning,
						Type:     "stat balance",
						Message: fmt.Sprintf("item id=%q %s=%g deviates from the level %d mean %.1f",
							m.ent.ID, attr, m.value, level, mean),
						File:        m.ent.File,
						ElementPath: m.ent.ElementPath,
						Details: map[string]any{
							"attribute": attr,
							"level":     level,
							"value":     m.value,
							"mean":      mean,
						},
						Suggestions: []string{
							fmt.Sprintf("keep %s between %.1f and %.1f for level %d", attr, low, high, level),
						},
					})
				}
			}
		}
		sortResults(out)
		return out
	}
}

// sortResults orders findings by file then element path so rules that
// iterate maps still emit deterministic output.
func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].File != rs[j].File {
			return rs[i].File < rs[j].File
		}
		return rs[i].ElementPath < rs[j].ElementPath
	})
}
