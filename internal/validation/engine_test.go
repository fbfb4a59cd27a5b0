package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gdcore/internal/config"
	"gdcore/internal/document"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const xmlDecl = `<?xml version="1.0" encoding="UTF-8"?>`

func testEngine() *Engine {
	cfg := *config.DefaultConfig()
	cfg.Validation.RuleTimeout = 5 * time.Second
	return NewEngine(cfg)
}

// makeDocs parses inline XML into a snapshot keyed by file name.
func makeDocs(t *testing.T, files map[string]string) map[string]*document.Document {
	t.Helper()
	loader := document.NewLoader(2, time.Second)
	docs := make(map[string]*document.Document, len(files))
	for name, content := range files {
		doc, err := loader.ParseBytes(name, []byte(xmlDecl+content))
		require.NoError(t, err)
		docs[doc.Key] = doc
	}
	return docs
}

func TestDanglingItemReference(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"item.xml": `<items><item id="1" attack="10"/></items>`,
		"drops.xml": `<drop_tables><drop_table id="dt1">` +
			`<drop item_id="2" chance="0.5"/>` +
			`</drop_table></drop_tables>`,
	})

	report := testEngine().ValidateDocuments(context.Background(), docs)

	dangling := report.ByType["dangling reference"]
	require.Len(t, dangling, 1)
	assert.Equal(t, SeverityError, dangling[0].Severity)
	assert.Equal(t, "drops.xml", dangling[0].File)
	assert.Equal(t, "2", dangling[0].Details["target_id"])
	assert.Equal(t, 1, report.Errors)
}

func TestNpcExpTableMismatch(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"exp.xml":  `<exp_table id="base"><level value="5" exp="500"/></exp_table>`,
		"npcs.xml": `<npcs><npc id="goblin" level="5" exp="1000"/></npcs>`,
	})

	report := testEngine().ValidateDocuments(context.Background(), docs)

	mismatches := report.ByType["exp-table-mismatch"]
	require.Len(t, mismatches, 1)
	assert.Equal(t, SeverityWarning, mismatches[0].Severity)
	assert.Equal(t, "npcs.xml", mismatches[0].File)
	assert.Equal(t, 500.0, mismatches[0].Details["expected"])
	assert.Equal(t, 1000.0, mismatches[0].Details["actual"])
}

func TestNpcExpWithinTolerance(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"exp.xml":  `<exp_table id="base"><level value="5" exp="500"/></exp_table>`,
		"npcs.xml": `<npcs><npc id="goblin" level="5" exp="530"/></npcs>`,
	})
	report := testEngine().ValidateDocuments(context.Background(), docs)
	assert.Empty(t, report.ByType["exp-table-mismatch"])
}

func TestOrphanedItems(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"item.xml": `<items><item id="used"/><item id="unused"/></items>`,
		"drops.xml": `<drop_tables><drop_table id="dt1">` +
			`<drop item_id="used"/>` +
			`</drop_table></drop_tables>`,
	})

	report := testEngine().ValidateDocuments(context.Background(), docs)

	orphans := report.ByType["orphaned entity"]
	require.Len(t, orphans, 1)
	assert.Equal(t, SeverityInfo, orphans[0].Severity)
	assert.Equal(t, "unused", orphans[0].Details["id"])
}

func TestSkillLearnConfig(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"skills.xml": `<skills><skill id="fireball"/><skill id="icebolt"/></skills>`,
		"learn.xml":  `<learns><learn id="l1" skill_id="fireball" level="3"/></learns>`,
	})

	report := testEngine().ValidateDocuments(context.Background(), docs)

	missing := report.ByType["missing learn config"]
	require.Len(t, missing, 1)
	assert.Contains(t, missing[0].Message, "icebolt")
}

func TestStatBalance(t *testing.T) {
	docs := makeDocs(t, map[string]string{
		"item.xml": `<items>` +
			`<item id="a" level="5" attack="100"/>` +
			`<item id="b" level="5" attack="110"/>` +
			`<item id="c" level="5" attack="90"/>` +
			`<item id="d" level="5" attack="400"/>` +
			`</items>`,
	})

	report := testEngine().ValidateDocuments(context.Background(), docs)

	outliers := report.ByType["stat balance"]
	require.Len(t, outliers, 1)
	assert.Equal(t, SeverityWarning, outliers[0].Severity)
	assert.Equal(t, 400.0, outliers[0].Details["value"])
	require.Len(t, outliers[0].Suggestions, 1)
	assert.Contains(t, outliers[0].Suggestions[0], "between")
}

func TestRuleIndependence(t *testing.T) {
	files := map[string]string{
		"item.xml": `<items><item id="1" attack="10"/></items>`,
		"drops.xml": `<drop_tables><drop_table id="dt1">` +
			`<drop item_id="2"/>` +
			`</drop_table></drop_tables>`,
		"skills.xml": `<skills><skill id="s1"/></skills>`,
	}

	eng := testEngine()
	full := eng.ValidateDocuments(context.Background(), makeDocs(t, files))

	// Disable skill-learn-config; every other rule's results must be
	// unchanged.
	var trimmed []Rule
	for _, r := range eng.registry {
		if r.Name != "skill-learn-config" {
			trimmed = append(trimmed, r)
		}
	}
	eng.registry = trimmed
	partial := eng.ValidateDocuments(context.Background(), makeDocs(t, files))

	for _, typ := range []string{"dangling reference", "orphaned entity", "stat balance", "exp-table-mismatch"} {
		if diff := cmp.Diff(full.ByType[typ], partial.ByType[typ]); diff != "" {
			t.Errorf("rule output for %q changed when another rule was removed:\n%s", typ, diff)
		}
	}
	assert.Empty(t, partial.ByType["missing learn config"])
}

func TestFailingRuleIsContained(t *testing.T) {
	eng := testEngine()
	eng.registry = append(eng.registry, Rule{
		Name:        "panicky",
		Description: "always panics",
		Fn: func(map[string]*document.Document, *RefIndex) []Result {
			panic("boom")
		},
	})

	docs := makeDocs(t, map[string]string{
		"item.xml":  `<items><item id="1"/></items>`,
		"drops.xml": `<drop_tables><drop item_id="2"/></drop_tables>`,
	})
	report := eng.ValidateDocuments(context.Background(), docs)

	assert.Contains(t, report.RulesSkipped, "panicky")
	// The rest of the batch still ran.
	assert.Len(t, report.ByType["dangling reference"], 1)
}

func TestSlowRuleTimesOut(t *testing.T) {
	eng := testEngine()
	eng.timeout = 50 * time.Millisecond
	block := make(chan struct{})
	defer close(block)
	eng.registry = []Rule{{
		Name: "stuck",
		Fn: func(map[string]*document.Document, *RefIndex) []Result {
			<-block
			return nil
		},
	}}

	report := eng.ValidateDocuments(context.Background(), makeDocs(t, map[string]string{
		"item.xml": `<items><item id="1"/></items>`,
	}))
	assert.Equal(t, []string{"stuck"}, report.RulesSkipped)
	assert.Empty(t, report.Results)
}

func TestValidateAll_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(xmlDecl+content), 0644))
	}
	write("item.xml", `<items><item id="1" attack="10"/></items>`)
	write("drops.xml", `<drop_tables><drop_table id="dt1"><drop item_id="2"/></drop_table></drop_tables>`)

	eng := testEngine()
	report, err := eng.ValidateAll(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	require.Len(t, report.ByType["dangling reference"], 1)
	assert.Equal(t, "2", report.ByType["dangling reference"][0].Details["target_id"])
	assert.NotZero(t, report.Timestamp)
}

func TestValidateFileChange_Incremental(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(xmlDecl+content), 0644))
	}
	write("item.xml", `<items><item id="1" attack="10"/></items>`)
	write("drops.xml", `<drop_tables><drop_table id="dt1"><drop item_id="1"/></drop_table></drop_tables>`)

	eng := testEngine()
	full, err := eng.ValidateAll(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Empty(t, full.ByType["dangling reference"])

	// Edit the drop table to point at a missing item: only the
	// incremental rules run, against the changed file and its pair.
	changed := []byte(xmlDecl + `<drop_tables><drop_table id="dt1"><drop item_id="99"/></drop_table></drop_tables>`)
	report, err := eng.ValidateFileChange(context.Background(), filepath.Join(dir, "drops.xml"), changed)
	require.NoError(t, err)

	require.Len(t, report.ByType["dangling reference"], 1)
	assert.Equal(t, "99", report.ByType["dangling reference"][0].Details["target_id"])
	// Global rules are excluded from the fast path.
	assert.Empty(t, report.ByType["orphaned entity"])
}

func TestValidateFileChange_FindsReferrers(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(xmlDecl+content), 0644))
	}
	write("item.xml", `<items><item id="1"/></items>`)
	write("drops.xml", `<drop_tables><drop_table id="dt1"><drop item_id="1"/></drop_table></drop_tables>`)

	eng := testEngine()
	_, err := eng.ValidateAll(context.Background(), []string{dir})
	require.NoError(t, err)

	// Renaming the item invalidates the drop table that pointed at it.
	changed := []byte(xmlDecl + `<items><item id="renamed"/></items>`)
	report, err := eng.ValidateFileChange(context.Background(), filepath.Join(dir, "item.xml"), changed)
	require.NoError(t, err)

	require.Len(t, report.ByType["dangling reference"], 1)
	assert.Equal(t, "drops.xml", report.ByType["dangling reference"][0].File)
}

func TestValidateFileChange_FindsReferrersInSubdirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(xmlDecl+content), 0644))
	}
	write(filepath.Join("sub", "item.xml"), `<items><item id="1"/></items>`)
	write("drops.xml", `<drop_tables><drop_table id="dt1"><drop item_id="1"/></drop_table></drop_tables>`)

	eng := testEngine()
	_, err := eng.ValidateAll(context.Background(), []string{dir})
	require.NoError(t, err)

	// The changed file was loaded under the key "sub/item.xml"; the fast
	// path must land on that key, not the bare base name, or the rename
	// below leaves the stale snapshot entry in the impact set and the
	// dangling reference goes unreported.
	changed := []byte(xmlDecl + `<items><item id="renamed"/></items>`)
	report, err := eng.ValidateFileChange(context.Background(), filepath.Join(dir, "sub", "item.xml"), changed)
	require.NoError(t, err)

	require.Len(t, report.ByType["dangling reference"], 1)
	assert.Equal(t, "drops.xml", report.ByType["dangling reference"][0].File)
}
