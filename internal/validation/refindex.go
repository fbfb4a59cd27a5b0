package validation

import (
	"gdcore/internal/document"
)

// refAttrKinds maps reference attribute names to the entity element they
// point at. This is the system's knowledge of how the game's config files
// link to each other; adding a new cross-file relationship is a data
// change here, not a code change in the rules.
var refAttrKinds = map[string]string{
	"item_id":       "item",
	"skill_id":      "skill",
	"npc_id":        "npc",
	"drop_table_id": "drop_table",
	"exp_table_id":  "exp_table",
	"learn_id":      "learn",
}

// entityKinds lists the element names treated as primary entities, keyed by
// their identifier attribute.
var entityKinds = map[string]string{
	"item":       "id",
	"skill":      "id",
	"npc":        "id",
	"drop_table": "id",
	"exp_table":  "id",
	"learn":      "id",
}

// Ref is one occurrence of a reference attribute.
type Ref struct {
	File        string
	ElementPath string
	Attr        string
	TargetID    string
}

// Entity is one primary entity occurrence.
type Entity struct {
	File        string
	ElementPath string
	ID          string
	El          *document.Element
}

// RefIndex is the precomputed cross-reference view of a document snapshot.
// It is built once per validation run and shared read-only between rules.
type RefIndex struct {
	// entities maps entity kind -> id -> occurrences.
	entities map[string]map[string][]Entity

	// refs maps entity kind -> every reference pointing at that kind.
	refs map[string][]Ref

	// reverse maps entity kind -> target id -> referencing files.
	reverse map[string]map[string][]string
}

// BuildRefIndex scans the snapshot for primary entities and reference
// attributes.
func BuildRefIndex(docs map[string]*document.Document) *RefIndex {
	idx := &RefIndex{
		entities: make(map[string]map[string][]Entity),
		refs:     make(map[string][]Ref),
		reverse:  make(map[string]map[string][]string),
	}

	for key, doc := range docs {
		if doc.Root == nil {
			continue
		}
		doc.Root.Walk(func(el *document.Element) {
			if idAttr, isEntity := entityKinds[el.Name]; isEntity {
				if id := el.Attr(idAttr); id != "" {
					byID := idx.entities[el.Name]
					if byID == nil {
						byID = make(map[string][]Entity)
						idx.entities[el.Name] = byID
					}
					byID[id] = append(byID[id], Entity{
						File:        key,
						ElementPath: el.Path,
						ID:          id,
						El:          el,
					})
				}
			}
			for attr, kind := range refAttrKinds {
				// An entity's own id attribute is not a reference to itself.
				if el.Name == refTargetName(attr) {
					continue
				}
				target := el.Attr(attr)
				if target == "" {
					continue
				}
				idx.refs[kind] = append(idx.refs[kind], Ref{
					File:        key,
					ElementPath: el.Path,
					Attr:        attr,
					TargetID:    target,
				})
				rev := idx.reverse[kind]
				if rev == nil {
					rev = make(map[string][]string)
					idx.reverse[kind] = rev
				}
				rev[target] = append(rev[target], key)
			}
		})
	}
	return idx
}

// refTargetName maps a reference attribute to the element name it targets.
func refTargetName(attr string) string {
	return refAttrKinds[attr]
}

// Entities returns all occurrences of an entity kind keyed by id.
func (idx *RefIndex) Entities(kind string) map[string][]Entity {
	return idx.entities[kind]
}

// Refs returns every reference pointing at the given entity kind.
func (idx *RefIndex) Refs(kind string) []Ref {
	return idx.refs[kind]
}

// Referrers returns the files containing a reference to the given entity
// id, used for impact analysis on file change.
func (idx *RefIndex) Referrers(kind, id string) []string {
	return idx.reverse[kind][id]
}

// IsReferenced reports whether any reference targets the given entity id.
func (idx *RefIndex) IsReferenced(kind, id string) bool {
	return len(idx.reverse[kind][id]) > 0
}
