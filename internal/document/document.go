// Package document implements the document store: a parallel loader that
// turns a directory tree of XML configuration files into an in-memory keyed
// document set. Individual file failures are tolerated; the caller receives
// whatever parsed cleanly.
package document

import (
	"strconv"
	"strings"
)

// Encoding is the character encoding detected for a document.
type Encoding string

const (
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF16BE Encoding = "utf-16be"
)

// Document is one parsed XML file.
type Document struct {
	// Key is the path relative to the load root, using forward slashes.
	Key string

	// Path is the absolute filesystem path.
	Path string

	// Root is the document's root element.
	Root *Element

	// Size is the raw byte size on disk.
	Size int64

	// Encoding is the detected character encoding.
	Encoding Encoding
}

// Element is one node of the generic XML tree. The store does not bind
// documents to schemas; validation rules navigate by name and attribute.
type Element struct {
	// Name is the local element name.
	Name string

	// Attrs holds the element's attributes.
	Attrs map[string]string

	// Children are the child elements in document order.
	Children []*Element

	// Text is the trimmed character data directly inside this element.
	Text string

	// Path locates the element within its document, e.g. "/items/item[2]".
	Path string
}

// Attr returns the named attribute, or "" if absent.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// HasAttr reports whether the attribute is present, even if empty.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// IntAttr parses the named attribute as an integer.
func (e *Element) IntAttr(name string) (int, bool) {
	v, ok := e.Attrs[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// FloatAttr parses the named attribute as a float.
func (e *Element) FloatAttr(name string) (float64, bool) {
	v, ok := e.Attrs[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FindAll returns every descendant element (including e itself) with the
// given name, in document order.
func (e *Element) FindAll(name string) []*Element {
	var out []*Element
	e.Walk(func(el *Element) {
		if el.Name == name {
			out = append(out, el)
		}
	})
	return out
}

// Walk visits e and every descendant in document order.
func (e *Element) Walk(fn func(*Element)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// FindAllInDocs collects elements by name across a document set, returning
// each with its owning document. Rules use this to scan the whole snapshot.
func FindAllInDocs(docs map[string]*Document, name string) []DocElement {
	var out []DocElement
	for _, doc := range docs {
		if doc.Root == nil {
			continue
		}
		for _, el := range doc.Root.FindAll(name) {
			out = append(out, DocElement{Doc: doc, El: el})
		}
	}
	return out
}

// DocElement pairs an element with the document that contains it.
type DocElement struct {
	Doc *Document
	El  *Element
}
