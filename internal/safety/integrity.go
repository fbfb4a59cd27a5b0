package safety

import (
	"bytes"
	"fmt"
	"regexp"

	"gdcore/internal/document"
)

// IntegrityResult reports every structural problem found in a byte sequence
// in a single pass. Valid is true only when Violations is empty.
type IntegrityResult struct {
	Valid      bool
	Violations []string
	Details    map[string]any
}

func (r *IntegrityResult) violation(msg string) {
	r.Valid = false
	r.Violations = append(r.Violations, msg)
}

var xmlDeclRe = regexp.MustCompile(`(?s)^\s*<\?xml\s[^>]*\?>`)
var encodingAttrRe = regexp.MustCompile(`encoding\s*=\s*["'][^"']+["']`)

// ValidateXMLIntegrity runs all structural checks on the content, regardless
// of earlier failures, so the caller sees every problem at once. maxSize is
// the upper sanity bound in bytes.
func ValidateXMLIntegrity(data []byte, maxSize int64) IntegrityResult {
	res := IntegrityResult{
		Valid:   true,
		Details: map[string]any{"size": int64(len(data))},
	}

	if len(data) == 0 {
		res.violation("content is empty")
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		res.violation(fmt.Sprintf("content size %d exceeds limit %d", len(data), maxSize))
	}

	if len(data) > 0 {
		root, enc, err := document.Parse(data)
		if err != nil {
			res.violation(fmt.Sprintf("not well-formed: %v", err))
		} else {
			res.Details["encoding"] = string(enc)
			res.Details["root"] = root.Name
		}

		// Declaration checks run on the decoded text so UTF-16 files are
		// inspected the same way as UTF-8 ones.
		text, _, decErr := document.DecodeToUTF8(data)
		if decErr != nil {
			text = data
		}
		text = bytes.TrimLeft(text, "\xef\xbb\xbf")
		decl := xmlDeclRe.Find(text)
		if decl == nil {
			res.violation("missing XML declaration")
		} else if !encodingAttrRe.Match(decl) {
			res.violation("XML declaration has no encoding attribute")
		}
	}

	return res
}
