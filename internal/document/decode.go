package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// DetectEncoding inspects raw bytes and decides how to decode them. Game
// config exports are typically UTF-16 with a BOM; hand-edited files are
// UTF-8. A zero-interleaved XML prologue catches BOM-less UTF-16.
func DetectEncoding(data []byte) Encoding {
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			return EncodingUTF16LE
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return EncodingUTF16BE
		}
	}
	if len(data) >= 4 {
		// '<' 0x00 '?' 0x00 — UTF-16LE without a BOM.
		if data[0] == '<' && data[1] == 0x00 && data[2] == '?' && data[3] == 0x00 {
			return EncodingUTF16LE
		}
		// 0x00 '<' 0x00 '?' — UTF-16BE without a BOM.
		if data[0] == 0x00 && data[1] == '<' && data[2] == 0x00 && data[3] == '?' {
			return EncodingUTF16BE
		}
	}
	return EncodingUTF8
}

// DecodeToUTF8 converts raw file bytes to UTF-8 according to the detected
// encoding, stripping any BOM.
func DecodeToUTF8(data []byte) ([]byte, Encoding, error) {
	enc := DetectEncoding(data)
	switch enc {
	case EncodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return nil, enc, fmt.Errorf("decode utf-16le: %w", err)
		}
		return out, enc, nil
	case EncodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return nil, enc, fmt.Errorf("decode utf-16be: %w", err)
		}
		return out, enc, nil
	default:
		// Strip a UTF-8 BOM if present.
		out := bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		return out, EncodingUTF8, nil
	}
}

// Parse decodes raw XML bytes into an element tree.
func Parse(data []byte) (*Element, Encoding, error) {
	utf8Data, enc, err := DecodeToUTF8(data)
	if err != nil {
		return nil, enc, err
	}

	dec := xml.NewDecoder(bytes.NewReader(utf8Data))
	// The bytes are already UTF-8; accept whatever the declaration claims.
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	root, err := parseRoot(dec)
	if err != nil {
		return nil, enc, err
	}
	return root, enc, nil
}

func parseRoot(dec *xml.Decoder) (*Element, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no root element")
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, start, "/"+start.Name.Local)
		}
	}
}

// parseElement builds the subtree rooted at start. path is the element's own
// full path within the document.
func parseElement(dec *xml.Decoder, start xml.StartElement, path string) (*Element, error) {
	el := &Element{
		Name:  start.Name.Local,
		Attrs: make(map[string]string, len(start.Attr)),
		Path:  path,
	}
	for _, a := range start.Attr {
		el.Attrs[a.Name.Local] = a.Value
	}

	childCounts := make(map[string]int)
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse xml at %s: %w", el.Path, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			childCounts[t.Name.Local]++
			childPath := el.Path + "/" + t.Name.Local
			if n := childCounts[t.Name.Local]; n > 1 {
				// Disambiguate repeated siblings: /items/item[2].
				childPath = fmt.Sprintf("%s/%s[%d]", el.Path, t.Name.Local, n)
			}
			child, err := parseElement(dec, t, childPath)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			el.Text = strings.TrimSpace(text.String())
			return el, nil
		}
	}
}
