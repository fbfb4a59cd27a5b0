package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// utf16le encodes ASCII text as UTF-16LE with a BOM.
func utf16le(s string) []byte {
	out := []byte{0xFF, 0xFE}
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0x00)
	}
	return out
}

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Encoding
	}{
		{"utf8 plain", []byte(`<?xml version="1.0"?><a/>`), EncodingUTF8},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("<a/>")...), EncodingUTF8},
		{"utf16le bom", utf16le(`<?xml version="1.0"?><a/>`), EncodingUTF16LE},
		{"utf16be bom", []byte{0xFE, 0xFF, 0x00, '<'}, EncodingUTF16BE},
		{"utf16le bomless prologue", []byte{'<', 0x00, '?', 0x00}, EncodingUTF16LE},
		{"empty", nil, EncodingUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEncoding(tt.data))
		})
	}
}

func TestParse_UTF16(t *testing.T) {
	root, enc, err := Parse(utf16le(`<?xml version="1.0" encoding="UTF-16"?><items><item id="1"/></items>`))
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF16LE, enc)
	assert.Equal(t, "items", root.Name)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "1", root.Children[0].Attr("id"))
}

func TestParse_ElementTree(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>
<items>
  <item id="1" attack="10">sword</item>
  <item id="2" attack="12"/>
</items>`
	root, enc, err := Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8, enc)
	require.Len(t, root.Children, 2)

	first, second := root.Children[0], root.Children[1]
	assert.Equal(t, "/items/item", first.Path)
	assert.Equal(t, "/items/item[2]", second.Path)
	assert.Equal(t, "sword", first.Text)

	atk, ok := second.IntAttr("attack")
	require.True(t, ok)
	assert.Equal(t, 12, atk)

	_, ok = second.IntAttr("missing")
	assert.False(t, ok)

	assert.Len(t, root.FindAll("item"), 2)
}

func TestParse_Malformed(t *testing.T) {
	_, _, err := Parse([]byte(`<items><item></items>`))
	assert.Error(t, err)

	_, _, err = Parse([]byte(``))
	assert.Error(t, err)
}

func TestLoadAll_SkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.xml"),
		[]byte(`<?xml version="1.0" encoding="UTF-8"?><items/>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xml"),
		[]byte(`<items><unclosed>`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte(`not xml`), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.xml"),
		[]byte(`<?xml version="1.0" encoding="UTF-8"?><npcs/>`), 0644))

	loader := NewLoader(4, 5*time.Second)
	docs, err := loader.LoadAll(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.Len(t, docs, 2)
	assert.Contains(t, docs, "good.xml")
	assert.Contains(t, docs, "sub/nested.xml")
	assert.NotContains(t, docs, "broken.xml")
}

func TestLoadAll_MissingRoot(t *testing.T) {
	loader := NewLoader(4, time.Second)
	_, err := loader.LoadAll(context.Background(), []string{filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestParseBytes(t *testing.T) {
	loader := NewLoader(1, time.Second)
	doc, err := loader.ParseBytes("/tmp/items.xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><items/>`))
	require.NoError(t, err)
	assert.Equal(t, "items.xml", doc.Key)
	assert.Equal(t, "items", doc.Root.Name)
}
