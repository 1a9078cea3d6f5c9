package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTextExtractor(t *testing.T) {
	e := &PlainTextExtractor{}

	assert.True(t, e.Supports("notes.txt"))
	assert.True(t, e.Supports("README.md"))
	assert.True(t, e.Supports("GUIDE.MARKDOWN"))
	assert.False(t, e.Supports("report.pdf"))

	text, err := e.Extract(strings.NewReader("hello world"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestManager_RoutesByExtension(t *testing.T) {
	m := NewManager()

	assert.True(t, m.Supports("a.pdf"))
	assert.True(t, m.Supports("a.docx"))
	assert.True(t, m.Supports("a.xlsx"))
	assert.True(t, m.Supports("a.txt"))
	assert.False(t, m.Supports("a.png"))

	text, err := m.Extract(strings.NewReader("plain content"), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain content", text)
}

func TestManager_UnsupportedFormat(t *testing.T) {
	m := NewManager()

	_, err := m.Extract(strings.NewReader("data"), "image.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image.png")
}

func TestDocxExtractor_RejectsLegacyDoc(t *testing.T) {
	e := &DocxExtractor{}

	_, err := e.Extract(strings.NewReader("old binary format"), "legacy.doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".docx")
}

func TestXlsxExtractor_RejectsLegacyXls(t *testing.T) {
	e := &XlsxExtractor{}

	_, err := e.Extract(strings.NewReader("old binary format"), "legacy.xls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".xlsx")
}
