package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDOCX(t *testing.T, path string) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := zip.NewWriter(file)

	doc, err := writer.Create("word/document.xml")
	require.NoError(t, err)
	_, err = doc.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>World</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
}

func TestExtractTXT(t *testing.T) {
	e := NewExtractor()
	dir := t.TempDir()

	t.Run("plain text", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0o644))

		text, err := e.ExtractFile(path)
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", text)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		path := filepath.Join(dir, "binary.txt")
		require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0o644))

		_, err := e.ExtractFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UTF-8")
	})
}

func TestExtractDOCX(t *testing.T) {
	e := NewExtractor()
	path := filepath.Join(t.TempDir(), "report.docx")
	writeDOCX(t, path)

	text, err := e.ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\nSecond paragraph\n", text)
}

func TestExtractDOCXInvalid(t *testing.T) {
	e := NewExtractor()
	dir := t.TempDir()

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(dir, "broken.docx")
		require.NoError(t, os.WriteFile(path, []byte("not really a docx"), 0o644))

		_, err := e.ExtractFile(path)
		assert.Error(t, err)
	})

	t.Run("zip without document.xml", func(t *testing.T) {
		path := filepath.Join(dir, "empty.docx")
		file, err := os.Create(path)
		require.NoError(t, err)
		writer := zip.NewWriter(file)
		_, err = writer.Create("word/styles.xml")
		require.NoError(t, err)
		require.NoError(t, writer.Close())
		require.NoError(t, file.Close())

		_, err = e.ExtractFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document.xml")
	})
}

func TestDetectKind(t *testing.T) {
	e := NewExtractor()
	dir := t.TempDir()

	t.Run("by extension", func(t *testing.T) {
		kind, err := e.DetectKind("whatever.pdf")
		require.NoError(t, err)
		assert.Equal(t, mimePDF, kind)

		kind, err = e.DetectKind("whatever.docx")
		require.NoError(t, err)
		assert.Equal(t, mimeDOCX, kind)

		kind, err = e.DetectKind("whatever.txt")
		require.NoError(t, err)
		assert.Equal(t, mimeTXT, kind)
	})

	t.Run("sniffs text content without extension", func(t *testing.T) {
		path := filepath.Join(dir, "noext")
		require.NoError(t, os.WriteFile(path, []byte("just some plain prose"), 0o644))

		kind, err := e.DetectKind(path)
		require.NoError(t, err)
		assert.Equal(t, mimeTXT, kind)
	})
}

func TestExtractFileUnsupported(t *testing.T) {
	e := NewExtractor()
	path := filepath.Join(t.TempDir(), "image.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a\x01\x00\x01\x00"), 0o644))

	_, err := e.ExtractFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
