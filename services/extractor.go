package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
)

// Extractor pulls plain text out of uploaded PDF, DOCX and TXT files.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractFile detects the file type from the extension (falling back to
// content sniffing) and extracts its text.
func (e *Extractor) ExtractFile(path string) (string, error) {
	kind, err := e.DetectKind(path)
	if err != nil {
		return "", err
	}

	switch kind {
	case mimePDF:
		return e.ExtractPDF(path)
	case mimeDOCX:
		return e.ExtractDOCX(path)
	case mimeTXT:
		return e.ExtractTXT(path)
	default:
		return "", fmt.Errorf("unsupported file type %q: supported types are PDF, DOCX and TXT", kind)
	}
}

// DetectKind returns the MIME type for a file, preferring the extension and
// sniffing the content when the extension is missing or unknown.
func (e *Extractor) DetectKind(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return mimePDF, nil
	case ".docx":
		return mimeDOCX, nil
	case ".txt", ".md":
		return mimeTXT, nil
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect file type: %w", err)
	}

	for mime := detected; mime != nil; mime = mime.Parent() {
		switch {
		case mime.Is(mimePDF):
			return mimePDF, nil
		case mime.Is(mimeDOCX):
			return mimeDOCX, nil
		case mime.Is(mimeTXT):
			return mimeTXT, nil
		}
	}

	return detected.String(), nil
}

func (e *Extractor) ExtractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}

	return buf.String(), nil
}

// docxBody mirrors the parts of word/document.xml we care about: paragraphs
// of text runs.
type docxBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text string `xml:",chardata"`
		} `xml:"r>t"`
	} `xml:"body>p"`
}

func (e *Extractor) ExtractDOCX(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX: %w", err)
	}
	defer archive.Close()

	var document *zip.File
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			document = file
			break
		}
	}
	if document == nil {
		return "", fmt.Errorf("invalid DOCX: word/document.xml not found")
	}

	rc, err := document.Open()
	if err != nil {
		return "", fmt.Errorf("failed to read DOCX document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read DOCX document: %w", err)
	}

	var body docxBody
	if err := xml.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("failed to parse DOCX document: %w", err)
	}

	var sb strings.Builder
	for _, paragraph := range body.Paragraphs {
		for _, run := range paragraph.Runs {
			sb.WriteString(run.Text)
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func (e *Extractor) ExtractTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}

	return string(data), nil
}
