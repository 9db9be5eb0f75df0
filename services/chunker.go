package services

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is one chunk of normalized document text together with its rune
// offsets into that text. The offsets cover exactly Text: surrounding
// whitespace is excluded.
type Span struct {
	Text  string
	Start int
	End   int
}

type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	}
}

// ChunkText normalizes whitespace and splits the text into overlapping
// chunks, preferring to break at sentence boundaries over plain whitespace.
func (c *Chunker) ChunkText(text string) []Span {
	text = cleanText(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.ChunkSize {
		return []Span{{Text: text, Start: 0, End: len(runes)}}
	}

	minStep := c.ChunkSize - c.ChunkOverlap
	if minStep <= 0 {
		minStep = 1
	}

	var chunks []Span
	start := 0
	for start < len(runes) {
		end := start + c.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		// break at a sentence boundary when one exists far enough in
		// to still make forward progress after the overlap
		if end < len(runes) {
			boundary := findSentenceBoundary(runes, start, end)
			if boundary > start+c.ChunkOverlap {
				end = boundary
			}
		}

		chunkStart, chunkEnd := start, end
		for chunkStart < chunkEnd && unicode.IsSpace(runes[chunkStart]) {
			chunkStart++
		}
		for chunkEnd > chunkStart && unicode.IsSpace(runes[chunkEnd-1]) {
			chunkEnd--
		}
		if chunkEnd > chunkStart {
			chunks = append(chunks, Span{Text: string(runes[chunkStart:chunkEnd]), Start: chunkStart, End: chunkEnd})
		}

		if end == len(runes) {
			break
		}

		next := end - c.ChunkOverlap
		if next <= start {
			next = start + minStep
		}
		start = next

		if start >= len(runes) {
			break
		}
	}

	return chunks
}

// cleanText collapses runs of whitespace and drops blank lines.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			line = strings.Join(strings.Fields(line), " ")
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, " ")
}

var sentenceEnders = []rune{'.', '!', '?', '。', '！', '？'}

// findSentenceBoundary scans backwards from end looking for the position
// just after a sentence ender followed by whitespace, then for any
// whitespace at all. Returns end when nothing usable is found.
func findSentenceBoundary(runes []rune, start, end int) int {
	if end <= start {
		return end
	}

	for i := end - 1; i > start; i-- {
		for _, ender := range sentenceEnders {
			if runes[i] == ender {
				if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
					return i + 1
				}
			}
		}
	}

	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return end
}

// ChunkMetrics summarizes the result of chunking one document. All sizes
// are rune counts, matching Span offsets.
type ChunkMetrics struct {
	TotalChunks  int
	AvgChunkSize float64
	MinChunkSize int
	MaxChunkSize int
	OriginalSize int
}

func CalculateMetrics(chunks []Span, originalText string) ChunkMetrics {
	if len(chunks) == 0 {
		return ChunkMetrics{OriginalSize: utf8.RuneCountInString(originalText)}
	}

	totalSize := 0
	minSize := utf8.RuneCountInString(chunks[0].Text)
	maxSize := minSize

	for _, chunk := range chunks {
		size := utf8.RuneCountInString(chunk.Text)
		totalSize += size
		if size < minSize {
			minSize = size
		}
		if size > maxSize {
			maxSize = size
		}
	}

	return ChunkMetrics{
		TotalChunks:  len(chunks),
		AvgChunkSize: float64(totalSize) / float64(len(chunks)),
		MinChunkSize: minSize,
		MaxChunkSize: maxSize,
		OriginalSize: utf8.RuneCountInString(originalText),
	}
}
