// Package indexer splits documents into chunks and keeps the vector store in sync
// with a tenant's FAQs, policies and documents.
package indexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize and DefaultChunkOverlap are measured in characters.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

// Chunker splits text into paragraph-aligned chunks of at most size characters.
// Paragraphs longer than size are cut into windows that overlap by overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker. Non-positive values fall back to the defaults and
// an overlap of half the size or more is reduced so windows always advance.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap*2 >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Chunk splits text into ordered chunks. It is deterministic and returns nil for blank text.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if runeLen(text) <= c.size {
		return []string{text}
	}

	var chunks []string
	current := ""
	flush := func() {
		if t := strings.TrimSpace(current); t != "" {
			chunks = append(chunks, t)
		}
		current = ""
	}

	for _, para := range paragraphBreakRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLen := runeLen(para)
		if paraLen > c.size {
			flush()
			chunks = append(chunks, c.splitLong(para)...)
			continue
		}
		if current == "" {
			current = para
			continue
		}
		if runeLen(current)+paraLen+2 <= c.size {
			current += "\n\n" + para
			continue
		}
		flush()
		current = para
	}
	flush()
	return chunks
}

// splitLong cuts a single oversized paragraph into overlapping windows, preferring
// to end each window at the last whitespace past its midpoint.
func (c *Chunker) splitLong(text string) []string {
	runes := []rune(text)
	total := len(runes)
	var chunks []string
	pos := 0
	for pos < total {
		end := pos + c.size
		if end > total {
			end = total
		}
		window := runes[pos:end]
		if end < total {
			if cut := lastSpace(window); cut > c.size/2 {
				window = window[:cut]
			}
		}
		if t := strings.TrimSpace(string(window)); t != "" {
			chunks = append(chunks, t)
		}
		if end >= total {
			break
		}
		pos += len(window) - c.overlap
		if total-pos < c.overlap*2 {
			if t := strings.TrimSpace(string(runes[pos:])); t != "" {
				chunks = append(chunks, t)
			}
			break
		}
	}
	return chunks
}

func lastSpace(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return -1
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
