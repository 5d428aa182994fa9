// Package chunker splits raw document text into overlapping chunks, breaking
// at the most natural boundary that keeps every chunk within the size budget.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
)

// separators are tried in priority order; the empty string hard-splits and
// guarantees termination.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Splitter splits text into chunks of at most chunkSize characters. Sizes are
// measured in runes, not bytes, so multibyte text is never cut mid-character.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New validates the chunking parameters. Overlap must be smaller than the
// chunk size or the window could never advance.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

func (s *Splitter) ChunkSize() int    { return s.chunkSize }
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split chunks text into ordered chunks carrying the given metadata.
// An empty document yields zero chunks; a document within the size budget
// yields exactly one.
func (s *Splitter) Split(text string, metadata map[string]string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	segments := s.splitRecursive(text, 0)
	contents := s.mergeWithOverlap(segments)

	chunks := make([]models.Chunk, 0, len(contents))
	for i, content := range contents {
		chunks = append(chunks, models.Chunk{
			Content:  content,
			Position: i,
			Metadata: metadata,
		})
	}
	return chunks
}

// splitRecursive cuts text into segments no longer than the chunk size,
// preferring the highest-priority separator that gets each piece under
// budget. Separators stay attached to the preceding segment so that
// concatenating all segments reproduces the input.
func (s *Splitter) splitRecursive(text string, sepIdx int) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}

	sep := separators[sepIdx]
	if sep == "" {
		// Last resort: hard split on rune boundaries.
		runes := []rune(text)
		var out []string
		for start := 0; start < len(runes); start += s.chunkSize {
			end := min(start+s.chunkSize, len(runes))
			out = append(out, string(runes[start:end]))
		}
		return out
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= s.chunkSize {
			out = append(out, part)
		} else {
			out = append(out, s.splitRecursive(part, sepIdx+1)...)
		}
	}
	return out
}

// mergeWithOverlap packs segments into chunks up to the size budget. Each new
// chunk starts with the tail of the previous one so adjacent chunks share
// context; the tail is trimmed only when keeping it whole would break the
// size bound.
func (s *Splitter) mergeWithOverlap(segments []string) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0 // rune count of cur

	flush := func() {
		content := cur.String()
		cur.Reset()
		curLen = 0
		if strings.TrimSpace(content) == "" {
			return
		}
		chunks = append(chunks, content)
		if s.chunkOverlap > 0 {
			tail := lastRunes(content, s.chunkOverlap)
			cur.WriteString(tail)
			curLen = utf8.RuneCountInString(tail)
		}
	}

	carried := 0 // rune count of the overlap tail currently in cur
	for _, seg := range segments {
		segLen := utf8.RuneCountInString(seg)
		if curLen > 0 && curLen+segLen > s.chunkSize {
			if curLen > carried {
				flush()
				carried = curLen
			}
			// The carried tail plus this segment may still not fit.
			if curLen+segLen > s.chunkSize {
				tail := cur.String()
				cur.Reset()
				curLen = 0
				keep := s.chunkSize - segLen
				if keep > 0 && keep <= utf8.RuneCountInString(tail) {
					trimmed := lastRunes(tail, keep)
					cur.WriteString(trimmed)
					curLen = keep
				}
				carried = curLen
			}
		}
		cur.WriteString(seg)
		curLen += segLen
	}
	if curLen > carried {
		content := cur.String()
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, content)
		}
	}
	return chunks
}

// lastRunes returns the suffix of s holding at most n runes.
func lastRunes(s string, n int) string {
	i := len(s)
	for n > 0 && i > 0 {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		n--
	}
	return s[i:]
}
