// Package chunker splits raw text into bounded, overlapping segments using a
// recursive separator hierarchy: paragraph breaks first, then line breaks,
// then spaces, and finally individual characters, which guarantees
// termination. Separators stay attached to the piece they terminate, so the
// concatenation of all chunks with overlap removed reproduces the input.
package chunker

import (
	"strings"
	"unicode/utf8"

	"studybot/internal/schema"
)

// Defaults matching the ingestion policy shared by every index.
const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 20
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks of at most ChunkSize characters, carrying
// ChunkOverlap trailing characters of each chunk into the head of the next.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

// New creates a Splitter. Non-positive arguments fall back to the defaults.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split chunks text. Empty input yields no chunks and no error. Every chunk
// is at most ChunkSize long, except when a single atomic unit under the
// finest separator alone exceeds the bound; that unit is emitted on its own.
func (s *Splitter) Split(text string) []schema.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := s.splitRecursive(text, 0)
	merged := s.merge(pieces)
	chunks := make([]schema.Chunk, len(merged))
	for i, m := range merged {
		chunks[i] = schema.Chunk{Text: m, SequenceIndex: i}
	}
	return chunks
}

// splitRecursive splits text on the separator at sepIdx and re-splits any
// piece still over ChunkSize with the next, finer separator.
func (s *Splitter) splitRecursive(text string, sepIdx int) []string {
	sep := s.separators[sepIdx]
	var out []string
	for _, piece := range splitKeep(text, sep) {
		if len(piece) <= s.ChunkSize || sepIdx == len(s.separators)-1 {
			out = append(out, piece)
		} else {
			out = append(out, s.splitRecursive(piece, sepIdx+1)...)
		}
	}
	return out
}

// merge reassembles adjacent small pieces up to ChunkSize, seeding each new
// chunk with the trailing overlap of the previous one to preserve
// cross-boundary context.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	// cur is the chunk under construction; overlap is the length of its
	// carried-over prefix, which must never be emitted on its own.
	cur := ""
	overlap := 0

	for _, p := range pieces {
		if cur != "" && len(cur)+len(p) > s.ChunkSize {
			if len(cur) > overlap {
				chunks = append(chunks, cur)
			}
			ov := s.ChunkOverlap
			if ov > len(cur) {
				ov = len(cur)
			}
			// Leave room so overlap never pushes the next chunk past the bound.
			if room := s.ChunkSize - len(p); ov > room {
				ov = room
			}
			if ov < 0 {
				ov = 0
			}
			cut := runeBoundary(cur, len(cur)-ov)
			cur = cur[cut:]
			overlap = len(cur)
		}
		cur += p
	}
	if len(cur) > overlap {
		chunks = append(chunks, cur)
	}
	return chunks
}

// splitKeep splits text on sep, keeping the separator attached to the end of
// the piece it terminates so no characters are lost. The empty separator
// splits into individual runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// runeBoundary moves i forward to the nearest UTF-8 rune start in s so the
// overlap never slices a rune in half.
func runeBoundary(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
