// Package chunker splits raw document text into overlapping, boundary-aware
// segments with positional metadata. Segments prefer to end on a paragraph
// break, newline, or sentence terminator so that embeddings are computed over
// coherent units of text rather than arbitrary windows.
package chunker

import "strings"

// Default chunking parameters, matching the ingestion pipeline defaults.
const (
	// DefaultChunkSize is the maximum number of characters per chunk.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of characters shared between consecutive chunks.
	DefaultOverlap = 50
)

// boundaries are the cut markers searched for near the end of each window,
// in priority order. The first marker found scanning backward from the
// tentative window end wins.
var boundaries = []string{"\n\n", "\n", ". ", "! ", "? "}

// Chunk is a contiguous, bounded substring of a document with positional
// provenance. StartChar and EndChar are offsets into the original, untrimmed
// document text; Text itself has leading/trailing whitespace removed.
type Chunk struct {
	// Text is the trimmed segment content.
	Text string
	// Index is the 0-based sequential position of this chunk in its document.
	Index int
	// StartChar is the inclusive start offset in the original text.
	StartChar int
	// EndChar is the exclusive end offset in the original text.
	EndChar int
}

// Split divides text into chunks of at most size characters with the given
// overlap between consecutive chunks. Blank input (empty after trimming)
// yields an empty slice — this is not an error condition; callers that
// require at least one chunk decide their own policy.
//
// The cursor always advances: if the overlapped next start would not move
// past the current window's start, it jumps to the window end instead, so
// the loop terminates for any input and any 0 ≤ overlap < size.
func Split(text string, size, overlap int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		end := start + size
		last := end >= len(text)
		if last {
			end = len(text)
		} else {
			end = cut(text, start, end)
		}

		segment := strings.TrimSpace(text[start:end])
		if segment != "" {
			chunks = append(chunks, Chunk{
				Text:      segment,
				Index:     index,
				StartChar: start,
				EndChar:   end,
			})
			index++
		}

		if last {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// cut searches backward from the tentative window end for the nearest
// boundary marker and returns the adjusted end offset (just past the marker).
// Markers are tried in priority order; a plain space is the last resort.
// If nothing is found the raw window end is returned unchanged.
func cut(text string, start, end int) int {
	window := text[start:end]

	for _, b := range boundaries {
		if pos := strings.LastIndex(window, b); pos != -1 {
			return start + pos + len(b)
		}
	}

	if pos := strings.LastIndexByte(window, ' '); pos > 0 {
		return start + pos + 1
	}

	return end
}
