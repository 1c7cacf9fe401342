package rag

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// RelevanceThreshold is the squared L2 distance above which a retrieved chunk
// is considered unrelated to the query. Chunks at or beyond the threshold are
// excluded from answer context.
const RelevanceThreshold = 1.2

// displayLimit is the maximum chunk text length shown in citations.
const displayLimit = 200

// Score maps a distance to a relevance score in [0, 1] using exponential
// decay, rounded to four decimal places. Distance 0 scores 1.0 and the score
// falls toward 0 as distance grows.
func Score(distance float32) float64 {
	s := math.Exp(-float64(distance) / 10.0)
	s = math.Min(1.0, math.Max(0.0, s))
	return math.Round(s*10000) / 10000
}

// Relevant reports whether a chunk at the given distance should contribute
// to answer context.
func Relevant(distance float32) bool {
	return distance < RelevanceThreshold
}

// FilterRelevant returns the results whose distance passes the relevance
// threshold, preserving order.
func FilterRelevant(results []Result) []Result {
	var kept []Result
	for _, r := range results {
		if Relevant(r.Distance) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Citation renders the human-readable citation line for a result at the
// given 1-based rank.
func Citation(rank int, r Result) string {
	return fmt.Sprintf("[%d] %s (Chunk %d, Chars %d-%d)", rank, r.Filename, r.Index, r.StartChar, r.EndChar)
}

// DisplayText truncates chunk text for display in citations, appending an
// ellipsis when the text was cut. The cut never splits a multi-byte rune.
func DisplayText(text string) string {
	if len(text) > displayLimit {
		cut := displayLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + "..."
	}
	return text
}
