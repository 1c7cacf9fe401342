// Package budget provides token budget estimation and context trimming for
// the answering paths. Because docq supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output.
	DefaultMaxContextTokens = 6000

	// promptOverheadTokens accounts for the instruction scaffolding wrapped
	// around the question and context blocks.
	promptOverheadTokens = 160
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateContexts returns the estimated total token count for a set of
// context chunks, including a small per-chunk framing overhead.
func EstimateContexts(contexts []string) int {
	total := 0
	for _, c := range contexts {
		// Each context block carries a "[Document N]:" marker (~4 tokens).
		total += 4
		total += Estimate(c)
	}
	return total
}

// TrimContexts drops whole chunks from the end of contexts until question,
// prompt scaffolding, and the remaining chunks fit within maxTokens. Chunks
// arrive in descending relevance order, so the least relevant are dropped
// first. Chunks are never split: a partial chunk loses the character offsets
// its citation promises.
//
// If even a single chunk exceeds the budget, that one chunk is kept so the
// answer path always has some context to work with.
func TrimContexts(question string, contexts []string, maxTokens int) []string {
	if len(contexts) == 0 {
		return contexts
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	fixed := promptOverheadTokens + Estimate(question)
	for len(contexts) > 1 {
		if fixed+EstimateContexts(contexts) <= maxTokens {
			break
		}
		contexts = contexts[:len(contexts)-1]
	}
	return contexts
}
