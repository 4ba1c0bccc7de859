package agent

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizer     *tiktoken.Tiktoken
	tokenizerErr  error
	tokenizerOnce sync.Once
)

// initTokenizer initializes the tiktoken tokenizer (cl100k_base)
func initTokenizer() {
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = tiktoken.GetEncoding("cl100k_base")
		if tokenizerErr != nil {
			log.Printf("[WARN] Failed to load tiktoken tokenizer: %v", tokenizerErr)
		} else {
			log.Printf("[OK] Tiktoken tokenizer loaded (cl100k_base)")
		}
	})
}

// EstimateTokens counts BPE tokens in text, falling back to a byte
// heuristic when the tokenizer is unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	initTokenizer()
	if tokenizer != nil {
		count := len(tokenizer.Encode(text, nil, nil))
		if count == 0 {
			return 1
		}
		return count
	}
	// ~4 bytes per token for English text
	return len(text)/4 + 1
}
