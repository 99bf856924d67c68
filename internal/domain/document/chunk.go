// Package document provides pure text chunking for the ingestion pipeline.
//
// A "token" here is a whitespace-separated word. That is a deliberate
// simplification over sub-word tokenization: it keeps chunking
// deterministic and dependency-free, and embedding models tolerate the
// slack in the budget.
package document

import (
	"fmt"
	"strings"

	"github.com/stayline/concierge/internal/domain"
)

// Chunk is a contiguous slice of a document's extracted text.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// CountTokens returns the whitespace-split word count of text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// ChunkText splits text into overlapping word-bounded chunks. Each chunk
// holds at most maxTokens words; consecutive chunks share overlap words.
// Empty or whitespace-only windows are dropped. The output is
// deterministic for a given input.
//
// overlap >= maxTokens would make the window step non-positive (an
// infinite loop), so it is rejected as a configuration error.
func ChunkText(text string, maxTokens, overlap int) ([]Chunk, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", domain.ErrValidation, maxTokens)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrValidation, overlap)
	}
	if overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max tokens %d", domain.ErrValidation, overlap, maxTokens)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := maxTokens - overlap
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+maxTokens, len(words))
		window := strings.Join(words[start:end], " ")
		if window == "" {
			continue
		}
		chunks = append(chunks, Chunk{Text: window, Index: len(chunks)})
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
