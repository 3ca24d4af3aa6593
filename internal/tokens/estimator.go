// Package tokens estimates token counts for budget accounting. It uses
// the cl100k tiktoken encoding when available and falls back to a
// bytes/4 heuristic, which is close enough for debiting a budget.
package tokens

import (
	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens in text.
type Estimator struct {
	codec tokenizer.Codec
}

// NewEstimator builds an estimator. Codec initialization failure is not
// an error — the estimator silently degrades to the heuristic.
func NewEstimator() *Estimator {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		codec = nil
	}
	return &Estimator{codec: codec}
}

// Count returns the estimated token count for text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if e.codec != nil {
		if ids, _, err := e.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return fallbackCount(text)
}

// CountAll sums the estimates for several texts.
func (e *Estimator) CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += e.Count(t)
	}
	return total
}

// fallbackCount approximates one token per four bytes, minimum one for
// non-empty text.
func fallbackCount(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
