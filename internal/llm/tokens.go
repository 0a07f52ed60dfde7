package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter counts tokens for round accounting.
type TokenCounter interface {
	Count(text string) int
}

// EstimateTokenCount returns the cheap len/4 estimate used for size guards.
func EstimateTokenCount(content string) int {
	return charsToTokens(len(content))
}

func charsToTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	tokens := chars / 4
	if tokens <= 0 {
		tokens = 1
	}
	return tokens
}

// EstimateCounter counts tokens with EstimateTokenCount.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int { return EstimateTokenCount(text) }

// TiktokenCounter counts tokens with the model's BPE encoding, falling back to
// cl100k_base and finally to the character estimate when no encoding loads.
type TiktokenCounter struct {
	modelID string

	once    sync.Once
	encoder *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for modelID. Encodings load lazily.
func NewTiktokenCounter(modelID string) *TiktokenCounter {
	return &TiktokenCounter{modelID: modelID}
}

func (c *TiktokenCounter) load() {
	if c.modelID != "" {
		if enc, err := tiktoken.EncodingForModel(c.modelID); err == nil {
			c.encoder = enc
			return
		}
	}
	if enc, err := tiktoken.GetEncoding(fallbackEncoding); err == nil {
		c.encoder = enc
	}
}

// Approximate reports whether counts come from the character estimate.
func (c *TiktokenCounter) Approximate() bool {
	c.once.Do(c.load)
	return c.encoder == nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.encoder == nil {
		return EstimateTokenCount(text)
	}
	return len(c.encoder.Encode(text, nil, nil))
}
