package prompt

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// bpeCounter counts with the cl100k_base encoding and falls back to a
// character estimate when the codec is unavailable.
type bpeCounter struct {
	once  sync.Once
	codec tokenizer.Codec
}

var defaultCounter = &bpeCounter{}

// DefaultTokenCounter returns the shared BPE counter.
func DefaultTokenCounter() TokenCounter {
	return defaultCounter
}

func (c *bpeCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.WithError(err).Warn("prompt: tokenizer unavailable, estimating token counts")
			return
		}
		c.codec = codec
	})
	if c.codec == nil {
		return EstimateTokens(text)
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(ids)
}

// EstimateTokens approximates four bytes per token.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
