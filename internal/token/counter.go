// Package token provides token counting utilities for prompt budgeting.
package token

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Default encoding for fallback.
const defaultEncoding = "cl100k_base"

// Counter wraps a tiktoken encoder for token counting operations.
type Counter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
}

// NewCounter creates a token counter for the given encoding
// ("cl100k_base", "o200k_base", ...). Unknown encodings fall back to
// cl100k_base.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, err
		}
		encoding = defaultEncoding
	}

	return &Counter{encoder: encoder, encoding: encoding}, nil
}

// Encoding returns the current encoding name.
func (c *Counter) Encoding() string {
	return c.encoding
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// TruncateToFit truncates text to fit within maxTokens. If fromEnd is true
// the tail of the text is kept, otherwise the head.
func (c *Counter) TruncateToFit(text string, maxTokens int, fromEnd bool) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	if fromEnd {
		return c.encoder.Decode(tokens[len(tokens)-maxTokens:])
	}
	return c.encoder.Decode(tokens[:maxTokens])
}

// Estimate provides a quick token estimate without encoding, using the
// ~4 characters per token heuristic for English text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}
