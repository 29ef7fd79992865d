package seer

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter measures and trims text in model tokens.
type TokenCounter interface {
	Count(text string) int
	// Truncate returns the longest prefix of text that fits in max tokens.
	Truncate(text string, max int) string
}

type codecCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a cl100k_base counter.
func NewTokenCounter() (TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load cl100k tokenizer: %w", err)
	}
	return codecCounter{codec: codec}, nil
}

func (c codecCounter) Count(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		// Unencodable input is rare; fall back to a rough 4-bytes-per-token estimate.
		return (len(text) + 3) / 4
	}
	return len(ids)
}

func (c codecCounter) Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return truncateStr(text, max*4)
	}
	if len(ids) <= max {
		return text
	}
	out, err := c.codec.Decode(ids[:max])
	if err != nil {
		return truncateStr(text, max*4)
	}
	// A token boundary can split a multi-byte rune.
	for len(out) > 0 && !utf8.ValidString(out) {
		out = out[:len(out)-1]
	}
	return out
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
