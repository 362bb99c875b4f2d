package ai

import (
	"unicode/utf8"

	"github.com/fmulab/graphqa/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter assumes four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) CountTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// NewTokenCounter returns a tiktoken counter, or ApproxCounter when the
// encoding cannot be loaded (tiktoken fetches its ranks on first use).
func NewTokenCounter(encoding string) TokenCounter {
	c, err := NewTiktokenCounter(encoding)
	if err != nil {
		logger.Warn("Falling back to approximate token counting", "encoding", encoding, "err", err)
		return ApproxCounter{}
	}
	return c
}
