package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer gives a rough prompt size for metrics. Provider tokenizers differ,
// so the count is an estimate, not what the provider bills.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New loads cl100k_base. The BPE file is fetched and cached by tiktoken-go on
// first use, so this can fail without network access.
func New() (*Tokenizer, error) {
	tkm, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tokenizer{encoding: tkm}, nil
}

func (t *Tokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}
