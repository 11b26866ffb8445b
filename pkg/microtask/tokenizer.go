package microtask

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer estimates the token count of a rendered prompt fragment so the
// context assembler can enforce per-placeholder and global budget caps
// before ever calling the model.
type Tokenizer interface {
	CountTokens(text string) int
}

// CharEstimateTokenizer is the universal fallback: len(text)/4 rounded up,
// never zero for non-empty input. Used whenever a model profile declares no
// TokenizerID, or a real BPE tokenizer can't be loaded for the one it does.
type CharEstimateTokenizer struct{}

func (CharEstimateTokenizer) CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if len(text)%4 != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// bpeEncodingNames maps the spec's tokenizer ids onto tiktoken-go's
// encoding names.
var bpeEncodingNames = map[string]string{
	"cl100k": "cl100k_base",
	"o200k":  "o200k_base",
}

// bpeTokenizer wraps a compiled tiktoken-go encoding, falling back to the
// character estimate if the encoding failed to load (a tokenizer must never
// error the micro-task loop).
type bpeTokenizer struct {
	enc      *tiktoken.Tiktoken
	fallback CharEstimateTokenizer
}

var (
	bpeCacheMu sync.Mutex
	bpeCache   = map[string]*bpeTokenizer{}
)

// NewTokenizer resolves the tokenizer for a model profile's TokenizerID: a
// real BPE tokenizer for "cl100k"/"o200k" when tiktoken-go can load the
// encoding, the character-estimate fallback otherwise or for any other id
// (including empty).
func NewTokenizer(tokenizerID string) Tokenizer {
	encodingName, ok := bpeEncodingNames[tokenizerID]
	if !ok {
		return CharEstimateTokenizer{}
	}

	bpeCacheMu.Lock()
	defer bpeCacheMu.Unlock()
	if cached, ok := bpeCache[encodingName]; ok {
		return cached
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		t := &bpeTokenizer{enc: nil}
		bpeCache[encodingName] = t
		return t
	}
	t := &bpeTokenizer{enc: enc}
	bpeCache[encodingName] = t
	return t
}

func (t *bpeTokenizer) CountTokens(text string) int {
	if t.enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
