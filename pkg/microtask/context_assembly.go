package microtask

import (
	"sort"
	"strings"

	"github.com/nuntissura/handshake/pkg/canonicalize"
)

// AssembledContext is the working context built for one micro-task
// iteration: a stable prefix of rules/constraints plus a variable suffix
// templated from placeholders, each deterministically truncated to the
// configured token caps.
type AssembledContext struct {
	StablePrefix       string
	VariableSuffix     string
	FullPrompt         string
	StablePrefixHash   string
	VariableSuffixHash string
	FullPromptHash     string
	Truncated          []string // placeholder names truncated to fit their cap
}

// AssembleOptions bounds context assembly: a per-placeholder token cap
// applied before the suffix is concatenated, then a global cap applied to
// the whole suffix.
type AssembleOptions struct {
	PerPlaceholderTokenCap int
	GlobalTokenCap         int
	Tokenizer              Tokenizer
}

// Assemble builds the working context for one iteration: stablePrefix is
// fixed rules/constraints text; placeholders are templated into the
// variable suffix in a stable (sorted-key) order so assembly is
// deterministic across runs.
func Assemble(stablePrefix string, placeholders map[string]string, opts AssembleOptions) *AssembledContext {
	tok := opts.Tokenizer
	if tok == nil {
		tok = CharEstimateTokenizer{}
	}

	names := make([]string, 0, len(placeholders))
	for name := range placeholders {
		names = append(names, name)
	}
	sort.Strings(names)

	var truncated []string
	var suffixParts []string
	for _, name := range names {
		value := placeholders[name]
		if opts.PerPlaceholderTokenCap > 0 {
			capped, wasTruncated := truncateToTokenCap(value, opts.PerPlaceholderTokenCap, tok)
			if wasTruncated {
				truncated = append(truncated, name)
			}
			value = capped
		}
		suffixParts = append(suffixParts, value)
	}
	variableSuffix := strings.Join(suffixParts, "\n")

	if opts.GlobalTokenCap > 0 {
		capped, wasTruncated := truncateToTokenCap(variableSuffix, opts.GlobalTokenCap, tok)
		if wasTruncated {
			truncated = append(truncated, "__global__")
		}
		variableSuffix = capped
	}

	fullPrompt := stablePrefix + "\n" + variableSuffix

	return &AssembledContext{
		StablePrefix:       stablePrefix,
		VariableSuffix:     variableSuffix,
		FullPrompt:         fullPrompt,
		StablePrefixHash:   hashCanonical(stablePrefix),
		VariableSuffixHash: hashCanonical(variableSuffix),
		FullPromptHash:     hashCanonical(fullPrompt),
		Truncated:          truncated,
	}
}

// truncateToTokenCap deterministically shortens text by halving the
// character window until its estimated token count fits the cap, a simple
// binary search that never depends on map iteration order or wall time.
func truncateToTokenCap(text string, cap int, tok Tokenizer) (string, bool) {
	if tok.CountTokens(text) <= cap {
		return text, false
	}
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tok.CountTokens(text[:mid]) <= cap {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:lo], true
}

func hashCanonical(s string) string {
	sum, err := canonicalize.JCSString(s)
	if err != nil {
		// JCS of a plain string cannot fail; fall back to the raw value
		// rather than ever erroring context assembly over it.
		sum = s
	}
	return sha256Hex([]byte(sum))
}
