// Package tokenizer counts and truncates text in cl100k_base tokens, the
// encoding of the OpenAI embedding models. The BPE ranks are embedded in the
// binary, so nothing is downloaded at runtime.
package tokenizer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultMaxTokens leaves headroom under the 8191-token input limit of the
// OpenAI embedding models.
const DefaultMaxTokens = 8000

// Encoding is the BPE encoding used for counting.
const Encoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, encErr = tiktoken.GetEncoding(Encoding)
	})
	return enc, encErr
}

// special token text is counted as one token rather than rejected
var allSpecial = []string{"all"}

func encode(e *tiktoken.Tiktoken, text string) []int {
	return e.Encode(text, allSpecial, nil)
}

// Count returns the number of tokens in text. Without an encoding it returns
// the byte length, which no BPE token count can exceed.
func Count(text string) int {
	e, err := encoding()
	if err != nil {
		return len(text)
	}
	return len(encode(e, text))
}

// Truncate keeps the longest prefix of text that is at most maxTokens tokens
// and ends on a token and rune boundary. Text within the budget, or
// maxTokens <= 0, is returned unchanged. The second result reports whether
// anything was cut.
func Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}
	e, err := encoding()
	if err != nil {
		if len(text) <= maxTokens {
			return text, false
		}
		return runePrefix(text, maxTokens), true
	}
	ids := encode(e, text)
	if len(ids) <= maxTokens {
		return text, false
	}
	// A decoded token prefix is a byte prefix of text. Re-encoding it can
	// merge differently, so step back until it fits.
	for n := maxTokens; n > 0; n-- {
		out := runePrefix(text, len(e.Decode(ids[:n])))
		if len(encode(e, out)) <= maxTokens {
			return out, true
		}
	}
	return "", true
}

// runePrefix returns text cut to at most n bytes without splitting a rune.
func runePrefix(text string, n int) string {
	if n >= len(text) {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
