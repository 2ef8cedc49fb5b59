package hashed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimension is the vector length when none is configured.
const DefaultDimension = 256

// Provider is an offline bag-of-words embedder. Each non-stopword token is
// hashed into one of Dimension buckets with a hash-derived sign, and the
// counts are L2-normalized. Identical text always yields the identical vector.
type Provider struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a provider producing vectors of the given dimension.
func New(dimension int) *Provider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Provider{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// ModelName is the model identifier recorded in artifacts built with this provider.
func (p *Provider) ModelName() string { return fmt.Sprintf("hashed-%d", p.dimension) }

func (p *Provider) Name() string { return "hashed" }

func (p *Provider) Dimension() int { return p.dimension }

// Embed computes the hashed bag-of-words vector for text. The model argument
// must be empty or equal to ModelName.
func (p *Provider) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model != "" && model != p.ModelName() {
		return nil, fmt.Errorf("unknown model %q for hashed provider", model)
	}
	// Text of only stopwords maps to the zero vector, which scores 0
	// against every record.
	tokens := p.tokenize(text)
	acc := make([]float64, p.dimension)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		if sum>>63 == 1 {
			acc[idx]--
		} else {
			acc[idx]++
		}
	}
	// L2 normalize
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, p.dimension)
	if norm > 0 {
		for i, v := range acc {
			vec[i] = float32(v / norm)
		}
	}
	return vec, nil
}

func (p *Provider) tokenize(text string) []string {
	raw := p.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := p.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
