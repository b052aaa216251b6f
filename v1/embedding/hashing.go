package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

// HashingEncoder maps lower-cased word unigrams and bigrams into a signed
// feature-hashed vector and L2-normalizes it. The output depends only on the
// text and the dimension.
type HashingEncoder struct {
	id        corpus.EncoderID
	dimension int
}

// NewHashingEncoder returns a hashing encoder with the given id and dimension.
func NewHashingEncoder(id corpus.EncoderID, dimension int) *HashingEncoder {
	return &HashingEncoder{id: id, dimension: dimension}
}

func (e *HashingEncoder) ID() corpus.EncoderID { return e.id }

func (e *HashingEncoder) Dimension() int { return e.dimension }

func (e *HashingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.encodeOne(text)
	}
	return out, nil
}

func (e *HashingEncoder) encodeOne(text string) []float32 {
	v := make([]float32, e.dimension)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(v, tok, 1)
		if i > 0 {
			e.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return vecmath.Normalize(v)
}

func (e *HashingEncoder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Tokenize splits text into lower-cased words of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
