package embedding

import (
	"context"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Encoder converts texts to vectors of a fixed dimension. Encode returns one
// vector per input text, in input order.
type Encoder interface {
	ID() corpus.EncoderID
	Dimension() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}
