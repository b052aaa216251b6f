// Package chunking splits cleaned document text into overlapping word windows.
package chunking

import (
	"errors"
	"unicode"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Config controls the window size of the chunker.
type Config struct {
	// WindowWords is the number of words per chunk.
	// Default: 200
	WindowWords int `yaml:"window_words"`

	// OverlapWords is how many words consecutive chunks share. Must be smaller
	// than WindowWords.
	// Default: 40
	OverlapWords int `yaml:"overlap_words"`
}

// DefaultConfig returns the default chunker configuration.
func DefaultConfig() Config {
	return Config{WindowWords: 200, OverlapWords: 40}
}

// ErrInvalidConfig is returned by New for a window that cannot advance.
var ErrInvalidConfig = errors.New("chunking: overlap must be smaller than window and window positive")

// Chunker produces chunks with contiguous ordinals from zero.
type Chunker struct {
	window  int
	overlap int
}

// New returns a Chunker.
func New(cfg Config) (*Chunker, error) {
	if cfg.WindowWords <= 0 || cfg.OverlapWords < 0 || cfg.OverlapWords >= cfg.WindowWords {
		return nil, ErrInvalidConfig
	}
	return &Chunker{window: cfg.WindowWords, overlap: cfg.OverlapWords}, nil
}

type span struct{ start, end int }

// Split returns the chunks of text. Chunk spans are byte offsets into text
// and always start and end on a word. Text with no words yields no chunks;
// text shorter than one window yields one chunk.
func (c *Chunker) Split(documentID, text string) []corpus.Chunk {
	words := wordSpans(text)
	if len(words) == 0 {
		return nil
	}

	step := c.window - c.overlap
	var chunks []corpus.Chunk
	for first := 0; ; first += step {
		last := first + c.window
		if last > len(words) {
			last = len(words)
		}
		start, end := words[first].start, words[last-1].end
		chunks = append(chunks, corpus.Chunk{
			DocumentID: documentID,
			Ordinal:    len(chunks),
			Text:       text[start:end],
			Start:      start,
			End:        end,
		})
		if last == len(words) {
			break
		}
	}
	return chunks
}

// wordSpans returns the byte spans of whitespace-separated words.
func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
