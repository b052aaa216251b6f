package embedding

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

// Registry holds the available encoders and the fallback chain of each.
type Registry struct {
	mu       sync.RWMutex
	encoders map[corpus.EncoderID]encoderEntry
	chains   map[corpus.EncoderID][]corpus.EncoderID
}

type encoderEntry struct {
	encoder Encoder
	timeout time.Duration
}

// DefaultEncodeTimeout bounds an encode call when no timeout is configured.
const DefaultEncodeTimeout = 30 * time.Second

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		encoders: make(map[corpus.EncoderID]encoderEntry),
		chains:   make(map[corpus.EncoderID][]corpus.EncoderID),
	}
}

// NewRegistryFromConfig builds the encoders and chains described by cfg.
func NewRegistryFromConfig(cfg *Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("embedding: invalid config: %w", err)
	}

	r := NewRegistry()
	for _, ec := range cfg.Encoders {
		var enc Encoder
		switch ec.Kind {
		case KindHashing:
			enc = NewHashingEncoder(ec.encoderID(), ec.Dimension)
		case KindInference:
			ie, err := NewInferenceEncoder(cfg, ec)
			if err != nil {
				return nil, err
			}
			enc = ie
		}
		r.RegisterWithTimeout(enc, ec.timeout())
	}
	for primary, fallbacks := range cfg.Chains {
		ids := make([]corpus.EncoderID, len(fallbacks))
		for i, f := range fallbacks {
			ids[i] = corpus.EncoderID(f)
		}
		if err := r.SetFallbacks(corpus.EncoderID(primary), ids...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds enc with the default timeout, replacing an encoder of the same id.
func (r *Registry) Register(enc Encoder) {
	r.RegisterWithTimeout(enc, DefaultEncodeTimeout)
}

// RegisterWithTimeout adds enc; every encode call on it is bounded by timeout.
func (r *Registry) RegisterWithTimeout(enc Encoder, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultEncodeTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[enc.ID()] = encoderEntry{encoder: enc, timeout: timeout}
}

// SetFallbacks sets the encoders tried after primary, in order.
func (r *Registry) SetFallbacks(primary corpus.EncoderID, fallbacks ...corpus.EncoderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.encoders[primary]; !ok {
		return fmt.Errorf("embedding: unknown encoder %q", primary)
	}
	for _, f := range fallbacks {
		if _, ok := r.encoders[f]; !ok {
			return fmt.Errorf("embedding: unknown fallback encoder %q", f)
		}
	}
	r.chains[primary] = append([]corpus.EncoderID(nil), fallbacks...)
	return nil
}

// Encoder returns the encoder registered under id.
func (r *Registry) Encoder(id corpus.EncoderID) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[id]
	return e.encoder, ok
}

func (r *Registry) entry(id corpus.EncoderID) (encoderEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[id]
	return e, ok
}

// Chain returns primary followed by its fallbacks without duplicates.
// An unknown primary yields a single-element chain so that callers still
// report which encoder was tried.
func (r *Registry) Chain(primary corpus.EncoderID) []corpus.EncoderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := []corpus.EncoderID{primary}
	seen := map[corpus.EncoderID]bool{primary: true}
	for _, f := range r.chains[primary] {
		if !seen[f] {
			seen[f] = true
			chain = append(chain, f)
		}
	}
	return chain
}

// IDs returns the registered encoder ids in ascending order.
func (r *Registry) IDs() []corpus.EncoderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]corpus.EncoderID, 0, len(r.encoders))
	for id := range r.encoders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
