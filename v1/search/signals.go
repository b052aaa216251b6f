package search

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

const hoursPerDay = 24.0

// Scorer turns a raw similarity and candidate metadata into signals.
type Scorer struct {
	w Weights
}

// NewScorer returns a Scorer with w.
func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score returns the signals for a candidate and their sum. The vector signal
// comes first, followed by metadata signals in a fixed category order and the
// penalty cap compensation, if any.
func (s *Scorer) Score(similarity float64, encoder corpus.EncoderID, candidate corpus.Metadata, anchor *corpus.Metadata) ([]Signal, float64) {
	signals := []Signal{{
		Category: CategoryVector,
		Detail:   fmt.Sprintf("cosine similarity %.4f (%s)", similarity, encoder),
		Weight:   similarity,
	}}

	if anchor != nil {
		signals = append(signals, s.metadataSignals(candidate, *anchor)...)
	}

	var penalty float64
	for _, sig := range signals[1:] {
		if sig.Weight < 0 {
			penalty += sig.Weight
		}
	}
	if s.w.PenaltyCap > 0 && -penalty > s.w.PenaltyCap {
		signals = append(signals, Signal{
			Category: CategoryPenaltyCap,
			Detail:   fmt.Sprintf("penalties %.4f capped at %.4f", penalty, -s.w.PenaltyCap),
			Weight:   -penalty - s.w.PenaltyCap,
		})
	}

	var score float64
	for _, sig := range signals {
		score += sig.Weight
	}
	return signals, score
}

func (s *Scorer) metadataSignals(c, a corpus.Metadata) []Signal {
	var out []Signal

	if a.LegalArea != "" && c.LegalArea != "" {
		if strings.EqualFold(a.LegalArea, c.LegalArea) {
			out = appendSignal(out, CategoryLegalArea, "same legal area "+c.LegalArea, s.w.LegalAreaMatch)
		} else {
			out = appendSignal(out, CategoryLegalArea,
				fmt.Sprintf("legal area %s differs from %s", c.LegalArea, a.LegalArea), s.w.LegalAreaMismatch)
		}
	}

	if a.DocumentType != "" && strings.EqualFold(a.DocumentType, c.DocumentType) {
		out = appendSignal(out, CategoryDocumentType, "same document type "+c.DocumentType, s.w.DocumentTypeMatch)
	}

	if sig, ok := s.temporal(c.ReferenceDate(), a.ReferenceDate()); ok {
		out = append(out, sig)
	}

	if j, shared := jaccard(c.Parties, a.Parties); j > 0 {
		out = appendSignal(out, CategoryParties,
			fmt.Sprintf("%d shared parties, overlap %.2f", shared, j), s.w.PartyOverlap*j)
	}

	return out
}

func (s *Scorer) temporal(c, a *time.Time) (Signal, bool) {
	if c == nil || a == nil {
		return Signal{}, false
	}
	days := math.Abs(c.Sub(*a).Hours()) / hoursPerDay

	if s.w.TemporalWindowDays > 0 && days < s.w.TemporalWindowDays {
		w := s.w.TemporalProximity * (1 - days/s.w.TemporalWindowDays)
		if w != 0 {
			return Signal{Category: CategoryTemporal, Detail: fmt.Sprintf("%.0f days apart", days), Weight: w}, true
		}
		return Signal{}, false
	}

	if s.w.TemporalDistanceYears > 0 && days > s.w.TemporalDistanceYears*365.25 && s.w.TemporalDistance != 0 {
		return Signal{Category: CategoryTemporal, Detail: fmt.Sprintf("%.1f years apart", days/365.25), Weight: s.w.TemporalDistance}, true
	}
	return Signal{}, false
}

func appendSignal(out []Signal, category, detail string, weight float64) []Signal {
	if weight == 0 {
		return out
	}
	return append(out, Signal{Category: category, Detail: detail, Weight: weight})
}

// jaccard returns |a∩b| / |a∪b| over case-folded, trimmed party names and the
// size of the intersection.
func jaccard(a, b []string) (float64, int) {
	as, bs := partySet(a), partySet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0, 0
	}
	shared := 0
	for p := range as {
		if bs[p] {
			shared++
		}
	}
	union := len(as) + len(bs) - shared
	return float64(shared) / float64(union), shared
}

func partySet(parties []string) map[string]bool {
	set := make(map[string]bool, len(parties))
	for _, p := range parties {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = true
		}
	}
	return set
}

// scoreEpsilon is the distance below which two scores tie. Scores are sums
// of signals and pick up rounding in the last bits.
const scoreEpsilon = 1e-9

// Rank sorts results by descending score, then descending similarity, then
// ascending document id.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if math.Abs(results[i].Score-results[j].Score) > scoreEpsilon {
			return results[i].Score > results[j].Score
		}
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}
