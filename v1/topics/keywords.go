package topics

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// defaultStopWords covers the English and German function words common in
// court decisions.
var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "have", "in", "is", "it",
	"its", "of", "on", "or", "that", "the", "this", "to", "was", "were", "which", "with",
	"der", "die", "das", "den", "dem", "des", "ein", "eine", "einer", "eines", "einem", "einen",
	"und", "oder", "ist", "sind", "war", "wurde", "wird", "zu", "zum", "zur", "im", "in", "mit",
	"von", "vom", "auf", "für", "nicht", "als", "auch", "bei", "aus", "dass", "sich", "es", "an",
}

// Keyword is a weighted topic term.
type Keyword struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Extractor ranks the terms of each group by class-based TF-IDF: the term
// frequency within the group, normalised by the group's size, times
// log(1 + average group size / frequency of the term over all groups).
type Extractor struct {
	params KeywordParams
	stop   map[string]struct{}
}

// NewExtractor returns an Extractor.
func NewExtractor(p KeywordParams) *Extractor {
	p = p.withDefaults()
	stop := make(map[string]struct{}, len(defaultStopWords)+len(p.StopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	for _, w := range p.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Extractor{params: p, stop: stop}
}

// Parameters returns the effective parameters.
func (x *Extractor) Parameters() any { return x.params }

// terms returns the n-grams of text, n = 1..NgramMax, built from words that
// are not stop words. N-grams never span a dropped word.
func (x *Extractor) terms(text string) []string {
	var (
		out []string
		run []string
	)
	flush := func() {
		for i := range run {
			for n := 1; n <= x.params.NgramMax && i+n <= len(run); n++ {
				out = append(out, strings.Join(run[i:i+n], " "))
			}
		}
		run = run[:0]
	}
	for _, w := range embedding.Tokenize(text) {
		if _, skip := x.stop[w]; skip || len([]rune(w)) < 2 || isNumber(w) {
			flush()
			continue
		}
		run = append(run, w)
	}
	flush()
	return out
}

func isNumber(w string) bool {
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Extract returns the ranked keywords of every group in labels. texts and
// labels are parallel. The noise group takes part in the term statistics but
// gets no keywords.
func (x *Extractor) Extract(texts []string, labels []int) map[int][]Keyword {
	nDocs := len(texts)
	docFreq := make(map[string]int)
	classTF := make(map[int]map[string]float64)
	for i, text := range texts {
		seen := make(map[string]struct{})
		counts := classTF[labels[i]]
		if counts == nil {
			counts = make(map[string]float64)
			classTF[labels[i]] = counts
		}
		for _, t := range x.terms(text) {
			counts[t]++
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				docFreq[t]++
			}
		}
	}

	maxDocs := int(math.Floor(x.params.MaxDF * float64(nDocs)))
	if maxDocs < 1 {
		maxDocs = 1
	}
	keep := func(t string) bool {
		df := docFreq[t]
		return df >= x.params.MinDF && df <= maxDocs
	}

	termFreq := make(map[string]float64)
	var totalWords float64
	for _, counts := range classTF {
		for t, c := range counts {
			if keep(t) {
				termFreq[t] += c
				totalWords += c
			}
		}
	}
	if len(classTF) == 0 || totalWords == 0 {
		return map[int][]Keyword{}
	}
	avgClassWords := totalWords / float64(len(classTF))

	out := make(map[int][]Keyword)
	for label, counts := range classTF {
		if label == hdbscan.Noise {
			continue
		}
		var size float64
		for t, c := range counts {
			if keep(t) {
				size += c
			}
		}
		if size == 0 {
			out[label] = nil
			continue
		}
		var kws []Keyword
		for t, c := range counts {
			if !keep(t) {
				continue
			}
			w := (c / size) * math.Log(1+avgClassWords/termFreq[t])
			kws = append(kws, Keyword{Term: t, Weight: w})
		}
		sort.Slice(kws, func(i, j int) bool {
			if kws[i].Weight != kws[j].Weight {
				return kws[i].Weight > kws[j].Weight
			}
			return kws[i].Term < kws[j].Term
		})
		if len(kws) > x.params.TopN {
			kws = kws[:x.params.TopN]
		}
		out[label] = kws
	}
	return out
}

// Label joins the leading keywords of a group.
func (x *Extractor) Label(label int, kws []Keyword) string {
	if label == hdbscan.Noise {
		return ""
	}
	n := x.params.LabelWords
	if n > len(kws) {
		n = len(kws)
	}
	words := make([]string, n)
	for i := 0; i < n; i++ {
		words[i] = kws[i].Term
	}
	return strings.Join(words, ", ")
}

// Annotate attaches keywords, weights and a label to every stat.
func (x *Extractor) Annotate(ctx context.Context, docs []corpus.Document, labels []int, stats []runstore.ClusterStat) ([]runstore.ClusterStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	keywords := x.Extract(texts, labels)

	out := make([]runstore.ClusterStat, len(stats))
	for i, s := range stats {
		kws := keywords[s.Label]
		s.Keywords = make([]string, len(kws))
		s.KeywordWeights = make([]float64, len(kws))
		for j, k := range kws {
			s.Keywords[j] = k.Term
			s.KeywordWeights[j] = k.Weight
		}
		s.Name = x.Label(s.Label, kws)
		out[i] = s
	}
	return out, nil
}
