package topics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

func terms(kws []Keyword) []string {
	out := make([]string, len(kws))
	for i, k := range kws {
		out[i] = k.Term
	}
	return out
}

var sampleTexts = []string{
	"The tenant paid the rent late",
	"The tenant withheld rent",
	"Tenant and landlord dispute rent",
	"Income tax deduction denied",
	"The tax deduction was allowed",
	"Income tax appeal",
	"tenant tax",
}

var sampleLabels = []int{0, 0, 0, 1, 1, 1, -1}

func TestExtractRanksByClassTFIDF(t *testing.T) {
	x := NewExtractor(KeywordParams{})
	got := x.Extract(sampleTexts, sampleLabels)

	// "tenant" also occurs in the noise group, which lowers its weight
	// below "rent" although both occur three times in group 0.
	assert.Equal(t, []string{"rent", "tenant"}, terms(got[0]))
	assert.Greater(t, got[0][0].Weight, got[0][1].Weight)

	g1 := terms(got[1])
	assert.Contains(t, g1, "income tax")
	assert.Contains(t, g1, "tax deduction")
	assert.NotContains(t, g1, "denied", "terms below the document frequency floor are dropped")
	assert.NotContains(t, g1, "the", "stop words are dropped")

	_, hasNoise := got[-1]
	assert.False(t, hasNoise)
}

func TestExtractDocumentFrequencyCeiling(t *testing.T) {
	x := NewExtractor(KeywordParams{MaxDF: 0.5, NgramMax: 1})
	got := x.Extract(
		[]string{"court tenant", "court tenant", "court tax", "court tax"},
		[]int{0, 0, 1, 1},
	)
	assert.Equal(t, []string{"tenant"}, terms(got[0]))
	assert.Equal(t, []string{"tax"}, terms(got[1]))
}

func TestExtractTopNAndNgrams(t *testing.T) {
	x := NewExtractor(KeywordParams{TopN: 2, NgramMax: 3, MinDF: 1, MaxDF: 1})
	got := x.Extract([]string{"notice period tenancy law", "notice period tenancy law"}, []int{4, 4})
	require.Len(t, got[4], 2)

	all := x.terms("notice period tenancy")
	assert.ElementsMatch(t, []string{
		"notice", "notice period", "notice period tenancy",
		"period", "period tenancy", "tenancy",
	}, all)
}

func TestTermsDoNotSpanStopWordsOrNumbers(t *testing.T) {
	x := NewExtractor(KeywordParams{StopWords: []string{"Landlord"}})
	assert.Equal(t, []string{"rent", "deposit"}, x.terms("rent of 2024 deposit"))
	assert.Equal(t, []string{"notice"}, x.terms("landlord notice"))
}

func TestExtractEmpty(t *testing.T) {
	x := NewExtractor(KeywordParams{})
	assert.Empty(t, x.Extract(nil, nil))
	assert.Empty(t, x.Extract([]string{"the of and"}, []int{0})[0])
}

func TestLabel(t *testing.T) {
	x := NewExtractor(KeywordParams{LabelWords: 2})
	kws := []Keyword{{Term: "rent", Weight: 3}, {Term: "tenant", Weight: 2}, {Term: "deposit", Weight: 1}}
	assert.Equal(t, "rent, tenant", x.Label(0, kws))
	assert.Equal(t, "rent", x.Label(1, kws[:1]))
	assert.Equal(t, "", x.Label(-1, kws))
}

func TestAnnotate(t *testing.T) {
	x := NewExtractor(KeywordParams{})
	docs := make([]corpus.Document, len(sampleTexts))
	for i, text := range sampleTexts {
		docs[i] = corpus.Document{ID: string(rune('a' + i)), Text: text}
	}
	stats := []runstore.ClusterStat{{Label: 0, Size: 3}, {Label: 1, Size: 3}}

	out, err := x.Annotate(context.Background(), docs, sampleLabels, stats)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"rent", "tenant"}, out[0].Keywords)
	assert.Len(t, out[0].KeywordWeights, 2)
	assert.Equal(t, "rent, tenant", out[0].Name)
	assert.Equal(t, 3, out[1].Size)
	assert.Nil(t, stats[0].Keywords, "input stats are not modified")
}
