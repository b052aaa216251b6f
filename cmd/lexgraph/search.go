package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/search"
)

var searchOpts struct {
	top           int
	encoder       string
	minSimilarity float64
	legalArea     string
	documentType  string
	parties       []string
	decided       string
	exclude       []string
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Rank documents by vector similarity and metadata signals",
	Long: `Embeds the query with the preferred encoder (falling back along its chain)
and ranks documents by cosine similarity. Metadata flags describe the
situation the query is about and add legal area, document type, temporal
and party signals to the score.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var similarCmd = &cobra.Command{
	Use:   "similar DOCUMENT_ID",
	Short: "List the documents most similar to a stored document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchOpts.top, "top", "n", 10, "number of results")
	f.StringVar(&searchOpts.encoder, "encoder", "", "preferred encoder (default: configured)")
	f.Float64Var(&searchOpts.minSimilarity, "min-similarity", 0, "drop candidates below this cosine similarity")
	f.StringVar(&searchOpts.legalArea, "legal-area", "", "legal area of the query situation")
	f.StringVar(&searchOpts.documentType, "document-type", "", "document type of the query situation")
	f.StringSliceVar(&searchOpts.parties, "party", nil, "parties of the query situation (repeatable)")
	f.StringVar(&searchOpts.decided, "decided", "", "reference date, YYYY-MM-DD")
	f.StringSliceVar(&searchOpts.exclude, "exclude", nil, "document ids to leave out")

	similarCmd.Flags().IntVarP(&searchOpts.top, "top", "n", 10, "number of results")

	rootCmd.AddCommand(searchCmd, similarCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := search.Query{
		Text:          args[0],
		Encoder:       corpus.EncoderID(searchOpts.encoder),
		TopN:          searchOpts.top,
		MinSimilarity: searchOpts.minSimilarity,
		ExcludeIDs:    searchOpts.exclude,
	}

	decided, err := parseDate(searchOpts.decided)
	if err != nil {
		return err
	}
	if searchOpts.legalArea != "" || searchOpts.documentType != "" || len(searchOpts.parties) > 0 || decided != nil {
		q.Anchor = &corpus.Metadata{
			LegalArea:    searchOpts.legalArea,
			DocumentType: searchOpts.documentType,
			Parties:      searchOpts.parties,
			DecisionDate: decided,
		}
	}

	var svc *search.Service
	return runOnce(cmd, searching, func(ctx context.Context) error {
		results, err := svc.Search(ctx, q)
		if err != nil {
			return err
		}
		return printResult(cmd, results, func() { printResults(cmd, results) })
	}, &svc)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	var svc *search.Service
	return runOnce(cmd, searching, func(ctx context.Context) error {
		results, err := svc.SimilarDocuments(ctx, args[0], searchOpts.top)
		if err != nil {
			return err
		}
		return printResult(cmd, results, func() { printResults(cmd, results) })
	}, &svc)
}

func printResults(cmd *cobra.Command, results []search.Result) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		title := r.Document.Metadata.CaseNumber
		if title == "" {
			title = r.Document.ID
		}
		cmd.Printf("  [%d] %s (%.3f, cosine %.3f via %s)\n", i+1, title, r.Score, r.Similarity, r.VectorEncoder)
		if m := r.Document.Metadata; m.Court != "" || m.LegalArea != "" {
			cmd.Printf("      %s\n", strings.Trim(m.Court+" / "+m.LegalArea, " /"))
		}
		for _, s := range r.Signals {
			cmd.Printf("      %+.3f %s: %s\n", s.Weight, s.Category, s.Detail)
		}
	}
}
