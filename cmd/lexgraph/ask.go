package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/lexgraph/v1/rag"
)

var askOpts struct {
	topK         int
	retrieveOnly bool
}

var askCmd = &cobra.Command{
	Use:   "ask DOCUMENT_ID QUESTION",
	Short: "Answer a question from the chunks of one document",
	Long: `Retrieves the chunks of the document most similar to the question and asks
the configured generator for an answer. Without a generator, or when it
fails, the retrieved context is printed with the reason the answer is
missing.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askOpts.topK, "top-k", "k", 0, "number of chunks (default: configured)")
	askCmd.Flags().BoolVar(&askOpts.retrieveOnly, "retrieve-only", false, "print the retrieved chunks without generating")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	var svc *rag.Service
	return runOnce(cmd, answering, func(ctx context.Context) error {
		if askOpts.retrieveOnly {
			r, err := svc.Retrieve(ctx, args[0], args[1], askOpts.topK)
			if err != nil {
				return err
			}
			return printResult(cmd, r, func() { printRetrieval(cmd, r) })
		}

		answer, err := svc.Answer(ctx, rag.AnswerRequest{
			DocumentID: args[0],
			Question:   args[1],
			TopK:       askOpts.topK,
		})
		if err != nil {
			return err
		}
		return printResult(cmd, answer, func() {
			if answer.Degraded {
				cmd.Printf("No answer: %s\n\n", answer.DegradedReason)
			} else {
				cmd.Println(answer.Text)
				cmd.Println()
			}
			printRetrieval(cmd, answer.Context)
		})
	}, &svc)
}

func printRetrieval(cmd *cobra.Command, r rag.Retrieval) {
	note := ""
	if r.FallbackUsed {
		note = " (fallback)"
	}
	cmd.Printf("Context from %s via %s%s:\n", r.DocumentID, r.Encoder, note)
	for _, c := range r.Chunks {
		cmd.Printf("  #%d (%.3f) %s\n", c.Ordinal, c.Similarity, c.Text)
	}
}
