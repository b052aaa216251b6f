package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/lexgraph/v1/chunking"
	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/embedding"
	"github.com/Aleph-Alpha/lexgraph/v1/jobs"
)

var ingestOpts struct {
	id           string
	caseNumber   string
	court        string
	legalArea    string
	documentType string
	parties      []string
	decided      string
	filed        string
	inline       bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Store documents, split them into chunks and embed them",
	Long: `Stores each file as a pending document with its chunks and enqueues an
embedding job for all of them. With --inline the documents are embedded in
this process instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestOpts.id, "id", "", "document id (single file only; default: random)")
	f.StringVar(&ingestOpts.caseNumber, "case-number", "", "case number")
	f.StringVar(&ingestOpts.court, "court", "", "court")
	f.StringVar(&ingestOpts.legalArea, "legal-area", "", "legal area")
	f.StringVar(&ingestOpts.documentType, "document-type", "", "document type")
	f.StringSliceVar(&ingestOpts.parties, "party", nil, "party names (repeatable)")
	f.StringVar(&ingestOpts.decided, "decided", "", "decision date, YYYY-MM-DD")
	f.StringVar(&ingestOpts.filed, "filed", "", "filing date, YYYY-MM-DD")
	f.BoolVar(&ingestOpts.inline, "inline", false, "embed in this process instead of enqueueing a job")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, files []string) error {
	if ingestOpts.id != "" && len(files) > 1 {
		return errors.New("--id needs exactly one file")
	}
	meta, err := ingestMetadata()
	if err != nil {
		return err
	}

	var (
		repo    corpus.Repository
		chunker *chunking.Chunker
	)
	store := func(ctx context.Context) ([]string, error) {
		ids := make([]string, 0, len(files))
		for _, path := range files {
			text, err := os.ReadFile(path)
			if err != nil {
				return ids, err
			}
			id := ingestOpts.id
			if id == "" {
				id = uuid.NewString()
			}
			doc := corpus.Document{ID: id, Text: string(text), Metadata: meta, Status: corpus.StatusPending}
			if err := repo.SaveDocument(ctx, doc, chunker.Split(id, doc.Text)); err != nil {
				return ids, fmt.Errorf("save %s: %w", path, err)
			}
			cmd.Printf("stored %s as %s\n", path, id)
			ids = append(ids, id)
		}
		return ids, nil
	}

	if ingestOpts.inline {
		var indexer *embedding.Indexer
		return runOnce(cmd, core, func(ctx context.Context) error {
			ids, err := store(ctx)
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range ids {
				if err := indexer.IndexDocument(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("embed %s: %w", id, err))
					continue
				}
				cmd.Printf("embedded %s\n", id)
			}
			return errors.Join(errs...)
		}, &repo, &chunker, &indexer)
	}

	var dispatcher *jobs.Dispatcher
	return runOnce(cmd, queue, func(ctx context.Context) error {
		ids, err := store(ctx)
		if err != nil {
			return err
		}
		handle, err := dispatcher.EnqueueEmbedding(ctx, ids)
		if err != nil {
			return err
		}
		return printResult(cmd, handle, func() { printHandle(cmd, handle) })
	}, &repo, &chunker, &dispatcher)
}

func ingestMetadata() (corpus.Metadata, error) {
	meta := corpus.Metadata{
		CaseNumber:   ingestOpts.caseNumber,
		Court:        ingestOpts.court,
		LegalArea:    ingestOpts.legalArea,
		DocumentType: ingestOpts.documentType,
		Parties:      ingestOpts.parties,
	}
	var err error
	if meta.DecisionDate, err = parseDate(ingestOpts.decided); err != nil {
		return meta, fmt.Errorf("--decided: %w", err)
	}
	if meta.FiledDate, err = parseDate(ingestOpts.filed); err != nil {
		return meta, fmt.Errorf("--filed: %w", err)
	}
	return meta, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func printHandle(cmd *cobra.Command, h jobs.Handle) {
	cmd.Printf("queued %s job %s (estimated %s)\n", h.Type, h.JobID, h.EstimatedDuration)
}
