package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/jobs"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/topics"
)

var clusterOpts struct {
	inline bool
	list   bool
	family string
	topK   int
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Regenerate the density clustering of the corpus",
	Long: `Enqueues a clustering job and prints its handle. A run already in progress
for the density family rejects the request. With --inline the run executes
in this process and its record is printed.`,
	Args: cobra.NoArgs,
	RunE: runCluster,
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Regenerate the topic overlay or list the active topics",
	Args:  cobra.NoArgs,
	RunE:  runTopics,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the 2-D graph of the active run of a family",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the state of a background job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	clusterCmd.Flags().BoolVar(&clusterOpts.inline, "inline", false, "run in this process instead of enqueueing a job")

	topicsCmd.Flags().BoolVar(&clusterOpts.inline, "inline", false, "run in this process instead of enqueueing a job")
	topicsCmd.Flags().BoolVar(&clusterOpts.list, "list", false, "list the topics of the active run")

	graphCmd.Flags().StringVar(&clusterOpts.family, "family", string(runstore.FamilyDensity), "run family: density or topic")
	graphCmd.Flags().IntVar(&clusterOpts.topK, "top-k", 0, "similarity edges per node (default: configured)")

	rootCmd.AddCommand(clusterCmd, topicsCmd, graphCmd, statusCmd)
}

func runCluster(cmd *cobra.Command, _ []string) error {
	if clusterOpts.inline {
		var engine *clustering.Engine
		return runOnce(cmd, engines, func(ctx context.Context) error {
			run, err := engine.Run(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, run, func() { printRun(cmd, run) })
		}, &engine)
	}
	return trigger(cmd, (*jobs.Dispatcher).TriggerClustering)
}

func runTopics(cmd *cobra.Command, _ []string) error {
	switch {
	case clusterOpts.list:
		var overlay *topics.Overlay
		return runOnce(cmd, readers, func(ctx context.Context) error {
			list, err := overlay.Topics(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, list, func() {
				for _, t := range list {
					cmd.Printf("  %3d  %-40s %4d docs  %s\n", t.Label, t.Name, t.Size, strings.Join(t.Keywords, ", "))
				}
			})
		}, &overlay)
	case clusterOpts.inline:
		var overlay *topics.Overlay
		return runOnce(cmd, engines, func(ctx context.Context) error {
			run, err := overlay.Run(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, run, func() { printRun(cmd, run) })
		}, &overlay)
	default:
		return trigger(cmd, (*jobs.Dispatcher).TriggerTopics)
	}
}

func trigger(cmd *cobra.Command, fn func(*jobs.Dispatcher, context.Context) (jobs.Handle, error)) error {
	var dispatcher *jobs.Dispatcher
	return runOnce(cmd, queue, func(ctx context.Context) error {
		handle, err := fn(dispatcher, ctx)
		if err != nil {
			return err
		}
		return printResult(cmd, handle, func() { printHandle(cmd, handle) })
	}, &dispatcher)
}

func runGraph(cmd *cobra.Command, _ []string) error {
	family := runstore.Family(clusterOpts.family)
	if !family.Valid() {
		return fmt.Errorf("unknown family %q", clusterOpts.family)
	}

	var engine *clustering.Engine
	return runOnce(cmd, readers, func(ctx context.Context) error {
		g, err := engine.Graph(ctx, family, clusterOpts.topK)
		if err != nil {
			return err
		}
		return printResult(cmd, g, func() {
			cmd.Printf("run %s (%s, %s) %d documents, %d edges\n",
				g.Metadata.RunID, g.Metadata.Algorithm, g.Metadata.Encoder, len(g.Nodes), len(g.Edges))
			for _, s := range g.ClusterStats {
				cmd.Printf("  cluster %3d  %4d docs\n", s.Label, s.Size)
			}
		})
	}, &engine)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var tracker jobs.Tracker
	return runOnce(cmd, tracking, func(ctx context.Context) error {
		st, err := tracker.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, st, func() {
			cmd.Printf("%s job %s: %s after %d attempt(s)\n", st.Type, st.JobID, st.State, st.Attempts)
			if st.Reason != "" {
				cmd.Printf("  reason: %s\n", st.Reason)
			}
			if st.RunID != "" {
				cmd.Printf("  run: %s\n", st.RunID)
			}
			if st.Detail != "" {
				cmd.Printf("  %s\n", st.Detail)
			}
		})
	}, &tracker)
}

func printRun(cmd *cobra.Command, run runstore.Run) {
	cmd.Printf("run %s (%s) %s: %d documents, %d clusters\n", run.ID, run.Family, run.Status, run.DocumentCount, len(run.Stats))
	if run.Reason != "" {
		cmd.Printf("  reason: %s\n", run.Reason)
	}
}
