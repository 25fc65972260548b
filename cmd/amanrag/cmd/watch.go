package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var poll bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reindex incrementally when documents change",
		Long: `Watch corpus.dir and run an incremental index after each burst of
changes settles (watch.debounce).

An initial incremental run brings the index up to date before watching.
Changes to .amanrag.yaml or .amanragignore require a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd, poll)
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "Use polling instead of filesystem notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, poll bool) error {
	a, err := openApp(ctx, projectDir, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())

	res, err := a.indexer.Run(ctx, index.ModeIncremental)
	if err != nil {
		return err
	}
	out.Successf("Index up to date (%d chunks, %d added, %d deleted)", res.ChunksCount, res.Added, res.Deleted)

	w, err := watcher.New(a.cfg.Corpus.Dir, a.loader, watcher.Options{
		Debounce:     a.cfg.Watch.Debounce,
		ForcePolling: poll,
	})
	if err != nil {
		return err
	}

	runner := watcher.NewRunner(w, a.indexer)
	runner.OnBatch(func(b watcher.Batch) {
		paths := make([]string, 0, len(b.Events))
		for _, e := range b.Events {
			paths = append(paths, e.Path)
		}
		if b.Err != nil {
			out.Errorf("Reindex failed after changes to %s", strings.Join(paths, ", "))
			out.Status("", strings.TrimSpace(amanerrors.FormatForCLI(b.Err)))
			return
		}
		out.Successf("Reindexed %d changed path(s): +%d -%d chunks", len(paths), b.Result.Added, b.Result.Deleted)
		if b.Result.DeleteWarning != "" {
			out.Warningf("%s", b.Result.DeleteWarning)
		}
	})

	out.Status("", "Watching "+w.Root()+" ("+w.Mode()+"). Press Ctrl+C to stop.")
	return runner.Run(ctx)
}
