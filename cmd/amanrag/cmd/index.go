package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		full       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index or update the document collection",
		Long: `Chunk, embed and store the documents under corpus.dir.

By default only chunks that changed since the last run are embedded and
written, and chunks that disappeared are deleted. Use --full to rebuild the
collection from scratch, for example after changing the embedding model.`,
		Example: `  amanrag index
  amanrag index --full
  amanrag index --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := index.ModeIncremental
			if full {
				mode = index.ModeFull
			}
			return runIndex(cmd.Context(), cmd, mode, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Rebuild the collection from scratch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, mode index.Mode, jsonOutput bool) error {
	a, err := openApp(ctx, projectDir, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout())
	if !jsonOutput {
		out.Status("", fmt.Sprintf("Indexing %s (%s)", a.cfg.Corpus.Dir, mode))
		if out.Color() {
			a.indexer.OnProgress(func(p index.Progress) {
				if p.Stage == index.StageEmbed || p.Stage == index.StageStore {
					out.Progress(p.Done, p.Total, p.Stage)
				}
			})
		}
	}

	res, err := a.indexer.Run(ctx, mode)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out.Successf("Indexed %d chunks in %s", res.ChunksCount, res.Duration.Round(time.Millisecond))
	out.KeyValue("added", res.Added)
	out.KeyValue("deleted", res.Deleted)
	if res.DeleteWarning != "" {
		out.Warningf("%s", res.DeleteWarning)
	}
	return nil
}
