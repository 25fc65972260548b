package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/query"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	sources     []string
	prefix      string
	mustInclude []string
	mode        string
	explain     bool
	jsonOutput  bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Long: `Answer a question using the indexed documents as context.

The question is expanded into rewrites and a hypothetical answer, each
variant is searched with hybrid retrieval, and the fused results are
filtered and diversified before the answer is generated.`,
		Example: `  amanrag ask "How long do refunds take?"
  amanrag ask "refund window" --prefix policies/
  amanrag ask "data retention" --must retention --must days --mode any
  amanrag ask "shipping" --source shipping.md --explain --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Only use these sources (repeatable)")
	cmd.Flags().StringVarP(&opts.prefix, "prefix", "p", "", "Only use sources under this path prefix")
	cmd.Flags().StringSliceVarP(&opts.mustInclude, "must", "m", nil, "Keyword a passage must contain (repeatable)")
	cmd.Flags().StringVar(&opts.mode, "mode", "all", "How --must keywords combine: all or any")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show variants, candidates and selected passages")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	mode, err := query.ParseMustIncludeMode(opts.mode)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, projectDir, appOptions{query: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	answer, err := a.engine.Ask(ctx, question, query.Options{
		Filters: query.Filters{
			Sources:      opts.sources,
			SourcePrefix: opts.prefix,
		},
		MustInclude:     opts.mustInclude,
		MustIncludeMode: mode,
		Debug:           opts.explain,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	out := output.New(cmd.OutOrStdout())
	out.Answer(answer.Answer, answer.Sources)
	if answer.Debug != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		printDebug(out, answer.Debug)
	}
	return nil
}

func printDebug(out *output.Writer, d *query.DebugInfo) {
	out.Heading("Retrieval")
	out.KeyValue("request", d.RequestID)
	for i, v := range d.Variants {
		out.KeyValue(fmt.Sprintf("variant %d", i), v)
	}
	if d.AugmentationSkipped {
		out.Warningf("query augmentation skipped")
	}
	out.KeyValue("candidates", d.Candidates)
	out.KeyValue("after filters", d.AfterFilters)
	out.KeyValue("cache hits", d.EmbeddingCacheHits)
	out.KeyValue("answer cached", d.AnswerCached)
	for _, h := range d.Selected {
		out.Status("", fmt.Sprintf("  %.4f  %s", h.Score, h.CitationID))
	}
}
