package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
)

// statusReport is the JSON shape of `amanrag status --json`.
type statusReport struct {
	Root     string       `json:"root"`
	StoreURI string       `json:"storeUri"`
	Index    index.Status `json:"index"`
	Caches   cache.Stats  `json:"caches"`
	Embedder embedderInfo `json:"embedder"`
}

type embedderInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and cache status",
		Long: `Show the collection, how many chunks the manifest and the store hold,
whether an indexing run is in progress, and the size of the query caches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	a, err := openApp(ctx, projectDir, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.indexer.Status(ctx)
	if err != nil {
		return err
	}

	persister, err := cache.OpenPersister(ctx, a.cfg.PersisterConfig())
	if err != nil {
		return err
	}
	caches := cache.Open(ctx, persister)
	stats := caches.Stats()
	_ = caches.Close()

	report := statusReport{
		Root:     a.root,
		StoreURI: redactURI(a.cfg.StoreURI()),
		Index:    *st,
		Caches:   stats,
		Embedder: embedderInfo{
			Provider:   a.cfg.Embed.Provider,
			Model:      a.embedder.ModelName(),
			Dimensions: a.embedder.Dimensions(),
		},
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printStatus(output.New(cmd.OutOrStdout()), report)
	return nil
}

func printStatus(out *output.Writer, r statusReport) {
	out.Heading("Index")
	switch {
	case r.Index.Locked:
		out.Warningf("Indexing in progress")
	case !r.Index.Initialized:
		out.Warningf("Collection %q has not been built. Run 'amanrag index'.", r.Index.Collection)
	default:
		out.Successf("Collection %q is ready", r.Index.Collection)
	}
	out.KeyValue("root", r.Root)
	out.KeyValue("store", r.StoreURI)
	out.KeyValue("manifest chunks", r.Index.ManifestChunks)
	out.KeyValue("stored rows", r.Index.StoreRows)

	out.Heading("Embedder")
	out.KeyValue("provider", r.Embedder.Provider)
	out.KeyValue("model", r.Embedder.Model)
	if r.Embedder.Dimensions > 0 {
		out.KeyValue("dimensions", r.Embedder.Dimensions)
	}

	out.Heading("Caches")
	out.KeyValue("embeddings", r.Caches.Embeddings)
	out.KeyValue("augmentations", r.Caches.Augment)
	out.KeyValue("answers", r.Caches.Answers)
}
