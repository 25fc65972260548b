package mcp

import (
	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/query"
)

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question        string   `json:"question" jsonschema:"the question to answer from the indexed documents"`
	Sources         []string `json:"sources,omitempty" jsonschema:"only use passages from these exact source paths"`
	SourcePrefix    string   `json:"source_prefix,omitempty" jsonschema:"only use passages whose source path starts with this prefix"`
	MustInclude     []string `json:"must_include,omitempty" jsonschema:"keywords a passage must contain (case-insensitive)"`
	MustIncludeMode string   `json:"must_include_mode,omitempty" jsonschema:"how must_include keywords combine: all (default) or any"`
	Debug           bool     `json:"debug,omitempty" jsonschema:"include retrieval diagnostics in the response"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer  string           `json:"answer" jsonschema:"the generated answer"`
	Sources []string         `json:"sources" jsonschema:"citation ids of the passages used, in context order"`
	Debug   *query.DebugInfo `json:"debug,omitempty" jsonschema:"retrieval diagnostics, present when debug was requested"`
}

// ReindexInput defines the input schema for the reindex tool.
type ReindexInput struct {
	Mode string `json:"mode,omitempty" jsonschema:"incremental (default) applies only changed chunks; full rebuilds the collection"`
}

// ReindexOutput defines the output schema for the reindex tool.
type ReindexOutput struct {
	Mode          string `json:"mode"`
	ChunksCount   int    `json:"chunks_count" jsonschema:"chunks in the corpus after the run"`
	Added         int    `json:"added" jsonschema:"chunks embedded and written"`
	Deleted       int    `json:"deleted" jsonschema:"stale chunks removed"`
	DurationMS    int64  `json:"duration_ms"`
	DeleteWarning string `json:"delete_warning,omitempty" jsonschema:"set when stale chunks could not be removed"`
}

// StatusInput defines the input schema for the status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the status tool.
type StatusOutput struct {
	Index    IndexInfo     `json:"index"`
	Caches   cache.Stats   `json:"caches"`
	Embedder EmbeddingInfo `json:"embedder"`
}

// IndexInfo contains information about the persisted index.
type IndexInfo struct {
	Collection     string `json:"collection"`
	ManifestChunks int    `json:"manifest_chunks"`
	StoreRows      int    `json:"store_rows"`
	Initialized    bool   `json:"initialized"`
	Locked         bool   `json:"locked" jsonschema:"true while another index run is in progress"`
}

// EmbeddingInfo describes the active embedding model.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// toAskOptions converts tool input into engine options.
func toAskOptions(in AskInput) (query.Options, error) {
	mode, err := query.ParseMustIncludeMode(in.MustIncludeMode)
	if err != nil {
		return query.Options{}, err
	}
	return query.Options{
		Filters: query.Filters{
			Sources:      in.Sources,
			SourcePrefix: in.SourcePrefix,
		},
		MustInclude:     in.MustInclude,
		MustIncludeMode: mode,
		Debug:           in.Debug,
	}, nil
}

// toAskOutput converts an engine answer. Sources is never nil.
func toAskOutput(a *query.Answer) AskOutput {
	sources := a.Sources
	if sources == nil {
		sources = []string{}
	}
	return AskOutput{Answer: a.Answer, Sources: sources, Debug: a.Debug}
}

func toReindexOutput(r *index.Result) ReindexOutput {
	return ReindexOutput{
		Mode:          string(r.Mode),
		ChunksCount:   r.ChunksCount,
		Added:         r.Added,
		Deleted:       r.Deleted,
		DurationMS:    r.Duration.Milliseconds(),
		DeleteWarning: r.DeleteWarning,
	}
}

func toIndexInfo(st *index.Status) IndexInfo {
	return IndexInfo{
		Collection:     st.Collection,
		ManifestChunks: st.ManifestChunks,
		StoreRows:      st.StoreRows,
		Initialized:    st.Initialized,
		Locked:         st.Locked,
	}
}
