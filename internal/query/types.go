// Package query answers questions from the indexed corpus: it augments the
// question, retrieves with multi-variant hybrid search, applies hard
// constraints, picks a diverse context and generates a grounded answer.
package query

import (
	"fmt"
	"strings"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Retrieval and selection defaults.
const (
	DefaultTopK         = 8
	DefaultContextK     = 6
	DefaultExpandFactor = 4
	DefaultRRFK         = 60
	DefaultLambda       = 0.8
	DefaultMinKeep      = 0.1
	DefaultMaxRewrites  = 3
)

// NoMatchAnswer is returned when constraints leave no passages.
const NoMatchAnswer = "No matching passages were found in the indexed documents for the given filters."

// Config tunes the engine. Zero fields take defaults.
type Config struct {
	TopK         int     // Caller-visible hit limit per variant
	ContextK     int     // Maximum passages in the answer context
	ExpandFactor int     // Over-fetch multiplier applied before filtering
	RRFK         int     // RRF smoothing constant
	Lambda       float64 // Relevance weight in diversity selection, (0,1]
	MinKeep      float64 // Minimum marginal relevance to keep a passage
	MaxRewrites  int     // Query rewrites requested during augmentation

	// NormalizeScores divides fused scores by the best score before the
	// diversity rule compares them with MinKeep.
	NormalizeScores bool

	// DisableAugmentation skips rewrites and hypothetical answers.
	DisableAugmentation bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		TopK:         DefaultTopK,
		ContextK:     DefaultContextK,
		ExpandFactor: DefaultExpandFactor,
		RRFK:         DefaultRRFK,
		Lambda:       DefaultLambda,
		MinKeep:      DefaultMinKeep,
		MaxRewrites:  DefaultMaxRewrites,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.ContextK <= 0 {
		c.ContextK = d.ContextK
	}
	if c.ExpandFactor <= 0 {
		c.ExpandFactor = d.ExpandFactor
	}
	if c.RRFK <= 0 {
		c.RRFK = d.RRFK
	}
	if c.Lambda <= 0 {
		c.Lambda = d.Lambda
	}
	if c.MinKeep == 0 {
		c.MinKeep = d.MinKeep
	}
	if c.MaxRewrites <= 0 {
		c.MaxRewrites = d.MaxRewrites
	}
	return c
}

// MustIncludeMode controls how MustInclude keywords combine.
type MustIncludeMode string

const (
	MustIncludeAll MustIncludeMode = "all"
	MustIncludeAny MustIncludeMode = "any"
)

// ParseMustIncludeMode parses a mode. Empty means all.
func ParseMustIncludeMode(s string) (MustIncludeMode, error) {
	switch m := MustIncludeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MustIncludeAll, nil
	case MustIncludeAll, MustIncludeAny:
		return m, nil
	default:
		return "", amanerrors.ValidationError(fmt.Sprintf("unknown mustIncludeMode %q", s), nil).
			WithSuggestion("use all or any")
	}
}

// Filters restrict which sources may appear in the context. When both
// fields are set a passage must satisfy both.
type Filters struct {
	Sources      []string `json:"sources,omitempty"`
	SourcePrefix string   `json:"sourcePrefix,omitempty"`
}

// Options are per-request constraints.
type Options struct {
	Filters         Filters         `json:"filters"`
	MustInclude     []string        `json:"mustInclude,omitempty"`
	MustIncludeMode MustIncludeMode `json:"mustIncludeMode,omitempty"`
	Debug           bool            `json:"debug,omitempty"`
}

// Answer is the result of Ask.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []string   `json:"sources"`
	Debug   *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo explains how an answer was produced.
type DebugInfo struct {
	RequestID           string         `json:"requestId"`
	Variants            []string       `json:"variants"`
	AugmentationSkipped bool           `json:"augmentationSkipped"`
	EmbeddingCacheHits  int            `json:"embeddingCacheHits"`
	Candidates          int            `json:"candidates"`
	AfterFilters        int            `json:"afterFilters"`
	Selected            []SelectedHit  `json:"selected"`
	AnswerCached        bool           `json:"answerCached"`
	TimingsMS           map[string]int `json:"timingsMs"`
}

// SelectedHit is one passage chosen for the context.
type SelectedHit struct {
	CitationID string  `json:"citationId"`
	Score      float64 `json:"score"`
}
