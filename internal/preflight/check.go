package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status as its name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// ProbeTimeout bounds each provider probe.
const ProbeTimeout = 15 * time.Second

// Embedder is the part of embed.Service the probe needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Generator is the part of llm.Service the probe needs.
type Generator interface {
	Generate(ctx context.Context, instructions, input string) (string, error)
	ModelName() string
}

// Counter reports the number of stored rows. *search.HybridStore implements it.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Dependencies are the components under test. Nil members are skipped.
type Dependencies struct {
	Embedder  Embedder
	Generator Generator
	Store     Counter
}

// Checker performs preflight validation checks.
type Checker struct {
	dataDir string
	deps    Dependencies
}

// New creates a Checker for the given data directory.
func New(dataDir string, deps Dependencies) *Checker {
	return &Checker{dataDir: dataDir, deps: deps}
}

// RunAll runs every applicable check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckWritePermissions(),
		c.CheckDiskSpace(),
		c.CheckFileDescriptors(),
	}
	if c.deps.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx))
	}
	if c.deps.Generator != nil {
		results = append(results, c.CheckGenerator(ctx))
	}
	if c.deps.Store != nil {
		results = append(results, c.CheckCollection(ctx))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckWritePermissions creates the data directory if needed and writes a
// probe file into it.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", c.dataDir, err)
		return result
	}

	probe := filepath.Join(c.dataDir, ".preflight-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = c.dataDir
	return result
}

// CheckEmbedder embeds one short text.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	vecs, err := c.deps.Embedder.Embed(ctx, []string{"preflight"})
	if err != nil {
		result.Status = StatusFail
		msg, hint := describe(err)
		result.Message = fmt.Sprintf("%s: %s", c.deps.Embedder.ModelName(), msg)
		result.Details = hint
		return result
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned no vector", c.deps.Embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", c.deps.Embedder.ModelName(), len(vecs[0]))
	return result
}

// CheckGenerator asks the generator for a one-word reply. Retrieval still
// works without it, so failures only warn.
func (c *Checker) CheckGenerator(ctx context.Context) CheckResult {
	result := CheckResult{Name: "generator", Required: false}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	if _, err := c.deps.Generator.Generate(ctx, "Reply with OK.", "ping"); err != nil {
		result.Status = StatusWarn
		msg, hint := describe(err)
		result.Message = fmt.Sprintf("%s: %s", c.deps.Generator.ModelName(), msg)
		result.Details = hint
		return result
	}

	result.Status = StatusPass
	result.Message = c.deps.Generator.ModelName()
	return result
}

// CheckCollection reports whether the collection has been built.
func (c *Checker) CheckCollection(ctx context.Context) CheckResult {
	result := CheckResult{Name: "collection", Required: false}

	n, err := c.deps.Store.Count(ctx)
	var aerr *amanerrors.AmanError
	switch {
	case errors.As(err, &aerr) && aerr.Code == amanerrors.ErrCodeNotInitialized:
		result.Status = StatusWarn
		result.Message = "not built yet"
		result.Details = "Run 'amanrag index'"
	case err != nil:
		result.Status = StatusWarn
		result.Message, result.Details = describe(err)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d chunks", n)
	}
	return result
}

// describe splits an error into its message and suggestion.
func describe(err error) (msg, hint string) {
	var aerr *amanerrors.AmanError
	if errors.As(err, &aerr) {
		return aerr.Message, aerr.Suggestion
	}
	return err.Error(), ""
}
