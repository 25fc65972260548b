package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and providers",
		Long: `Run diagnostics for the current project.

Checks:
  - Data directory is writable
  - Disk space (100MB minimum)
  - File descriptor limits (1024 minimum)
  - Embedding provider answers a probe
  - Generation provider answers a probe (warning only)
  - Collection has been built (warning only)`,
		Example: `  amanrag doctor
  amanrag doctor --verbose
  amanrag doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show suggestions for failed checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose, jsonOutput bool) error {
	a, err := openApp(ctx, projectDir, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	deps := preflight.Dependencies{Embedder: a.embedder, Store: a.store}
	if generator, err := llm.NewWithContext(ctx, a.cfg.LLMConfig()); err == nil {
		deps.Generator = generator
	}

	results := preflight.New(a.cfg.DataDir, deps).RunAll(ctx)
	status := preflight.SummaryStatus(results)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"status": status, "checks": results}); err != nil {
			return err
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		out.Heading("AmanRAG system check")
		for _, r := range results {
			line := fmt.Sprintf("%s: %s", r.Name, r.Message)
			switch r.Status {
			case preflight.StatusPass:
				out.Successf("%s", line)
			case preflight.StatusWarn:
				out.Warningf("%s", line)
			default:
				out.Errorf("%s", line)
			}
			if verbose && r.Details != "" {
				out.Status("", r.Details)
			}
		}
		out.KeyValue("status", strings.ToUpper(status))
	}

	if preflight.HasCriticalFailures(results) {
		return fmt.Errorf("doctor: %s", status)
	}
	return nil
}
