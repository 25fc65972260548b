// Package cmd provides the CLI commands for AmanRAG.
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Persistent flags
var (
	projectDir  string
	debugMode   bool
	profileOpts profiling.Options
)

// NewRootCmd creates the root command for amanrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Retrieval-augmented answers over your documents",
		Long: `AmanRAG indexes a folder of documents and answers questions from them.

Indexing is incremental: only changed chunks are embedded and written.
Questions are answered with hybrid (vector + keyword) retrieval, fused with
Reciprocal Rank Fusion and diversified before generation.

Run 'amanrag init' in a project, then 'amanrag index' and 'amanrag ask'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&profileOpts.CPUProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.MemProfile, "memprofile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "trace", "", "Write an execution trace to this file")
	for _, name := range []string{"cpuprofile", "memprofile", "trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	var session *profiling.Session
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		if !profileOpts.Enabled() {
			return nil
		}
		var err error
		session, err = profiling.Start(profileOpts)
		return err
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if session == nil {
			return nil
		}
		return session.Stop()
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware cancellation and prints
// AmanErrors with their suggestion.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(root.ErrOrStderr(), amanerrors.FormatForCLI(err))
	}
	return err
}

// redactURI hides credentials in connection strings before logging.
func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
