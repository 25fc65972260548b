package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/configs"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/fsutil"
	"github.com/Aman-CERP/amanrag/internal/output"
)

// initOptions holds CLI flags for init.
type initOptions struct {
	force         bool
	embedProvider string
	llmProvider   string
	storeURI      string
	collection    string
}

// generated reports whether any setting was given on the command line, in
// which case a full config is written instead of the commented template.
func (o initOptions) generated() bool {
	return o.embedProvider != "" || o.llmProvider != "" || o.storeURI != "" || o.collection != ""
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize AmanRAG for a project",
		Long: `Initialize AmanRAG in the project directory.

This command:
1. Writes .amanrag.yaml (a commented template, or a complete file when
   provider or store flags are given)
2. Adds the .amanrag/ data directory to .gitignore

Run 'amanrag index' afterwards to build the index.`,
		Example: `  amanrag init
  amanrag init --embed-provider static --llm-provider extractive
  amanrag init --store-uri postgres://rag@localhost:5432/rag --collection handbook
  amanrag init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite existing configuration (a backup is kept)")
	cmd.Flags().StringVar(&opts.embedProvider, "embed-provider", "", "Embedding provider: ollama, openai or static")
	cmd.Flags().StringVar(&opts.llmProvider, "llm-provider", "", "Generation provider: ollama, openai, bedrock or extractive")
	cmd.Flags().StringVar(&opts.storeURI, "store-uri", "", "Storage URI (local://<dir> or postgres://...)")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "Collection name")

	return cmd
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	out := output.New(cmd.OutOrStdout())

	root, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}
	out.Status("", "Initializing AmanRAG in "+root)

	path := filepath.Join(root, config.ProjectFileName)
	if _, err := os.Stat(path); err == nil && !opts.force {
		out.Warningf("%s already exists", config.ProjectFileName)
		out.Status("", "Use --force to overwrite it (a backup is kept)")
		return nil
	}

	var backup string
	if opts.generated() {
		cfg := config.NewConfig()
		if opts.embedProvider != "" {
			cfg.Embed.Provider = opts.embedProvider
		}
		if opts.llmProvider != "" {
			cfg.LLM.Provider = opts.llmProvider
		}
		if opts.storeURI != "" {
			cfg.Store.URI = opts.storeURI
		}
		if opts.collection != "" {
			cfg.Store.Collection = opts.collection
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if backup, err = config.WriteProjectConfig(root, cfg); err != nil {
			return err
		}
	} else {
		if backup, err = config.BackupFile(path); err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", config.ProjectFileName, err)
		}
	}

	out.Successf("Wrote %s", config.ProjectFileName)
	if backup != "" {
		out.KeyValue("backup", backup)
	}

	added, err := ensureGitignore(root)
	if err != nil {
		out.Warningf("Could not update .gitignore: %v", err)
	} else if added {
		out.Successf("Added %s/ to .gitignore", config.DefaultDataDir)
	}

	out.Status("", "Next: amanrag index, then amanrag ask \"<question>\"")
	return nil
}

// hasDataDirIgnore reports whether a .gitignore already ignores the data directory.
func hasDataDirIgnore(content string) bool {
	patterns := []string{
		config.DefaultDataDir,
		config.DefaultDataDir + "/",
		"/" + config.DefaultDataDir,
		"/" + config.DefaultDataDir + "/",
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, p := range patterns {
			if line == p {
				return true
			}
		}
	}
	return false
}

// ensureGitignore adds the data directory to .gitignore if not present.
// Returns (true, nil) if added, (false, nil) if already present.
func ensureGitignore(projectRoot string) (bool, error) {
	gitignorePath := filepath.Join(projectRoot, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading .gitignore: %w", err)
	}
	if hasDataDirIgnore(string(content)) {
		return false, nil
	}

	// Match existing line endings.
	lineEnding := "\n"
	if bytes.Contains(content, []byte("\r\n")) {
		lineEnding = "\r\n"
	}
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, lineEnding...)
	}

	entry := "# AmanRAG index data (auto-generated)" + lineEnding + config.DefaultDataDir + "/" + lineEnding
	if len(content) > 0 {
		entry = lineEnding + entry
	}
	content = append(content, entry...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return false, fmt.Errorf("writing .gitignore: %w", err)
	}
	return true, nil
}
