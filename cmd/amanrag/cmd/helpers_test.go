package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// offlineProject creates a project that needs no network: static embeddings
// and extractive answers. User config is isolated from the host.
func offlineProject(t *testing.T, docs map[string]string) string {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AMANRAG_EMBED_PROVIDER", "static")
	t.Setenv("AMANRAG_LLM_PROVIDER", "extractive")

	dir := t.TempDir()
	for name, content := range docs {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

var handbook = map[string]string{
	"policies/refunds.md": "# Refunds\n\nRefunds are issued within 14 days of purchase. " +
		"Customers must include the original receipt with every refund request.\n",
	"policies/shipping.md": "# Shipping\n\nStandard shipping takes five business days. " +
		"Express shipping arrives the next business day.\n",
	"notes.txt": "The office is closed on public holidays.\n",
}
