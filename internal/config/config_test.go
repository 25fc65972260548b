package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// isolate points the user config at an empty directory and clears every
// AMANRAG_* variable the tests touch.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{
		"RRF_K", "EMBED_PROVIDER", "EMBED_MODEL", "STORE_URI", "LAMBDA",
		"CHUNK_SIZE", "CACHE_BACKEND", "REDIS_URL", "DATA_DIR", "WATCH_DEBOUNCE",
		"DISABLE_AUGMENTATION", "NORMALIZE_SCORES",
	} {
		t.Setenv(EnvPrefix+name, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1000, cfg.Chunk.Size)
	assert.Equal(t, 150, cfg.Chunk.Overlap)
	assert.Equal(t, 8, cfg.Search.TopK)
	assert.Equal(t, 6, cfg.Search.ContextK)
	assert.Equal(t, 4, cfg.Search.ExpandFactor)
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 0.8, cfg.Search.Lambda)
	assert.Equal(t, 0.1, cfg.Search.MinKeep)
	assert.False(t, cfg.Search.NormalizeScores, "raw fused scores by default")
	assert.Equal(t, "ollama", cfg.Embed.Provider)
	assert.Equal(t, "", cfg.Embed.Model)
	assert.Equal(t, 64, cfg.Embed.BatchSize)
	assert.Equal(t, "docs", cfg.Store.Collection)
	assert.Equal(t, "sqlite", cfg.Store.KeywordBackend)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Contains(t, cfg.Corpus.Exclude, ".git/")

	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Load precedence
// =============================================================================

func TestLoad_NoFiles_UsesDefaultsWithAbsolutePaths(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Corpus.Dir)
	assert.Equal(t, filepath.Join(dir, DefaultDataDir), cfg.DataDir)
	assert.Equal(t, "local://"+filepath.Join(dir, DefaultDataDir, "store"), cfg.StoreURI())
	assert.Equal(t, filepath.Join(dir, DefaultDataDir, "manifest.json"), cfg.ManifestPath())
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	isolate(t)
	writeFile(t, GetUserConfigPath(), "search:\n  rrf_k: 30\n  top_k: 5\n")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "search:\n  rrf_k: 90\n  normalize_scores: true\nstore:\n  collection: kb\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Search.RRFK, "project beats user")
	assert.Equal(t, 5, cfg.Search.TopK, "user value survives")
	assert.Equal(t, "kb", cfg.Store.Collection)
	assert.True(t, cfg.QueryConfig().NormalizeScores)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "search:\n  rrf_k: 90\n")
	t.Setenv("AMANRAG_RRF_K", "42")
	t.Setenv("AMANRAG_EMBED_PROVIDER", "static")
	t.Setenv("AMANRAG_STORE_URI", "postgres://u@localhost/db")
	t.Setenv("AMANRAG_LAMBDA", "0.5")
	t.Setenv("AMANRAG_WATCH_DEBOUNCE", "2s")
	t.Setenv("AMANRAG_NORMALIZE_SCORES", "1")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.RRFK)
	assert.Equal(t, "static", cfg.Embed.Provider)
	assert.Equal(t, "postgres://u@localhost/db", cfg.StoreURI())
	assert.Equal(t, 0.5, cfg.Search.Lambda)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.True(t, cfg.Search.NormalizeScores)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EnvFileName), "AMANRAG_RRF_K=11\nAMANRAG_CHUNK_SIZE=500\n")
	t.Setenv("AMANRAG_RRF_K", "77")
	// godotenv only fills unset variables; "" counts as set, so unset it.
	require.NoError(t, os.Unsetenv("AMANRAG_CHUNK_SIZE"))
	t.Cleanup(func() { _ = os.Unsetenv("AMANRAG_CHUNK_SIZE") })

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 77, cfg.Search.RRFK)
	assert.Equal(t, 500, cfg.Chunk.Size)
}

func TestLoad_ExcludeMergesWithDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "corpus:\n  exclude:\n    - drafts/\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Contains(t, cfg.Corpus.Exclude, "drafts/")
	assert.Contains(t, cfg.Corpus.Exclude, ".git/")
}

func TestLoad_DurationsParseFromYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "retry:\n  initial_delay: 250ms\n  max_delay: 3s\nllm:\n  timeout: 45s\n")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 3*time.Second, cfg.RetryPolicy().MaxDelay)
	assert.Equal(t, 45*time.Second, cfg.LLMConfig().Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		env     map[string]string
	}{
		{name: "malformed yaml", project: "search: [unclosed\n"},
		{name: "wrong type", project: "search:\n  rrf_k: lots\n"},
		{name: "bad env int", env: map[string]string{"AMANRAG_RRF_K": "sixty"}},
		{name: "bad env float", env: map[string]string{"AMANRAG_LAMBDA": "high"}},
		{name: "invalid after merge", project: "chunk:\n  size: 100\n  overlap: 100\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			dir := t.TempDir()
			if tt.project != "" {
				writeFile(t, filepath.Join(dir, ProjectFileName), tt.project)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(dir)

			require.Error(t, err)
			assert.Equal(t, amanerrors.CategoryConfig, amanerrors.GetCategory(err))
		})
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunk.Size = 0 }},
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }},
		{"zero batch", func(c *Config) { c.Embed.BatchSize = 0 }},
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }},
		{"lambda above one", func(c *Config) { c.Search.Lambda = 1.5 }},
		{"lambda zero", func(c *Config) { c.Search.Lambda = 0 }},
		{"negative min_keep", func(c *Config) { c.Search.MinKeep = -0.1 }},
		{"jitter above one", func(c *Config) { c.Retry.Jitter = 2 }},
		{"bad collection", func(c *Config) { c.Store.Collection = "drop table" }},
		{"bad keyword backend", func(c *Config) { c.Store.KeywordBackend = "lucene" }},
		{"bad embed provider", func(c *Config) { c.Embed.Provider = "cohere" }},
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "claude-local" }},
		{"negative max_tokens", func(c *Config) { c.LLM.MaxTokens = -1 }},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis without url", func(c *Config) { c.Cache.Backend = "redis" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, amanerrors.ErrCodeConfigInvalid, amanerrors.GetCode(err))
		})
	}
}

func TestValidate_AcceptsKnownAlternatives(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.KeywordBackend = "BLEVE"
	cfg.Embed.Provider = "openai"
	cfg.LLM.Provider = "bedrock"
	cfg.LLM.Region = "eu-central-1"
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = "redis://localhost:6379/0"
	cfg.Search.Lambda = 1

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, store.KeywordBackendBleve, cfg.StoreOptions().KeywordBackend)
}

// =============================================================================
// Component views
// =============================================================================

func TestViews_CarryConfiguredValues(t *testing.T) {
	cfg := NewConfig()
	cfg.resolvePaths("/srv/kb")
	cfg.Search.RRFK = 10
	cfg.Search.DisableAugmentation = true
	cfg.Embed.Provider = "Static"
	cfg.Embed.Dimensions = 32
	cfg.LLM.Region = "eu-west-1"
	cfg.LLM.MaxTokens = 512

	q := cfg.QueryConfig()
	assert.Equal(t, 10, q.RRFK)
	assert.True(t, q.DisableAugmentation)

	e := cfg.EmbedConfig()
	assert.Equal(t, "static", string(e.Provider))
	assert.Equal(t, 32, e.Dimensions)
	assert.Equal(t, cfg.Retry.MaxRetries, e.Retry.MaxRetries)

	l := cfg.LLMConfig()
	assert.Equal(t, "eu-west-1", l.Region)
	assert.Equal(t, 512, l.MaxTokens)

	assert.Equal(t, "/srv/kb/.amanrag", cfg.IndexConfig().DataDir)
	assert.Equal(t, "/srv/kb/.amanrag/cache", cfg.PersisterConfig().Dir)
	assert.Equal(t, "/srv/kb/.amanrag/logs/amanrag.log", cfg.LogConfig().FilePath)
	assert.Equal(t, int64(10<<20), cfg.CorpusOptions().MaxFileSize)
	assert.Equal(t, 1000, cfg.ChunkOptions().Size)
}

func TestCorpusOptions_ExcludesCustomDataDirInsideCorpus(t *testing.T) {
	cfg := NewConfig()
	cfg.DataDir = "var/rag"
	cfg.resolvePaths("/srv/kb")

	assert.Contains(t, cfg.CorpusOptions().Exclude, "/var/rag/")

	cfg.DataDir = "/elsewhere/rag"
	assert.NotContains(t, cfg.CorpusOptions().Exclude, "/elsewhere/rag/")
}

// =============================================================================
// Files and roots
// =============================================================================

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.TopK = 12
	cfg.Store.HNSW.M = 24

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Search.TopK)
	assert.Equal(t, 24, loaded.Store.HNSW.M)
}

func TestGetUserConfigPath_HonoursXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/amanrag/config.yaml", GetUserConfigPath())
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectFileName), "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindProjectRoot(nested)

	require.NoError(t, err)
	assert.Equal(t, root, got)
}
