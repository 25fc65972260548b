package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanrag/internal/cache"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/llm"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/manifest"
	"github.com/Aman-CERP/amanrag/internal/query"
	"github.com/Aman-CERP/amanrag/internal/store"
)

const (
	// ProjectFileName is the per-project configuration file.
	ProjectFileName = ".amanrag.yaml"

	// EnvFileName is loaded from the project root before env overrides.
	EnvFileName = ".env"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "AMANRAG_"

	// DefaultDataDir is relative to the project root.
	DefaultDataDir = ".amanrag"
)

// Config represents the complete AmanRAG configuration.
type Config struct {
	Corpus  CorpusConfig  `yaml:"corpus" json:"corpus"`
	Chunk   ChunkConfig   `yaml:"chunk" json:"chunk"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Embed   EmbedConfig   `yaml:"embed" json:"embed"`
	LLM     LLMConfig     `yaml:"llm" json:"llm"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Retry   RetryConfig   `yaml:"retry" json:"retry"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`

	// DataDir holds the manifest, local store, caches, logs and lock file.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// CorpusConfig selects the documents to index.
type CorpusConfig struct {
	Dir           string   `yaml:"dir" json:"dir"`
	Extensions    []string `yaml:"extensions" json:"extensions"`
	Exclude       []string `yaml:"exclude" json:"exclude"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// ChunkConfig configures the recursive splitter. Sizes are in runes.
type ChunkConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// StoreConfig addresses the storage backend.
// URI is local://<dir>, a plain path, or postgres://...
// Empty means local storage under DataDir.
type StoreConfig struct {
	URI             string           `yaml:"uri" json:"uri"`
	Collection      string           `yaml:"collection" json:"collection"`
	KeywordBackend  string           `yaml:"keyword_backend" json:"keyword_backend"`
	MinIndexRows    int              `yaml:"min_index_rows" json:"min_index_rows"`
	RecordCacheSize int              `yaml:"record_cache_size" json:"record_cache_size"`
	HNSW            store.HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	Provider   string  `yaml:"provider" json:"provider"`
	Model      string  `yaml:"model" json:"model"`
	BaseURL    string  `yaml:"base_url" json:"base_url"`
	BatchSize  int     `yaml:"batch_size" json:"batch_size"`
	Dimensions int     `yaml:"dimensions" json:"dimensions"`
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
	CacheSize  int     `yaml:"cache_size" json:"cache_size"` // In-process LRU, negative disables
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Region      string        `yaml:"region,omitempty" json:"region,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	RatePerSec  float64       `yaml:"rate_per_sec" json:"rate_per_sec"`
}

// SearchConfig tunes retrieval and diversity selection.
type SearchConfig struct {
	TopK         int     `yaml:"top_k" json:"top_k"`
	ContextK     int     `yaml:"context_k" json:"context_k"`
	ExpandFactor int     `yaml:"expand_factor" json:"expand_factor"`
	RRFK         int     `yaml:"rrf_k" json:"rrf_k"`
	Lambda       float64 `yaml:"lambda" json:"lambda"`
	MinKeep      float64 `yaml:"min_keep" json:"min_keep"`
	MaxRewrites  int     `yaml:"max_rewrites" json:"max_rewrites"`

	// DisableAugmentation skips query rewrites and HyDE.
	DisableAugmentation bool `yaml:"disable_augmentation" json:"disable_augmentation"`

	// NormalizeScores scales fused scores to the best hit before min_keep applies.
	NormalizeScores bool `yaml:"normalize_scores" json:"normalize_scores"`
}

// CacheConfig selects where the persistent caches live.
type CacheConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Dir      string `yaml:"dir" json:"dir"`
	RedisURL string `yaml:"redis_url" json:"redis_url"`
}

// RetryConfig configures provider retries.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter       float64       `yaml:"jitter" json:"jitter"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// WatchConfig configures `amanrag watch`.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	retry := amanerrors.DefaultRetryConfig()
	return &Config{
		Corpus: CorpusConfig{
			Dir:           ".",
			Extensions:    append([]string(nil), corpus.DefaultExtensions...),
			Exclude:       append([]string(nil), corpus.DefaultExclude...),
			MaxFileSizeMB: int(corpus.DefaultMaxFileSize >> 20),
		},
		Chunk: ChunkConfig{
			Size:    chunk.DefaultChunkSize,
			Overlap: chunk.DefaultOverlap,
		},
		Store: StoreConfig{
			Collection:      "docs",
			KeywordBackend:  string(store.KeywordBackendSQLite),
			MinIndexRows:    store.DefaultOptions().MinIndexRows,
			RecordCacheSize: store.DefaultOptions().RecordCacheSize,
			HNSW:            store.DefaultHNSWConfig(),
		},
		Embed: EmbedConfig{
			Provider:  string(embed.ProviderOllama), // Model empty: provider default
			BatchSize: index.DefaultBatchSize,
			CacheSize: 1000,
		},
		LLM: LLMConfig{
			Provider:    string(llm.ProviderOllama),
			Temperature: 0.2,
			Timeout:     llm.DefaultTimeout,
		},
		Search: SearchConfig{
			TopK:         query.DefaultTopK,
			ContextK:     query.DefaultContextK,
			ExpandFactor: query.DefaultExpandFactor,
			RRFK:         query.DefaultRRFK,
			Lambda:       query.DefaultLambda,
			MinKeep:      query.DefaultMinKeep,
			MaxRewrites:  query.DefaultMaxRewrites,
		},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
		},
		Retry: RetryConfig{
			MaxRetries:   retry.MaxRetries,
			InitialDelay: retry.InitialDelay,
			MaxDelay:     retry.MaxDelay,
			Jitter:       retry.Jitter,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		DataDir: DefaultDataDir,
	}
}

// GetUserConfigPath returns the path to the user/global configuration file:
//   - $XDG_CONFIG_HOME/amanrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAML(path, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration for the project rooted at dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (<dir>/.amanrag.yaml)
//  4. <dir>/.env, which never overrides variables already set
//  5. AMANRAG_* environment variables
//
// Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	projectPath := filepath.Join(dir, ProjectFileName)
	if fileExists(projectPath) {
		var parsed Config
		if err := parseYAML(projectPath, &parsed); err != nil {
			return nil, err
		}
		cfg.mergeWith(&parsed)
	}

	if err := loadDotEnv(filepath.Join(dir, EnvFileName)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if !fileExists(path) {
		return nil
	}
	// godotenv.Load leaves variables that are already set untouched.
	if err := godotenv.Load(path); err != nil {
		return amanerrors.ConfigError(fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

func parseYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return amanerrors.New(amanerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return amanerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("check the YAML syntax and field types")
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	// Corpus
	if other.Corpus.Dir != "" {
		c.Corpus.Dir = other.Corpus.Dir
	}
	if len(other.Corpus.Extensions) > 0 {
		c.Corpus.Extensions = other.Corpus.Extensions
	}
	if len(other.Corpus.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Corpus.Exclude = append(c.Corpus.Exclude, other.Corpus.Exclude...)
	}
	if other.Corpus.MaxFileSizeMB != 0 {
		c.Corpus.MaxFileSizeMB = other.Corpus.MaxFileSizeMB
	}

	// Chunk
	if other.Chunk.Size != 0 {
		c.Chunk.Size = other.Chunk.Size
	}
	if other.Chunk.Overlap != 0 {
		c.Chunk.Overlap = other.Chunk.Overlap
	}

	// Store
	if other.Store.URI != "" {
		c.Store.URI = other.Store.URI
	}
	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.KeywordBackend != "" {
		c.Store.KeywordBackend = other.Store.KeywordBackend
	}
	if other.Store.MinIndexRows != 0 {
		c.Store.MinIndexRows = other.Store.MinIndexRows
	}
	if other.Store.RecordCacheSize != 0 {
		c.Store.RecordCacheSize = other.Store.RecordCacheSize
	}
	if other.Store.HNSW.M != 0 {
		c.Store.HNSW.M = other.Store.HNSW.M
	}
	if other.Store.HNSW.EfSearch != 0 {
		c.Store.HNSW.EfSearch = other.Store.HNSW.EfSearch
	}

	// Embed
	if other.Embed.Provider != "" {
		c.Embed.Provider = other.Embed.Provider
	}
	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.BaseURL != "" {
		c.Embed.BaseURL = other.Embed.BaseURL
	}
	if other.Embed.BatchSize != 0 {
		c.Embed.BatchSize = other.Embed.BatchSize
	}
	if other.Embed.Dimensions != 0 {
		c.Embed.Dimensions = other.Embed.Dimensions
	}
	if other.Embed.RatePerSec != 0 {
		c.Embed.RatePerSec = other.Embed.RatePerSec
	}
	if other.Embed.CacheSize != 0 {
		c.Embed.CacheSize = other.Embed.CacheSize
	}

	// LLM
	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.Region != "" {
		c.LLM.Region = other.LLM.Region
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}
	if other.LLM.RatePerSec != 0 {
		c.LLM.RatePerSec = other.LLM.RatePerSec
	}

	// Search
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.ContextK != 0 {
		c.Search.ContextK = other.Search.ContextK
	}
	if other.Search.ExpandFactor != 0 {
		c.Search.ExpandFactor = other.Search.ExpandFactor
	}
	if other.Search.RRFK != 0 {
		c.Search.RRFK = other.Search.RRFK
	}
	if other.Search.Lambda != 0 {
		c.Search.Lambda = other.Search.Lambda
	}
	if other.Search.MinKeep != 0 {
		c.Search.MinKeep = other.Search.MinKeep
	}
	if other.Search.MaxRewrites != 0 {
		c.Search.MaxRewrites = other.Search.MaxRewrites
	}
	if other.Search.DisableAugmentation {
		c.Search.DisableAugmentation = true
	}
	if other.Search.NormalizeScores {
		c.Search.NormalizeScores = true
	}

	// Cache
	if other.Cache.Backend != "" {
		c.Cache.Backend = other.Cache.Backend
	}
	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.RedisURL != "" {
		c.Cache.RedisURL = other.Cache.RedisURL
	}

	// Retry
	if other.Retry.MaxRetries != 0 {
		c.Retry.MaxRetries = other.Retry.MaxRetries
	}
	if other.Retry.InitialDelay != 0 {
		c.Retry.InitialDelay = other.Retry.InitialDelay
	}
	if other.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = other.Retry.MaxDelay
	}
	if other.Retry.Jitter != 0 {
		c.Retry.Jitter = other.Retry.Jitter
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
}

// applyEnvOverrides applies AMANRAG_* environment variable overrides.
// A malformed numeric value is a configuration error rather than being ignored.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"CORPUS_DIR":       &c.Corpus.Dir,
		"STORE_URI":        &c.Store.URI,
		"STORE_COLLECTION": &c.Store.Collection,
		"KEYWORD_BACKEND":  &c.Store.KeywordBackend,
		"EMBED_PROVIDER":   &c.Embed.Provider,
		"EMBED_MODEL":      &c.Embed.Model,
		"EMBED_BASE_URL":   &c.Embed.BaseURL,
		"LLM_PROVIDER":     &c.LLM.Provider,
		"LLM_MODEL":        &c.LLM.Model,
		"LLM_BASE_URL":     &c.LLM.BaseURL,
		"LLM_REGION":       &c.LLM.Region,
		"CACHE_BACKEND":    &c.Cache.Backend,
		"CACHE_DIR":        &c.Cache.Dir,
		"REDIS_URL":        &c.Cache.RedisURL,
		"LOG_LEVEL":        &c.Logging.Level,
		"LOG_FILE":         &c.Logging.File,
		"DATA_DIR":         &c.DataDir,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CHUNK_SIZE":       &c.Chunk.Size,
		"CHUNK_OVERLAP":    &c.Chunk.Overlap,
		"EMBED_BATCH_SIZE": &c.Embed.BatchSize,
		"EMBED_DIMENSIONS": &c.Embed.Dimensions,
		"TOP_K":            &c.Search.TopK,
		"CONTEXT_K":        &c.Search.ContextK,
		"EXPAND_FACTOR":    &c.Search.ExpandFactor,
		"RRF_K":            &c.Search.RRFK,
		"MAX_RETRIES":      &c.Retry.MaxRetries,
		"LLM_MAX_TOKENS":   &c.LLM.MaxTokens,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError(name, v, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"LAMBDA":          &c.Search.Lambda,
		"MIN_KEEP":        &c.Search.MinKeep,
		"EMBED_RATE":      &c.Embed.RatePerSec,
		"LLM_RATE":        &c.LLM.RatePerSec,
		"LLM_TEMPERATURE": &c.LLM.Temperature,
	}
	for name, dst := range floats {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = f
	}

	if v := os.Getenv(EnvPrefix + "WATCH_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("WATCH_DEBOUNCE", v, err)
		}
		c.Watch.Debounce = d
	}
	if v := os.Getenv(EnvPrefix + "DISABLE_AUGMENTATION"); v != "" {
		c.Search.DisableAugmentation = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "NORMALIZE_SCORES"); v != "" {
		c.Search.NormalizeScores = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func envError(name, value string, err error) error {
	return amanerrors.ConfigError(fmt.Sprintf("invalid %s%s=%q", EnvPrefix, name, value), err)
}

// resolvePaths makes relative paths absolute against root.
func (c *Config) resolvePaths(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.Corpus.Dir = abs(c.Corpus.Dir)
	c.DataDir = abs(c.DataDir)
	c.Cache.Dir = abs(c.Cache.Dir)
	c.Logging.File = abs(c.Logging.File)
}

// Validate validates the configuration and returns an ERR_102 error if invalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return amanerrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Chunk.Size <= 0 {
		return invalid("chunk.size must be positive, got %d", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return invalid("chunk.overlap must be in [0, chunk.size), got %d", c.Chunk.Overlap)
	}
	if c.Embed.BatchSize <= 0 {
		return invalid("embed.batch_size must be positive, got %d", c.Embed.BatchSize)
	}
	if c.Embed.Dimensions < 0 {
		return invalid("embed.dimensions must be non-negative, got %d", c.Embed.Dimensions)
	}
	if c.Search.TopK <= 0 || c.Search.ContextK <= 0 || c.Search.ExpandFactor <= 0 || c.Search.RRFK <= 0 {
		return invalid("search.top_k, context_k, expand_factor and rrf_k must be positive")
	}
	if c.Search.Lambda <= 0 || c.Search.Lambda > 1 {
		return invalid("search.lambda must be in (0, 1], got %g", c.Search.Lambda)
	}
	if c.Search.MinKeep < 0 {
		return invalid("search.min_keep must be non-negative, got %g", c.Search.MinKeep)
	}
	if c.Retry.MaxRetries < 0 {
		return invalid("retry.max_retries must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return invalid("retry.jitter must be in [0, 1], got %g", c.Retry.Jitter)
	}
	if err := store.ValidateCollection(c.Store.Collection); err != nil {
		return amanerrors.ConfigError("store.collection is invalid", err)
	}
	if _, err := store.ParseKeywordBackend(strings.ToLower(c.Store.KeywordBackend)); err != nil {
		return amanerrors.ConfigError("store.keyword_backend is invalid", err)
	}
	if _, err := embed.ParseProvider(c.Embed.Provider); err != nil {
		return amanerrors.ConfigError("embed.provider is invalid", err)
	}
	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		return amanerrors.ConfigError("llm.provider is invalid", err)
	}
	if c.LLM.MaxTokens < 0 {
		return invalid("llm.max_tokens must not be negative, got %d", c.LLM.MaxTokens)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendFile:
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return invalid("cache.redis_url is required when cache.backend is redis")
		}
	default:
		return invalid("cache.backend must be 'file' or 'redis', got %s", c.Cache.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for .amanrag.yaml, a data
// directory or a .git directory. Falls back to startDir.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		if fileExists(filepath.Join(dir, ProjectFileName)) ||
			dirExists(filepath.Join(dir, DefaultDataDir)) ||
			dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return filepath.Abs(startDir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// --- views for the components ---

// ManifestPath is where the indexed-ID manifest lives.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, manifest.FileName)
}

// StoreURI returns the configured URI, defaulting to local storage in DataDir.
func (c *Config) StoreURI() string {
	if c.Store.URI != "" {
		return c.Store.URI
	}
	return "local://" + filepath.Join(c.DataDir, "store")
}

// StoreOptions returns the backend options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		KeywordBackend:  store.KeywordBackend(strings.ToLower(c.Store.KeywordBackend)),
		MinIndexRows:    c.Store.MinIndexRows,
		HNSW:            c.Store.HNSW,
		RecordCacheSize: c.Store.RecordCacheSize,
	}
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() amanerrors.RetryConfig {
	return amanerrors.RetryConfig{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Jitter:       c.Retry.Jitter,
	}
}

// EmbedConfig returns the embedding factory configuration.
func (c *Config) EmbedConfig() embed.Config {
	return embed.Config{
		Provider:   embed.ProviderType(strings.ToLower(c.Embed.Provider)),
		Model:      c.Embed.Model,
		BaseURL:    c.Embed.BaseURL,
		BatchSize:  c.Embed.BatchSize,
		Dimensions: c.Embed.Dimensions,
		RatePerSec: c.Embed.RatePerSec,
		Retry:      c.RetryPolicy(),
		CacheSize:  c.Embed.CacheSize,
	}
}

// LLMConfig returns the generator factory configuration.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:    llm.ProviderType(strings.ToLower(c.LLM.Provider)),
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		Region:      c.LLM.Region,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
		RatePerSec:  c.LLM.RatePerSec,
		Retry:       c.RetryPolicy(),
	}
}

// QueryConfig returns the query engine configuration.
func (c *Config) QueryConfig() query.Config {
	return query.Config{
		TopK:                c.Search.TopK,
		ContextK:            c.Search.ContextK,
		ExpandFactor:        c.Search.ExpandFactor,
		RRFK:                c.Search.RRFK,
		Lambda:              c.Search.Lambda,
		MinKeep:             c.Search.MinKeep,
		MaxRewrites:         c.Search.MaxRewrites,
		DisableAugmentation: c.Search.DisableAugmentation,
		NormalizeScores:     c.Search.NormalizeScores,
	}
}

// IndexConfig returns the indexer configuration.
func (c *Config) IndexConfig() index.Config {
	return index.Config{DataDir: c.DataDir, BatchSize: c.Embed.BatchSize}
}

// ChunkOptions returns the splitter configuration.
func (c *Config) ChunkOptions() chunk.Options {
	return chunk.Options{Size: c.Chunk.Size, Overlap: c.Chunk.Overlap}
}

// CorpusOptions returns the loader configuration. The data directory is
// always excluded when it lives inside the corpus.
func (c *Config) CorpusOptions() corpus.Options {
	exclude := append([]string(nil), c.Corpus.Exclude...)
	if rel, err := filepath.Rel(c.Corpus.Dir, c.DataDir); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		exclude = append(exclude, "/"+filepath.ToSlash(rel)+"/")
	}
	return corpus.Options{
		Dir:         c.Corpus.Dir,
		Extensions:  c.Corpus.Extensions,
		Exclude:     exclude,
		MaxFileSize: int64(c.Corpus.MaxFileSizeMB) << 20,
	}
}

// PersisterConfig returns the cache persistence configuration.
func (c *Config) PersisterConfig() cache.PersisterConfig {
	dir := c.Cache.Dir
	if dir == "" {
		dir = filepath.Join(c.DataDir, "cache")
	}
	return cache.PersisterConfig{
		Backend:  strings.ToLower(c.Cache.Backend),
		Dir:      dir,
		RedisURL: c.Cache.RedisURL,
	}
}

// LogConfig returns the file logging configuration.
func (c *Config) LogConfig() logging.Config {
	file := c.Logging.File
	if file == "" {
		file = logging.LogPath(c.DataDir)
	}
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      file,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: true,
	}
}
