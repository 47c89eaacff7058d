// Package config loads codecontext configuration.
//
// Configuration is an explicit value: it is loaded once per call chain and
// passed into constructors. No component reads environment or files on its own.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/codecontext/internal/errors"
)

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".codecontext.yaml"

// Config represents the complete codecontext configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig configures which files take part in indexing.
type PathsConfig struct {
	// Ignore holds git-style patterns evaluated relative to the project root.
	// They are applied after the built-in excludes and .gitignore files.
	Ignore []string `yaml:"ignore" json:"ignore"`
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	// ChunkSize is the maximum chunk size in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the number of characters repeated across a forced split.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider and orchestrator.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "openai" or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Endpoint overrides the provider's default base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// APIKey is sent as a bearer token by the openai provider.
	APIKey     string `yaml:"api_key" json:"-"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// Parallelism bounds the number of batches in flight.
	Parallelism    int    `yaml:"parallelism" json:"parallelism"`
	MaxAttempts    int    `yaml:"max_attempts" json:"max_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay" json:"retry_base_delay"`
	Timeout        string `yaml:"timeout" json:"timeout"`
	// CacheSize is the number of query embeddings kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures hybrid search.
type SearchConfig struct {
	// RRFConstant is the k in 1/(rank + k).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	// LexicalBackend selects the term index: "sqlite" (FTS5) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
}

// StorageConfig configures where indexes and snapshots live.
type StorageConfig struct {
	// DataDir holds collections, locks and logs. Default ~/.codecontext.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// SnapshotDir holds one snapshot per project. Default <data_dir>/snapshots.
	SnapshotDir string `yaml:"snapshot_dir" json:"snapshot_dir"`
	// MetadataDriver selects the SQLite driver for chunk payloads:
	// "sqlite" (pure Go) or "sqlite3" (cgo).
	MetadataDriver string `yaml:"metadata_driver" json:"metadata_driver"`
	// OpenCollections bounds the number of collections kept open.
	OpenCollections int `yaml:"open_collections" json:"open_collections"`
}

// PerformanceConfig configures worker pools and the watcher.
type PerformanceConfig struct {
	HashWorkers   int    `yaml:"hash_workers" json:"hash_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty uses <data_dir>/logs/codecontext.log.
	File string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Ignore:      []string{},
			MaxFileSize: 1 << 20,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    2500,
			ChunkOverlap: 300,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			BatchSize:      32,
			Parallelism:    4,
			MaxAttempts:    3,
			RetryBaseDelay: "500ms",
			Timeout:        "60s",
			CacheSize:      1000,
		},
		Search: SearchConfig{
			RRFConstant:    60,
			DefaultTopK:    5,
			LexicalBackend: "sqlite",
		},
		Storage: StorageConfig{
			DataDir:         defaultDataDir(),
			MetadataDriver:  "sqlite",
			OpenCollections: 8,
		},
		Performance: PerformanceConfig{
			HashWorkers:   runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codecontext")
	}
	return filepath.Join(home, ".codecontext")
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/codecontext/config.yaml or ~/.config/codecontext/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codecontext", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codecontext", "config.yaml")
	}
	return filepath.Join(home, ".config", "codecontext", "config.yaml")
}

// Load loads configuration for a project directory.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/codecontext/config.yaml)
//  3. Project config (<dir>/.codecontext.yaml)
//  4. Environment variables (CODECONTEXT_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if dir != "" {
		projectPath := filepath.Join(dir, ProjectConfigName)
		if fileExists(projectPath) {
			if err := cfg.loadYAML(projectPath); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges non-zero values from a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err).WithDetail("path", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err).WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Ignore patterns accumulate across layers.
	c.Paths.Ignore = append(c.Paths.Ignore, other.Paths.Ignore...)
	if other.Paths.MaxFileSize != 0 {
		c.Paths.MaxFileSize = other.Paths.MaxFileSize
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	e, o := &c.Embeddings, other.Embeddings
	if o.Provider != "" {
		e.Provider = o.Provider
	}
	if o.Model != "" {
		e.Model = o.Model
	}
	if o.Endpoint != "" {
		e.Endpoint = o.Endpoint
	}
	if o.APIKey != "" {
		e.APIKey = o.APIKey
	}
	if o.Dimensions != 0 {
		e.Dimensions = o.Dimensions
	}
	if o.BatchSize != 0 {
		e.BatchSize = o.BatchSize
	}
	if o.Parallelism != 0 {
		e.Parallelism = o.Parallelism
	}
	if o.MaxAttempts != 0 {
		e.MaxAttempts = o.MaxAttempts
	}
	if o.RetryBaseDelay != "" {
		e.RetryBaseDelay = o.RetryBaseDelay
	}
	if o.Timeout != "" {
		e.Timeout = o.Timeout
	}
	if o.CacheSize != 0 {
		e.CacheSize = o.CacheSize
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}

	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.SnapshotDir != "" {
		c.Storage.SnapshotDir = other.Storage.SnapshotDir
	}
	if other.Storage.MetadataDriver != "" {
		c.Storage.MetadataDriver = other.Storage.MetadataDriver
	}
	if other.Storage.OpenCollections != 0 {
		c.Storage.OpenCollections = other.Storage.OpenCollections
	}

	if other.Performance.HashWorkers != 0 {
		c.Performance.HashWorkers = other.Performance.HashWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies CODECONTEXT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODECONTEXT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODECONTEXT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODECONTEXT_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("CODECONTEXT_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	} else if c.Embeddings.APIKey == "" && c.Embeddings.Provider == "openai" {
		c.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("CODECONTEXT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("CODECONTEXT_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("CODECONTEXT_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("CODECONTEXT_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CODECONTEXT_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("CODECONTEXT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CODECONTEXT_SNAPSHOT_DIR"); v != "" {
		c.Storage.SnapshotDir = v
	}
	if v := os.Getenv("CODECONTEXT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Chunking.ChunkSize <= 0 {
		return invalid("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return invalid("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	switch c.Embeddings.Provider {
	case "ollama", "openai", "static":
	default:
		return invalid("embeddings.provider must be 'ollama', 'openai' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return invalid("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Parallelism <= 0 {
		return invalid("embeddings.parallelism must be positive, got %d", c.Embeddings.Parallelism)
	}
	if c.Embeddings.MaxAttempts <= 0 {
		return invalid("embeddings.max_attempts must be positive, got %d", c.Embeddings.MaxAttempts)
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if _, err := parseDuration(c.Embeddings.RetryBaseDelay); err != nil {
		return invalid("embeddings.retry_base_delay: %v", err)
	}
	if _, err := parseDuration(c.Embeddings.Timeout); err != nil {
		return invalid("embeddings.timeout: %v", err)
	}

	if c.Search.RRFConstant <= 0 {
		return invalid("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > 50 {
		return invalid("search.default_top_k must be in [1, 50], got %d", c.Search.DefaultTopK)
	}
	switch c.Search.LexicalBackend {
	case "sqlite", "bleve":
	default:
		return invalid("search.lexical_backend must be 'sqlite' or 'bleve', got %q", c.Search.LexicalBackend)
	}

	if c.Storage.DataDir == "" {
		return invalid("storage.data_dir must not be empty")
	}
	switch c.Storage.MetadataDriver {
	case "sqlite", "sqlite3":
	default:
		return invalid("storage.metadata_driver must be 'sqlite' or 'sqlite3', got %q", c.Storage.MetadataDriver)
	}

	if _, err := parseDuration(c.Performance.WatchDebounce); err != nil {
		return invalid("performance.watch_debounce: %v", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// SnapshotPath returns the snapshot directory.
func (c *Config) SnapshotPath() string {
	if c.Storage.SnapshotDir != "" {
		return c.Storage.SnapshotDir
	}
	return filepath.Join(c.Storage.DataDir, "snapshots")
}

// CollectionsPath returns the directory that holds vector store collections.
func (c *Config) CollectionsPath() string {
	return filepath.Join(c.Storage.DataDir, "collections")
}

// LocksPath returns the directory that holds per-project run lock files.
func (c *Config) LocksPath() string {
	return filepath.Join(c.Storage.DataDir, "locks")
}

// LogPath returns the log file path.
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Storage.DataDir, "logs", "codecontext.log")
}

// RetryDelay returns the parsed embeddings.retry_base_delay.
func (c *Config) RetryDelay() time.Duration {
	d, _ := parseDuration(c.Embeddings.RetryBaseDelay)
	return d
}

// ProviderTimeout returns the parsed embeddings.timeout.
func (c *Config) ProviderTimeout() time.Duration {
	d, _ := parseDuration(c.Embeddings.Timeout)
	return d
}

// DebounceDuration returns the parsed performance.watch_debounce.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := parseDuration(c.Performance.WatchDebounce)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// parseDuration treats "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
