package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the evidex engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
	RetryOnce  bool   `yaml:"retry_once"`
}

// RerankConfig holds the rerank provider chain settings.
type RerankConfig struct {
	Remote RemoteRerankConfig `yaml:"remote"`
	Local  LocalRerankConfig  `yaml:"local"`
}

// RemoteRerankConfig holds the premium remote rerank provider settings.
// An empty APIKey disables the provider and the chain starts at the local model.
type RemoteRerankConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LocalRerankConfig holds the local cross-encoder settings.
type LocalRerankConfig struct {
	Endpoint   string `yaml:"endpoint"` // local scoring sidecar, empty disables
	TimeoutSec int    `yaml:"timeout_sec"`
}

// PipelineConfig holds retrieval pipeline tuning.
// Boost increments are empirically chosen defaults, kept configurable on purpose.
type PipelineConfig struct {
	IndexName          string  `yaml:"index_name"`
	MaxExpansions      int     `yaml:"max_expansions"`
	TopK               int     `yaml:"top_k"`
	MinScore           float64 `yaml:"min_score"`
	RelatedDocBoost    float64 `yaml:"related_doc_boost"`
	DocTypeBoost       float64 `yaml:"doc_type_boost"`
	SectionBoost       float64 `yaml:"section_boost"`
	ChunkTypeBoost     float64 `yaml:"chunk_type_boost"`
	MaxRelatedDocs     int     `yaml:"max_related_docs"`
	ContextCharBudget  int     `yaml:"context_char_budget"`
	EvidenceThreshold  float64 `yaml:"evidence_threshold"`
	StrongMatchScore   float64 `yaml:"strong_match_score"`
	StrongMatchMinimum int     `yaml:"strong_match_minimum"`
	VectorTimeoutSec   int     `yaml:"vector_timeout_sec"`

	CacheTTL TTLConfig `yaml:"cache_ttl"`
}

// TTLConfig holds the cache TTL classes in seconds.
type TTLConfig struct {
	ShortSec  int `yaml:"short_sec"`
	MediumSec int `yaml:"medium_sec"`
	LongSec   int `yaml:"long_sec"`
}

// LexiconConfig points at the query-understanding lookup tables.
// Missing files degrade expansion to a no-op, they never fail startup.
type LexiconConfig struct {
	AbbreviationsPath string `yaml:"abbreviations_path"`
	SynonymsPath      string `yaml:"synonyms_path"`
	FamiliesPath      string `yaml:"families_path"`
	GraphKey          string `yaml:"graph_key"` // KV key the ingestion job writes the document graph to
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "evidex:"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 15
	}
	if c.Rerank.Remote.TimeoutSec <= 0 {
		c.Rerank.Remote.TimeoutSec = 10
	}
	if c.Rerank.Local.TimeoutSec <= 0 {
		c.Rerank.Local.TimeoutSec = 10
	}
	if c.Pipeline.IndexName == "" {
		c.Pipeline.IndexName = "idx:fragments"
	}
	if c.Pipeline.MaxExpansions <= 0 {
		c.Pipeline.MaxExpansions = 5
	}
	if c.Pipeline.TopK <= 0 {
		c.Pipeline.TopK = 10
	}
	if c.Pipeline.MinScore <= 0 {
		c.Pipeline.MinScore = 0.50
	}
	if c.Pipeline.RelatedDocBoost <= 0 {
		c.Pipeline.RelatedDocBoost = 0.10
	}
	if c.Pipeline.DocTypeBoost <= 0 {
		c.Pipeline.DocTypeBoost = 0.05
	}
	if c.Pipeline.SectionBoost <= 0 {
		c.Pipeline.SectionBoost = 0.05
	}
	if c.Pipeline.ChunkTypeBoost <= 0 {
		c.Pipeline.ChunkTypeBoost = 0.05
	}
	if c.Pipeline.MaxRelatedDocs <= 0 {
		c.Pipeline.MaxRelatedDocs = 5
	}
	if c.Pipeline.ContextCharBudget <= 0 {
		c.Pipeline.ContextCharBudget = 7000
	}
	if c.Pipeline.EvidenceThreshold <= 0 {
		c.Pipeline.EvidenceThreshold = 0.50
	}
	if c.Pipeline.StrongMatchScore <= 0 {
		c.Pipeline.StrongMatchScore = 0.35
	}
	if c.Pipeline.StrongMatchMinimum <= 0 {
		c.Pipeline.StrongMatchMinimum = 2
	}
	if c.Pipeline.VectorTimeoutSec <= 0 {
		c.Pipeline.VectorTimeoutSec = 5
	}
	if c.Pipeline.CacheTTL.ShortSec <= 0 {
		c.Pipeline.CacheTTL.ShortSec = 300 // 5m: final context packages
	}
	if c.Pipeline.CacheTTL.MediumSec <= 0 {
		c.Pipeline.CacheTTL.MediumSec = 3600 // 1h: retrieval candidate sets
	}
	if c.Pipeline.CacheTTL.LongSec <= 0 {
		c.Pipeline.CacheTTL.LongSec = 7 * 24 * 3600 // embeddings are deterministic
	}
	if c.Lexicon.GraphKey == "" {
		c.Lexicon.GraphKey = "graph:documents"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Pipeline.MinScore < 0 || c.Pipeline.MinScore > 1 {
		return fmt.Errorf("pipeline.min_score must be within [0,1], got %g", c.Pipeline.MinScore)
	}
	if c.Pipeline.EvidenceThreshold < 0 || c.Pipeline.EvidenceThreshold > 1 {
		return fmt.Errorf("pipeline.evidence_threshold must be within [0,1], got %g", c.Pipeline.EvidenceThreshold)
	}
	if c.Pipeline.StrongMatchScore < 0 || c.Pipeline.StrongMatchScore > 1 {
		return fmt.Errorf("pipeline.strong_match_score must be within [0,1], got %g", c.Pipeline.StrongMatchScore)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
