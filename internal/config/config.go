// Package config provides configuration loading and structs for the tasuke server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Data      DataConfig      `yaml:"data"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// DataConfig locates the JSONL datasets and the flyer directory.
type DataConfig struct {
	Dir       string `yaml:"dir"`
	DocsPath  string `yaml:"docs_path"`
	MetaPath  string `yaml:"meta_path"`
	FlyersDir string `yaml:"flyers_dir"`
	// Watch reimports the datasets and flyers when they change on disk.
	Watch          bool `yaml:"watch"`
	DebounceMillis int  `yaml:"debounce_ms"`
}

// EmbeddingConfig selects and sizes the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig holds the chat-completions endpoint settings.
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// RetrievalConfig holds fanout sizes and hybrid search weights.
type RetrievalConfig struct {
	FullTopK       int     `yaml:"full_top_k"`
	PerNeedTopK    int     `yaml:"per_need_top_k"`
	PerNeedLimit   int     `yaml:"per_need_limit"`
	MaxCandidates  int     `yaml:"max_candidates"`
	GroupedTopK    int     `yaml:"grouped_top_k"`
	Parallel       bool    `yaml:"parallel"`
	Namespace      string  `yaml:"namespace"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	Oversample     int     `yaml:"oversample"`
	Fuzziness      int     `yaml:"fuzziness"`
}

// IndexerConfig holds chunking and worker settings.
type IndexerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	Workers      int `yaml:"workers"`
}

// AdminConfig holds the admin API token. An empty token disables writes.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults
// and environment overrides. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.expandPaths(filepath.Dir(path))
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg, os.LookupEnv)
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment variables the service has always read.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("OPENAI_API_KEY", &cfg.LLM.APIKey)
	set("GEN_MODEL", &cfg.LLM.Model)
	set("EMBED_MODEL", &cfg.Embedding.Model)
	set("ADMIN_TOKEN", &cfg.Admin.Token)
	set("NAMESPACE", &cfg.Retrieval.Namespace)
}

func (c *Config) expandPaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DatabasePath,
		&c.Storage.BleveIndexPath,
		&c.Storage.VectorIndexPath,
		&c.Data.Dir,
		&c.Data.DocsPath,
		&c.Data.MetaPath,
		&c.Data.FlyersDir,
		&c.Embedding.ModelPath,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
