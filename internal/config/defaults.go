package config

import (
	"path/filepath"

	"github.com/hyperjump/tasuke/internal/models"
)

const defaultRoot = "/usr/local/var/tasuke/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultRoot + "/db/resources.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = defaultRoot + "/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = defaultRoot + "/indices/vectors.bin"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaultRoot + "/datasets"
	}
	if cfg.Data.DocsPath == "" {
		cfg.Data.DocsPath = filepath.Join(cfg.Data.Dir, "prepared_documents.jsonl")
	}
	if cfg.Data.MetaPath == "" {
		cfg.Data.MetaPath = filepath.Join(cfg.Data.Dir, "prepared_metadata.jsonl")
	}
	if cfg.Data.DebounceMillis == 0 {
		cfg.Data.DebounceMillis = 500
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = defaultRoot + "/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4.1-mini"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Retrieval.FullTopK == 0 {
		cfg.Retrieval.FullTopK = 10
	}
	if cfg.Retrieval.PerNeedTopK == 0 {
		cfg.Retrieval.PerNeedTopK = 10
	}
	if cfg.Retrieval.PerNeedLimit == 0 {
		cfg.Retrieval.PerNeedLimit = 3
	}
	if cfg.Retrieval.MaxCandidates == 0 {
		cfg.Retrieval.MaxCandidates = 50
	}
	if cfg.Retrieval.GroupedTopK == 0 {
		cfg.Retrieval.GroupedTopK = 5
	}
	if cfg.Retrieval.Namespace == "" {
		cfg.Retrieval.Namespace = models.DefaultNamespace
	}
	if cfg.Retrieval.KeywordWeight == 0 && cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.KeywordWeight = 0.3
		cfg.Retrieval.SemanticWeight = 0.7
	}
	if cfg.Retrieval.Oversample == 0 {
		cfg.Retrieval.Oversample = 2
	}
	if cfg.Retrieval.Fuzziness == 0 {
		cfg.Retrieval.Fuzziness = 1
	}
	if cfg.Indexer.ChunkSize == 0 {
		cfg.Indexer.ChunkSize = 256
	}
	if cfg.Indexer.ChunkOverlap == 0 {
		cfg.Indexer.ChunkOverlap = 32
	}
	if cfg.Indexer.Workers == 0 {
		cfg.Indexer.Workers = 4
	}
}
