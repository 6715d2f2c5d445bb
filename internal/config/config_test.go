package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
retrieval:
  per_need_limit: 2
  parallel: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Retrieval.PerNeedLimit != 2 || !cfg.Retrieval.Parallel {
		t.Errorf("unexpected retrieval config: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.FullTopK != 10 {
		t.Errorf("full_top_k should default to 10, got %d", cfg.Retrieval.FullTopK)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/resources.db"
data:
  dir: "./datasets"
  flyers_dir: "./flyers"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"database_path": filepath.Join(dir, "data", "db", "resources.db"),
		"data.dir":      filepath.Join(dir, "datasets"),
		"docs_path":     filepath.Join(dir, "datasets", "prepared_documents.jsonl"),
		"meta_path":     filepath.Join(dir, "datasets", "prepared_metadata.jsonl"),
		"flyers_dir":    filepath.Join(dir, "flyers"),
	}
	got := map[string]string{
		"database_path": cfg.Storage.DatabasePath,
		"data.dir":      cfg.Data.Dir,
		"docs_path":     cfg.Data.DocsPath,
		"meta_path":     cfg.Data.MetaPath,
		"flyers_dir":    cfg.Data.FlyersDir,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expanded paths mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	want := RetrievalConfig{
		FullTopK:       10,
		PerNeedTopK:    10,
		PerNeedLimit:   3,
		MaxCandidates:  50,
		GroupedTopK:    5,
		Namespace:      "__default__",
		KeywordWeight:  0.3,
		SemanticWeight: 0.7,
		Oversample:     2,
		Fuzziness:      1,
	}
	if diff := cmp.Diff(want, cfg.Retrieval); diff != "" {
		t.Errorf("retrieval defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.LLM.Model != "gpt-4.1-mini" || cfg.LLM.TimeoutSeconds != 60 {
		t.Errorf("llm defaults: %+v", cfg.LLM)
	}
	if filepath.Base(cfg.Data.DocsPath) != "prepared_documents.jsonl" || filepath.Base(cfg.Data.MetaPath) != "prepared_metadata.jsonl" {
		t.Errorf("dataset defaults: %+v", cfg.Data)
	}
	if cfg.Data.Watch {
		t.Error("watch should be off by default")
	}
}

func TestApplyDefaults_KeepsSemanticOnlyWeights(t *testing.T) {
	cfg := &Config{Retrieval: RetrievalConfig{SemanticWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Retrieval.KeywordWeight != 0 || cfg.Retrieval.SemanticWeight != 1 {
		t.Errorf("weights: keyword=%v semantic=%v", cfg.Retrieval.KeywordWeight, cfg.Retrieval.SemanticWeight)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"GEN_MODEL":      "gpt-test",
		"EMBED_MODEL":    "embed-test",
		"ADMIN_TOKEN":    " secret ",
		"NAMESPACE":      "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, lookup)

	if cfg.LLM.APIKey != "sk-test" || cfg.LLM.Model != "gpt-test" {
		t.Errorf("llm: %+v", cfg.LLM)
	}
	if cfg.Embedding.Model != "embed-test" {
		t.Errorf("embedding model: %s", cfg.Embedding.Model)
	}
	if cfg.Admin.Token != "secret" {
		t.Errorf("admin token: %q", cfg.Admin.Token)
	}
	if cfg.Retrieval.Namespace != "__default__" {
		t.Errorf("blank NAMESPACE should not override, got %q", cfg.Retrieval.Namespace)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Admin:   AdminConfig{Token: "t"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Storage.DatabasePath != "/tmp/db" {
		t.Errorf("loaded database_path: got %s", loaded.Storage.DatabasePath)
	}
}
