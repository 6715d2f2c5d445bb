// Package main is the tasuke CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/cli"
	"github.com/hyperjump/tasuke/internal/config"
	"github.com/hyperjump/tasuke/internal/extract"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/resourceid"
	"github.com/hyperjump/tasuke/internal/server"
	"github.com/hyperjump/tasuke/internal/watcher"
	"github.com/hyperjump/tasuke/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tasuke/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists. Returns the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			config.ApplyEnv(cfg, os.LookupEnv)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "needs":
		runNeeds()
	case "import":
		runImport()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tasuke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and wires every component. It exits on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.String("namespace", cfg.Retrieval.Namespace),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := components.seed(ctx, cfg); err != nil {
		logger.Warn("startup seeding failed", zap.Error(err))
	}

	if cfg.Data.Watch {
		for _, w := range dataWatchers(cfg, components, logger) {
			if err := w.Start(ctx); err != nil {
				logger.Fatal("Failed to start watcher", zap.Error(err))
			}
			defer w.Stop()
		}
	}

	srv := server.NewServer(components.Engine, components.Admin, components.Storage, components.VectorIndex, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// dataWatchers returns a watcher that reimports the JSONL datasets as one unit and, when
// a flyer directory is configured, one that imports and removes flyers.
func dataWatchers(cfg *config.Config, c *Components, logger *zap.Logger) []*watcher.Watcher {
	debounce := time.Duration(cfg.Data.DebounceMillis) * time.Millisecond
	datasets := map[string]bool{
		filepath.Clean(cfg.Data.DocsPath): true,
		filepath.Clean(cfg.Data.MetaPath): true,
	}
	roots := []string{filepath.Dir(cfg.Data.DocsPath)}
	if metaDir := filepath.Dir(cfg.Data.MetaPath); metaDir != roots[0] {
		roots = append(roots, metaDir)
	}
	out := []*watcher.Watcher{watcher.NewWatcher(roots, []string{".jsonl"}, false,
		func(path string) {
			if !datasets[filepath.Clean(path)] {
				return
			}
			res, err := c.Indexer.ImportJSONL(context.Background(), cfg.Data.DocsPath, cfg.Data.MetaPath)
			if err != nil {
				logger.Warn("dataset reimport failed", zap.Error(err))
				return
			}
			logger.Info("datasets reimported", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
		},
		nil,
		watcher.WithLogger(logger),
		watcher.WithDebounce(debounce),
		watcher.WithGroup(func(path string) string {
			if datasets[filepath.Clean(path)] {
				return "datasets"
			}
			return path
		}),
	)}

	if cfg.Data.FlyersDir != "" {
		out = append(out, watcher.NewWatcher([]string{cfg.Data.FlyersDir}, extract.NewExtractor().Extensions(), true,
			func(path string) {
				if _, err := c.Indexer.ImportFlyer(context.Background(), path, nil); err != nil {
					logger.Warn("flyer import failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				abs, err := filepath.Abs(path)
				if err != nil {
					return
				}
				if err := c.Indexer.DeleteResource(context.Background(), resourceid.FromPath(abs)); err != nil {
					logger.Warn("flyer removal failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(debounce),
		))
	}
	return out
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildStory joins all positional args with spaces so multi-word stories work the
// same with or without shell quoting.
func buildStory(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer directly from local storage)")
	topK := fs.Int("top-k", 0, "results per retrieval call (default 8)")
	topResults := fs.Int("top-results", 0, "results shown per need, clamped to 3..5 (default 5)")
	city := fs.String("city", "", "only resources in this city")
	county := fs.String("county", "", "only resources in this county")
	zip := fs.String("zip", "", "only resources with this zip code")
	language := fs.String("language", "", "only resources offering this language")
	freeOnly := fs.Bool("free-only", false, "only free or low-cost resources")
	namespace := fs.String("namespace", "", "namespace to search (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	story := buildStory(fs.Args())
	if story == "" {
		fmt.Fprintln(os.Stderr, "Usage: tasuke ask [flags] <story>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	req := models.AskRequest{
		Query:      story,
		TopK:       *topK,
		TopResults: *topResults,
		City:       *city,
		County:     *county,
		ZipCode:    *zip,
		Language:   *language,
		FreeOnly:   *freeOnly,
		Namespace:  *namespace,
	}

	var resp models.AskResponse
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/ask", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		out, err := components.Engine.Ask(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = *out
	}
	if err := cli.WriteAskResponse(os.Stdout, &resp, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runNeeds() {
	fs := flag.NewFlagSet("needs", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer directly from local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	story := buildStory(fs.Args())
	if story == "" {
		fmt.Fprintln(os.Stderr, "Usage: tasuke needs [flags] <story>")
		os.Exit(1)
	}

	var resp models.NeedsResponse
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/needs", models.NeedsRequest{Story: story}, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Needs failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		resp = *components.Engine.Needs(context.Background(), story)
	}
	if err := cli.WriteNeedsResponse(os.Stdout, &resp, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docs := fs.String("docs", "", "prepared documents JSONL (default from config)")
	meta := fs.String("meta", "", "prepared metadata JSONL (default from config)")
	xlsx := fs.String("xlsx", "", "spreadsheet of resources to import")
	flyers := fs.String("flyers", "", "directory of flyers to import")
	flyer := fs.String("flyer", "", "single flyer to import")
	name := fs.String("name", "", "resource name for --flyer")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()

	switch {
	case *xlsx != "":
		res, err := components.Indexer.ImportSpreadsheet(ctx, *xlsx)
		exitOn("Import failed", err)
		fmt.Printf("Imported %d resources (%d skipped) from %s\n", res.Imported, res.Skipped, *xlsx)
	case *flyers != "":
		n, err := components.Indexer.ImportFlyers(ctx, *flyers)
		exitOn("Import failed", err)
		fmt.Printf("Imported %d flyers from %s\n", n, *flyers)
	case *flyer != "":
		var md map[string]any
		if *name != "" {
			md = map[string]any{"resource_name": *name}
		}
		r, err := components.Indexer.ImportFlyer(ctx, *flyer, md)
		exitOn("Import failed", err)
		fmt.Printf("Imported %s as %s\n", *flyer, r.ID)
	default:
		docsPath, metaPath := cfg.Data.DocsPath, cfg.Data.MetaPath
		if *docs != "" {
			docsPath = *docs
		}
		if *meta != "" {
			metaPath = *meta
		}
		res, err := components.Indexer.ImportJSONL(ctx, docsPath, metaPath)
		exitOn("Import failed", err)
		fmt.Printf("Imported %d resources (%d skipped)\n", res.Imported, res.Skipped)
	}
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	all := fs.Bool("all", false, "re-embed every resource, not only dirty ones")
	_ = fs.Parse(os.Args[2:])

	_, _, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	res, err := components.Indexer.Reindex(context.Background(), !*all)
	exitOn("Reindex failed", err)
	fmt.Printf("Upserted %d, skipped %d, errors %d\n", res.Upserted, res.Skipped, res.Errors)
}

// statusResponse is the shape of GET /api/status.
type statusResponse struct {
	Resources       int64          `json:"resources"`
	ReviewedCount   int64          `json:"reviewed_count"`
	DirtyCount      int64          `json:"dirty_count"`
	VectorIndexSize int            `json:"vector_index_size"`
	DiskUsageBytes  *int64         `json:"disk_usage_bytes,omitempty"`
	Config          map[string]any `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		stats, err := components.Storage.Stats(context.Background())
		exitOn("Status failed", err)
		status = statusResponse{
			Resources:       stats.Total,
			ReviewedCount:   stats.Reviewed,
			DirtyCount:      stats.Dirty,
			VectorIndexSize: components.VectorIndex.Size(),
		}
	}
	if cli.ParseFormat(*outputFormat) == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, status)
		return
	}
	writeStatusText(os.Stdout, &status)
}

func writeStatusText(w io.Writer, s *statusResponse) {
	fmt.Fprintf(w, "Resources:        %d\n", s.Resources)
	fmt.Fprintf(w, "Reviewed:         %d\n", s.ReviewedCount)
	fmt.Fprintf(w, "Pending upsert:   %d\n", s.DirtyCount)
	fmt.Fprintf(w, "Vector index:     %d\n", s.VectorIndexSize)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:       %.1f MB\n", float64(*s.DiskUsageBytes)/(1024*1024))
	}
	if ns, ok := s.Config["namespace"].(string); ok {
		fmt.Fprintf(w, "Namespace:        %s\n", ns)
	}
}

func postJSON(url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func exitOn(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tasuke - community resource recommendations from a person's story

Usage:
  tasuke server [flags]           Start the HTTP server
  tasuke ask [flags] <story>      Recommend resources grouped by need
  tasuke needs [flags] <story>    Show extracted needs and candidates
  tasuke import [flags]           Import datasets, a spreadsheet, or flyers
  tasuke reindex [flags]          Re-embed edited resources
  tasuke status [flags]           Show catalogue and index status
  tasuke version                  Show version
  tasuke help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tasuke/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to answer locally.
  --top-k int        Results per retrieval call (default: 8)
  --top-results int  Results per need, clamped to 3..5 (default: 5)
  --city, --county, --zip, --language, --free-only   Metadata filters
  --namespace string Namespace to search
  --output string    Output format: text or json (default: text)

Import Flags:
  --docs, --meta     JSONL datasets (default from config)
  --xlsx string      Spreadsheet with one resource per row
  --flyers string    Directory of flyers (pdf, docx, xlsx, txt, md)
  --flyer string     Single flyer; --name sets its resource name

Reindex Flags:
  --all              Re-embed every resource instead of only dirty ones

Environment:
  OPENAI_API_KEY, GEN_MODEL, EMBED_MODEL, ADMIN_TOKEN, NAMESPACE override the config file.

Examples:
  tasuke server
  tasuke ask "I lost my job and I'm behind on rent, and my kids need food"
  tasuke ask --city Springfield --free-only --output json "need a food pantry"
  tasuke needs "my heat was shut off"
  tasuke import --xlsx resources.xlsx
  tasuke reindex --all
  tasuke status --output json`)
}
