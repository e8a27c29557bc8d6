// cmd/serchaforensic is the entry point for the forensic semantic search
// CLI. It wires the SQLite vector store, the Ollama embedding provider, and
// the core services together, then hands control to the cobra-based driving
// adapter.
//
// Startup sequence:
//  1. Load configuration from a TOML file, falling back to defaults.
//  2. Open the SQLite vector store under the configured storage root.
//  3. Construct the Ollama embedding provider and load its model handle.
//  4. Start a debounced watcher on the noise rules file, if configured.
//  5. Wire the Indexer, Search Engine, and Task Registry.
//  6. Execute the CLI and exit with its error, if any.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-cli/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/sercha-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-cli/internal/config"
	"github.com/custodia-labs/sercha-cli/internal/core/services"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sercha/config.toml"
	}
	return filepath.Join(home, ".sercha", "config.toml")
}

func main() {
	if os.Getenv("SERCHA_VERBOSE") != "" {
		logger.SetVerbose(true)
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "serchaforensic:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("SERCHA_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := sqlite.NewStore(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer store.Close()

	embedder := ollama.New(ollama.Config{})
	defer embedder.Close()

	ctx := context.Background()
	handle, err := embedder.Load(ctx, cfg.EmbeddingModelID, cfg.Device)
	if err != nil {
		return fmt.Errorf("loading embedding model %s: %w", cfg.EmbeddingModelID, err)
	}

	noiseFlagger := services.NewNoiseFlagger(nil)
	noiseWatcher := config.NewNoiseRulesWatcher(cfg.NoiseRulesPath, func(file config.NoiseRuleFile) {
		rules := make([]services.NoiseRule, len(file.Rules))
		for i, r := range file.Rules {
			rules[i] = services.NoiseRule{Pattern: r.Pattern, Senders: r.Senders}
		}
		noiseFlagger.SetRules(rules)
	})
	if err := noiseWatcher.Start(); err != nil {
		return fmt.Errorf("starting noise rules watcher: %w", err)
	}
	defer noiseWatcher.Stop()

	normalizer := services.NewNormalizer(nil)
	tasks := services.NewTaskRegistry(func() string { return uuid.NewString() })
	indexer := services.NewIndexer(store, embedder, tasks, noiseFlagger, normalizer, cfg.EncodeBatchSize)
	searchEngine := services.NewSearchEngine(store, embedder, handle)

	cli.SetServices(indexer, searchEngine, services.NewTaskServiceAdapter(tasks))
	return cli.Execute()
}
