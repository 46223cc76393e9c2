package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/hollyoak/tally/internal/ai"
	"github.com/hollyoak/tally/internal/embedding"
	"github.com/hollyoak/tally/internal/resolver"
	"github.com/hollyoak/tally/internal/service"
	"github.com/hollyoak/tally/internal/storage"
)

// dataDir returns the base directory for databases and indexes.
func dataDir() (string, error) {
	if dir := viper.GetString("data.dir"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tally"), nil
}

// openStore opens the learned-state database and applies pending migrations.
func openStore(ctx context.Context) (*storage.SQLiteStore, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "tally.db")
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}
	return store, nil
}

// buildEmbedding constructs the generator and index when an embeddings API
// key is configured. Without one the similarity tier is simply skipped.
func buildEmbedding() (service.EmbeddingGenerator, service.EmbeddingIndex, error) {
	apiKey := viper.GetString("embeddings.api_key")
	if apiKey == "" {
		apiKey = viper.GetString("openai.api_key")
	}
	if apiKey == "" {
		return nil, nil, nil
	}

	generator, err := embedding.NewGenerator(embedding.GeneratorConfig{
		APIKey:  apiKey,
		Model:   viper.GetString("embeddings.model"),
		BaseURL: viper.GetString("embeddings.base_url"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build embedding generator: %w", err)
	}

	indexPath := viper.GetString("embeddings.path")
	if indexPath == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, nil, err
		}
		indexPath = filepath.Join(dir, "embeddings")
	}

	index, err := embedding.NewIndex(embedding.IndexConfig{
		Path:     indexPath,
		Compress: viper.GetBool("embeddings.compress"),
	}, generator)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedding index: %w", err)
	}

	return generator, index, nil
}

// inferenceConfig reads the provider settings shared by both model tiers.
func inferenceConfig() ai.Config {
	return ai.Config{
		Provider:          viper.GetString("ai.provider"),
		APIKey:            viper.GetString("ai.api_key"),
		BaseURL:           viper.GetString("ai.base_url"),
		RequestsPerMinute: viper.GetInt("ai.requests_per_minute"),
		Timeout:           viper.GetDuration("ai.timeout"),
	}
}

// buildInference constructs the cheap and expensive clients when an API key
// is configured. Without one the cascade stops at the cache tier.
func buildInference() (service.CheapInference, service.ExpensiveInference, error) {
	cfg := inferenceConfig()
	if cfg.APIKey == "" {
		return nil, nil, nil
	}

	cheapCfg := cfg
	cheapCfg.Model = viper.GetString("ai.model")
	cheap, err := ai.NewCheapInference(cheapCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build inference client: %w", err)
	}

	expensiveCfg := cfg
	expensiveCfg.Model = viper.GetString("ai.expensive_model")
	expensive, err := ai.NewExpensiveInference(expensiveCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build escalation client: %w", err)
	}

	return cheap, expensive, nil
}

// buildResolver wires the full cascade over the given store. The returned
// cleanup closes everything the resolver owns besides the store.
func buildResolver(store *storage.SQLiteStore, sink service.TierEventSink) (*resolver.Resolver, func(), error) {
	generator, index, err := buildEmbedding()
	if err != nil {
		return nil, nil, err
	}

	cheap, expensive, err := buildInference()
	if err != nil {
		return nil, nil, err
	}

	r := resolver.New(store, index, generator, cheap, expensive, sink, resolver.Config{
		Workers: viper.GetInt("resolver.workers"),
	})

	cleanup := func() {
		if index != nil {
			_ = index.Close()
		}
	}
	return r, cleanup, nil
}

// parseDateFlag parses a YYYY-MM-DD flag value.
func parseDateFlag(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}
