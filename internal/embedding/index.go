// Package embedding provides the expense embedding index and the
// provider-agnostic embedding generator adapter.
package embedding

import (
	"context"
	"fmt"
	"os"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/google/uuid"
	"github.com/hollyoak/tally/internal/model"
	"github.com/hollyoak/tally/internal/service"
)

const collectionName = "expense_embeddings"

// IndexConfig holds configuration for the embedded vector index.
type IndexConfig struct {
	// Path is the directory for persistent storage.
	Path string
	// Compress enables gzip compression for stored data.
	Compress bool
}

// Index implements service.EmbeddingIndex using chromem-go, an embeddable
// pure-Go vector database with gob-file persistence. Writes are append-only.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	generator  service.EmbeddingGenerator
}

// NewIndex opens or creates a persistent embedding index at cfg.Path.
func NewIndex(cfg IndexConfig, generator service.EmbeddingGenerator) (*Index, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("embedding index path is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}

	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding index: %w", err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return generator.Embed(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return &Index{
		db:         db,
		collection: collection,
		generator:  generator,
	}, nil
}

// Add appends one embedding row. If the row carries no precomputed vector,
// one is generated from its text.
func (i *Index) Add(ctx context.Context, emb model.ExpenseEmbedding) error {
	if emb.VectorText == "" {
		return fmt.Errorf("embedding vector text is required")
	}

	id := emb.ID
	if id == "" {
		id = uuid.NewString()
	}

	doc := chromem.Document{
		ID:      id,
		Content: emb.VectorText,
		Metadata: map[string]string{
			"gl_code":    emb.GLCode,
			"department": emb.Department,
			"verified":   strconv.FormatBool(emb.Verified),
		},
		Embedding: emb.Vector,
	}

	if err := i.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("failed to add embedding: %w", err)
	}
	return nil
}

// Query returns the k nearest verified embeddings with cosine similarity at
// or above minSimilarity, best first. Unverified rows never serve as hits.
func (i *Index) Query(ctx context.Context, vector []float32, k int, minSimilarity float64) ([]service.EmbeddingMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := i.collection.QueryEmbedding(ctx, vector, k, map[string]string{"verified": "true"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	var matches []service.EmbeddingMatch
	for _, r := range results {
		similarity := float64(r.Similarity)
		if similarity < minSimilarity {
			continue
		}
		matches = append(matches, service.EmbeddingMatch{
			Embedding: model.ExpenseEmbedding{
				ID:         r.ID,
				VectorText: r.Content,
				GLCode:     r.Metadata["gl_code"],
				Department: r.Metadata["department"],
				Verified:   true,
			},
			Similarity: similarity,
		})
	}
	return matches, nil
}

// Count returns the number of stored embeddings, verified or not.
func (i *Index) Count() int {
	return i.collection.Count()
}

// Close is a no-op; chromem persists on write.
func (i *Index) Close() error {
	return nil
}
