package vector

import (
	"context"

	"github.com/hpungsan/keep/internal/embedding"
	"github.com/hpungsan/keep/internal/errors"
)

// Bridge pairs an Embedder with a Backend. When no embedder is
// configured the bridge reports disabled and every operation is a
// no-op, so the document store works without semantic search.
type Bridge struct {
	embedder embedding.Embedder
	backend  Backend
}

// NewBridge creates a bridge. embedder may be nil.
func NewBridge(embedder embedding.Embedder, backend Backend) *Bridge {
	return &Bridge{embedder: embedder, backend: backend}
}

// Enabled reports whether semantic indexing is configured.
func (b *Bridge) Enabled() bool {
	return b != nil && b.embedder != nil && b.backend != nil
}

// Index embeds text and stores the vector under the document's id.
func (b *Bridge) Index(ctx context.Context, collection, id, text string) error {
	if !b.Enabled() {
		return nil
	}
	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return errors.NewBackendUnavailable("embedding", err)
	}
	return b.backend.Add(ctx, collection, id, vec)
}

// Remove drops a document's vector. Missing vectors are not an error.
func (b *Bridge) Remove(ctx context.Context, collection, id string) error {
	if !b.Enabled() {
		return nil
	}
	return b.backend.Delete(ctx, collection, id)
}

// RemoveAll drops every vector in a collection.
func (b *Bridge) RemoveAll(ctx context.Context, collection string) error {
	if !b.Enabled() {
		return nil
	}
	return b.backend.DeleteNamespace(ctx, collection)
}

// Search embeds the query and returns the nearest documents.
func (b *Bridge) Search(ctx context.Context, collection, query string, topK int) ([]Hit, error) {
	if !b.Enabled() {
		return nil, nil
	}
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.NewBackendUnavailable("embedding", err)
	}
	return b.backend.Search(ctx, collection, vec, topK)
}

// Reindex rebuilds a collection's vectors from scratch. The texts map
// holds id -> indexable text. Returns how many documents were indexed.
func (b *Bridge) Reindex(ctx context.Context, collection string, texts map[string]string) (int, error) {
	if !b.Enabled() {
		return 0, nil
	}
	if err := b.backend.DeleteNamespace(ctx, collection); err != nil {
		return 0, err
	}
	count := 0
	for id, text := range texts {
		if text == "" {
			continue
		}
		if err := b.Index(ctx, collection, id, text); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
