package vector

import (
	"context"
	"testing"

	"github.com/hpungsan/keep/internal/db"
	"github.com/hpungsan/keep/internal/embedding"
)

func newLocal(t *testing.T) *LocalBackend {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	backend, err := NewLocalBackend(database)
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	return backend
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := embedding.Vector{0.5, -1.25, 3.0}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector() error = %v", err)
	}
	if len(got) != 3 || got[0] != 0.5 || got[1] != -1.25 || got[2] != 3.0 {
		t.Errorf("roundtrip = %v", got)
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestLocalBackendSearch(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()

	b.Add(ctx, "default", "x-axis", embedding.Vector{1, 0})
	b.Add(ctx, "default", "y-axis", embedding.Vector{0, 1})
	b.Add(ctx, "default", "diagonal", embedding.Vector{1, 1})
	b.Add(ctx, "other", "elsewhere", embedding.Vector{1, 0})

	hits, err := b.Search(ctx, "default", embedding.Vector{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d", len(hits))
	}
	if hits[0].ID != "x-axis" {
		t.Errorf("top hit = %s", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v", hits)
	}
}

func TestLocalBackendUpsertAndDelete(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()

	b.Add(ctx, "default", "a", embedding.Vector{1, 0})
	// Re-add replaces the stored vector.
	if err := b.Add(ctx, "default", "a", embedding.Vector{0, 1}); err != nil {
		t.Fatalf("Add() replace error = %v", err)
	}
	hits, _ := b.Search(ctx, "default", embedding.Vector{0, 1}, 1)
	if len(hits) != 1 || hits[0].Score < 0.99 {
		t.Errorf("replaced vector not found: %v", hits)
	}

	if err := b.Delete(ctx, "default", "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ids, _ := b.List(ctx, "default")
	if len(ids) != 0 {
		t.Errorf("List() after delete = %v", ids)
	}

	// Deleting a missing vector is not an error.
	if err := b.Delete(ctx, "default", "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestLocalBackendDeleteNamespace(t *testing.T) {
	b := newLocal(t)
	ctx := context.Background()

	b.Add(ctx, "default", "a", embedding.Vector{1, 0})
	b.Add(ctx, "work", "b", embedding.Vector{1, 0})

	if err := b.DeleteNamespace(ctx, "default"); err != nil {
		t.Fatalf("DeleteNamespace() error = %v", err)
	}
	ids, _ := b.List(ctx, "default")
	if len(ids) != 0 {
		t.Errorf("default ids = %v", ids)
	}
	ids, _ = b.List(ctx, "work")
	if len(ids) != 1 {
		t.Errorf("work ids = %v", ids)
	}
}

// fixedEmbedder returns canned vectors keyed by input text.
type fixedEmbedder struct {
	vectors map[string]embedding.Vector
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return embedding.Vector{0, 0, 1}, nil
}

func (f *fixedEmbedder) Dims() int { return 3 }

func TestBridgeDisabled(t *testing.T) {
	b := NewBridge(nil, nil)
	if b.Enabled() {
		t.Error("Enabled() = true with nil embedder")
	}
	if err := b.Index(context.Background(), "default", "a", "text"); err != nil {
		t.Errorf("Index() on disabled bridge = %v", err)
	}
	hits, err := b.Search(context.Background(), "default", "query", 5)
	if err != nil || hits != nil {
		t.Errorf("Search() on disabled bridge = %v, %v", hits, err)
	}
}

func TestBridgeIndexAndSearch(t *testing.T) {
	backend := newLocal(t)
	emb := &fixedEmbedder{vectors: map[string]embedding.Vector{
		"go concurrency": {1, 0, 0},
		"rust lifetimes": {0, 1, 0},
		"channels":       {0.9, 0.1, 0},
	}}
	b := NewBridge(emb, backend)
	ctx := context.Background()

	b.Index(ctx, "default", "doc1", "go concurrency")
	b.Index(ctx, "default", "doc2", "rust lifetimes")

	hits, err := b.Search(ctx, "default", "channels", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "doc1" {
		t.Errorf("hits = %v", hits)
	}
}

func TestBridgeReindex(t *testing.T) {
	backend := newLocal(t)
	b := NewBridge(&fixedEmbedder{}, backend)
	ctx := context.Background()

	b.Index(ctx, "default", "stale", "old text")

	n, err := b.Reindex(ctx, "default", map[string]string{
		"doc1": "alpha",
		"doc2": "beta",
		"doc3": "", // unembeddable, skipped
	})
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Reindex() = %d, want 2", n)
	}

	ids, _ := backend.List(ctx, "default")
	if len(ids) != 2 {
		t.Errorf("ids after reindex = %v", ids)
	}
	for _, id := range ids {
		if id == "stale" {
			t.Error("stale vector survived reindex")
		}
	}
}
