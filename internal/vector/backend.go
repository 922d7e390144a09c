// Package vector maintains the semantic index next to the document
// store. A Backend persists embedding vectors per namespace (one
// namespace per collection); the Bridge pairs a Backend with an
// Embedder and exposes the index/search operations the rest of the
// system uses.
package vector

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/keep/internal/config"
	"github.com/hpungsan/keep/internal/embedding"
	"github.com/hpungsan/keep/internal/errors"
)

// Hit is one search result: a document id with its similarity score.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Backend persists vectors and answers nearest-neighbor queries.
type Backend interface {
	Add(ctx context.Context, namespace, id string, vec embedding.Vector) error
	Delete(ctx context.Context, namespace, id string) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Search(ctx context.Context, namespace string, vec embedding.Vector, topK int) ([]Hit, error)
	List(ctx context.Context, namespace string) ([]string, error)
}

// NewBackend builds the configured backend. The local backend shares
// the store's database handle; qdrant talks to a REST endpoint.
func NewBackend(cfg *config.Config, database *sql.DB) (Backend, error) {
	switch cfg.Vector.Backend {
	case "", "local":
		return NewLocalBackend(database)
	case "qdrant":
		if cfg.Vector.URL == "" {
			return nil, errors.NewInvalidInput("vector.url is required for the qdrant backend")
		}
		return NewQdrantBackend(cfg.Vector.URL, cfg.Vector.APIKey,
			time.Duration(cfg.EmbedTimeoutSecs)*time.Second), nil
	default:
		return nil, errors.NewInvalidInput("vector.backend must be one of: local, qdrant")
	}
}
