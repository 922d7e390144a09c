package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"github.com/hpungsan/keep/internal/embedding"
	"github.com/hpungsan/keep/internal/errors"
)

// LocalBackend stores vectors as little-endian float32 blobs in the
// same SQLite file as the documents. Search is a brute-force cosine
// scan, which is fine at personal-store scale.
type LocalBackend struct {
	db *sql.DB
}

// NewLocalBackend creates the local backend, ensuring its table exists.
func NewLocalBackend(db *sql.DB) (*LocalBackend, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
	  namespace TEXT NOT NULL,
	  id        TEXT NOT NULL,
	  dims      INTEGER NOT NULL,
	  embedding BLOB NOT NULL,
	  PRIMARY KEY (namespace, id)
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &LocalBackend{db: db}, nil
}

func (b *LocalBackend) Add(ctx context.Context, namespace, id string, vec embedding.Vector) error {
	if len(vec) == 0 {
		return errors.NewInvalidInput("empty vector")
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO vectors (namespace, id, dims, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET dims = excluded.dims, embedding = excluded.embedding`,
		namespace, id, len(vec), encodeVector(vec))
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, namespace, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM vectors WHERE namespace = ? AND id = ?`, namespace, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func (b *LocalBackend) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM vectors WHERE namespace = ?`, namespace)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func (b *LocalBackend) Search(ctx context.Context, namespace string, vec embedding.Vector, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, embedding FROM vectors WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errors.NewInternal(err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: id, Score: embedding.CosineSimilarity(vec, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Score descending, ties by id for stable output.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (b *LocalBackend) List(ctx context.Context, namespace string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id FROM vectors WHERE namespace = ? ORDER BY id ASC`, namespace)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

func encodeVector(vec embedding.Vector) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte) (embedding.Vector, error) {
	if len(blob)%4 != 0 {
		return nil, errors.NewCorruption("vector blob length not a multiple of 4")
	}
	vec := make(embedding.Vector, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
