package vector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hpungsan/keep/internal/embedding"
	"github.com/hpungsan/keep/internal/errors"
)

// QdrantBackend is a minimal REST client to Qdrant. Each namespace
// maps to a Qdrant collection named keep_<namespace> using cosine
// distance; collections are created lazily on first Add.
type QdrantBackend struct {
	url    string
	apiKey string
	client *http.Client

	mu      sync.Mutex
	created map[string]bool
}

// NewQdrantBackend creates a Qdrant backend for the given endpoint.
func NewQdrantBackend(url, apiKey string, timeout time.Duration) *QdrantBackend {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantBackend{
		url:     url,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		created: make(map[string]bool),
	}
}

func qdrantCollection(namespace string) string {
	return "keep_" + namespace
}

// pointID derives Qdrant's required UUID form deterministically from
// the document id, so upserts and deletes address the same point.
func pointID(id string) string {
	sum := sha256.Sum256([]byte(id))
	h := hex.EncodeToString(sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

func (b *QdrantBackend) ensureCollection(ctx context.Context, namespace string, dims int) error {
	b.mu.Lock()
	done := b.created[namespace]
	b.mu.Unlock()
	if done {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dims,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", b.url, qdrantCollection(namespace))
	// Qdrant returns 409 if the collection already exists; treat that as created.
	if err := b.do(ctx, http.MethodPut, url, body, nil); err != nil && !errors.Is(err, errors.ErrInvalidInput) {
		return err
	}

	b.mu.Lock()
	b.created[namespace] = true
	b.mu.Unlock()
	return nil
}

func (b *QdrantBackend) Add(ctx context.Context, namespace, id string, vec embedding.Vector) error {
	if err := b.ensureCollection(ctx, namespace, len(vec)); err != nil {
		return err
	}
	body := map[string]any{
		"points": []map[string]any{{
			"id":      pointID(id),
			"vector":  vec,
			"payload": map[string]any{"id": id},
		}},
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", b.url, qdrantCollection(namespace))
	return b.do(ctx, http.MethodPut, url, body, nil)
}

func (b *QdrantBackend) Delete(ctx context.Context, namespace, id string) error {
	body := map[string]any{"points": []string{pointID(id)}}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", b.url, qdrantCollection(namespace))
	return b.do(ctx, http.MethodPost, url, body, nil)
}

func (b *QdrantBackend) DeleteNamespace(ctx context.Context, namespace string) error {
	url := fmt.Sprintf("%s/collections/%s", b.url, qdrantCollection(namespace))
	err := b.do(ctx, http.MethodDelete, url, nil, nil)
	b.mu.Lock()
	delete(b.created, namespace)
	b.mu.Unlock()
	return err
}

func (b *QdrantBackend) Search(ctx context.Context, namespace string, vec embedding.Vector, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", b.url, qdrantCollection(namespace))
	if err := b.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, _ := r.Payload["id"].(string)
		if id == "" {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: r.Score})
	}
	return hits, nil
}

func (b *QdrantBackend) List(ctx context.Context, namespace string) ([]string, error) {
	var ids []string
	var offset any
	for {
		body := map[string]any{"limit": 256, "with_payload": true}
		if offset != nil {
			body["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", b.url, qdrantCollection(namespace))
		if err := b.do(ctx, http.MethodPost, url, body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			if id, _ := p.Payload["id"].(string); id != "" {
				ids = append(ids, id)
			}
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (b *QdrantBackend) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.NewBackendUnavailable("qdrant", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return errors.NewInvalidInput("qdrant collection already exists")
	}
	if resp.StatusCode >= 300 {
		return errors.NewBackendUnavailable("qdrant",
			fmt.Errorf("%s %s: %s", method, url, resp.Status))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}
