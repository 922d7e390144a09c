// Package keeper wires the document store, vector index, ingestion,
// summarization and meta-doc resolution into the operations the CLI
// and MCP server expose. Providers are optional: with no embedder the
// store, tag queries and recency listings still work, but Find
// reports the embedding backend as unavailable.
package keeper

import (
	"context"
	"database/sql"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/keep/internal/config"
	"github.com/hpungsan/keep/internal/embedding"
	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/ingest"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/meta"
	"github.com/hpungsan/keep/internal/pending"
	"github.com/hpungsan/keep/internal/store"
	"github.com/hpungsan/keep/internal/summarize"
	"github.com/hpungsan/keep/internal/vector"
)

// envTagPrefix marks environment variables that become tags on every
// write: KEEP_TAG_HOST=laptop adds host=laptop.
const envTagPrefix = "KEEP_TAG_"

// decayHalfLifeDays is the recency half-life applied to similarity
// scores, after the ACT-R activation model.
const decayHalfLifeDays = 30.0

// Keeper is the façade over all subsystems.
type Keeper struct {
	cfg        *config.Config
	docs       *store.DocumentStore
	queue      *pending.Queue
	bridge     *vector.Bridge
	summarizer summarize.Summarizer
	ingestor   *ingest.Ingestor
	resolver   *meta.Resolver
	logger     *log.Logger
	now        func() time.Time
}

// Open wires a Keeper over an initialized database and seeds the
// bundled system documents into the default collection.
func Open(cfg *config.Config, database *sql.DB) (*Keeper, error) {
	docs := store.New(database)

	backend, err := vector.NewBackend(cfg, database)
	if err != nil {
		return nil, err
	}
	bridge := vector.NewBridge(embedding.NewFromConfig(cfg), backend)

	k := &Keeper{
		cfg:        cfg,
		docs:       docs,
		queue:      pending.NewQueue(database),
		bridge:     bridge,
		summarizer: summarize.NewFromConfig(cfg),
		ingestor:   ingest.New(cfg.MaxSummaryLength, time.Duration(cfg.FetchTimeoutSecs)*time.Second),
		logger:     log.New(os.Stderr, "", 0),
		now:        time.Now,
	}
	k.resolver = meta.NewResolver(docs, k.rankByRelevance)

	if _, err := meta.Seed(docs, cfg.DefaultCollection); err != nil {
		return nil, err
	}
	return k, nil
}

// WithClock overrides the keeper's clock (and the store's and
// queue's). Returns the keeper for chaining.
func (k *Keeper) WithClock(now func() time.Time) *Keeper {
	k.now = now
	k.docs.WithClock(now)
	k.queue.WithClock(now)
	return k
}

// WithProviders overrides the semantic bridge and summarizer, for
// callers that construct providers themselves. Nil arguments leave
// the configured provider in place.
func (k *Keeper) WithProviders(bridge *vector.Bridge, summarizer summarize.Summarizer) *Keeper {
	if bridge != nil {
		k.bridge = bridge
	}
	if summarizer != nil {
		k.summarizer = summarizer
	}
	return k
}

// Docs exposes the document store for callers that need raw records.
func (k *Keeper) Docs() *store.DocumentStore {
	return k.docs
}

// resolveCollection applies the default and validates the name.
func (k *Keeper) resolveCollection(collection string) (string, error) {
	if collection == "" {
		collection = k.cfg.DefaultCollection
	}
	if err := item.ValidateCollection(collection); err != nil {
		return "", err
	}
	return collection, nil
}

// envTags collects KEEP_TAG_* variables as tags, keys lowercased.
func envTags() item.Tags {
	tags := item.Tags{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envTagPrefix) || value == "" {
			continue
		}
		key := strings.ToLower(name[len(envTagPrefix):])
		if item.ValidKey(key) {
			tags[key] = value
		}
	}
	return tags
}

// mergeTags layers tag sources for a write: existing document tags,
// then configured default tags, then environment tags, then the
// user's, later layers winning. System keys only survive from the
// existing layer; user input cannot set or clear them, so
// underscore-prefixed keys are silently dropped from the user layer.
func (k *Keeper) mergeTags(existing, user item.Tags) (item.Tags, error) {
	user = user.FilterNonSystem()
	for key := range user {
		if !item.ValidKey(key) {
			return nil, errors.NewInvalidInput("invalid tag key: " + key)
		}
	}

	merged := item.Tags{}
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range k.cfg.DefaultTags {
		if item.ValidKey(key) && !item.IsSystemKey(key) {
			merged[key] = value
		}
	}
	for key, value := range envTags() {
		merged[key] = value
	}
	for key, value := range user {
		if value == "" {
			delete(merged, key) // empty value clears a tag
			continue
		}
		merged[key] = value
	}
	return merged, nil
}

// rankByRelevance orders candidates by similarity to the anchor item,
// with recency decay. Falls back to pure recency when semantic search
// is unavailable.
func (k *Keeper) rankByRelevance(ctx context.Context, collection, anchorID string, candidates []store.Record) []item.Item {
	items := make([]item.Item, len(candidates))
	for i, rec := range candidates {
		items[i] = rec.Item()
	}

	if k.bridge.Enabled() {
		if anchor, err := k.docs.Get(anchorID, collection); err == nil {
			hits, err := k.bridge.Search(ctx, collection, anchor.Summary, len(candidates)+16)
			if err == nil {
				scores := make(map[string]float64, len(hits))
				for _, h := range hits {
					scores[h.ID] = h.Score
				}
				for i := range items {
					score := scores[items[i].ID]
					items[i].Score = &score
				}
			}
		}
	}

	k.applyRecencyDecay(items)
	sort.SliceStable(items, func(i, j int) bool {
		return scoreOf(items[i]) > scoreOf(items[j])
	})
	return items
}

// applyRecencyDecay multiplies each scored item's score by
// 0.5^(days since update / half-life).
func (k *Keeper) applyRecencyDecay(items []item.Item) {
	now := k.now().UTC()
	for i := range items {
		if items[i].Score == nil {
			continue
		}
		updated, err := time.Parse("2006-01-02T15:04:05Z", items[i].Tags[item.TagUpdated])
		if err != nil {
			continue
		}
		days := now.Sub(updated).Seconds() / 86400
		decayed := *items[i].Score * math.Pow(0.5, days/decayHalfLifeDays)
		items[i].Score = &decayed
	}
}

func invalidInput(msg string) error {
	return errors.NewInvalidInput(msg)
}

func scoreOf(it item.Item) float64 {
	if it.Score == nil {
		return 0
	}
	return *it.Score
}
