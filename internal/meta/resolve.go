package meta

import (
	"context"
	"strings"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/store"
)

// queryLimit is how many candidates each expanded query fetches; the
// ranker sees them all before the per-doc cut.
const queryLimit = 100

// DefaultLimitPerDoc caps how many matches each meta-doc contributes.
const DefaultLimitPerDoc = 3

// RankFunc orders candidates by relevance to the anchor item. A nil
// ranker keeps the store's recency order.
type RankFunc func(ctx context.Context, collection, anchorID string, candidates []store.Record) []item.Item

// Resolver evaluates .meta/* documents against an item's tags.
type Resolver struct {
	docs        *store.DocumentStore
	rank        RankFunc
	limitPerDoc int
}

// NewResolver creates a resolver. rank may be nil.
func NewResolver(docs *store.DocumentStore, rank RankFunc) *Resolver {
	return &Resolver{docs: docs, rank: rank, limitPerDoc: DefaultLimitPerDoc}
}

// Resolve runs every meta-doc's queries in the context of the given
// item and returns matches keyed by the meta-doc's short name (the
// part after ".meta/"). Meta-docs with no query lines, and queries
// with no matches, are omitted.
func (r *Resolver) Resolve(ctx context.Context, collection, itemID string) (map[string][]item.Item, error) {
	metaRecords, err := r.docs.QueryByIDPrefix(collection, ".meta/", 0)
	if err != nil {
		return nil, err
	}
	if len(metaRecords) == 0 {
		return nil, nil
	}

	current, err := r.docs.Get(itemID, collection)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	result := make(map[string][]item.Item)
	for _, rec := range metaRecords {
		queries, contextKeys := ParseMetaDoc(rec.Summary)
		if len(queries) == 0 {
			continue
		}

		contextValues := map[string]string{}
		for _, key := range contextKeys {
			if item.IsSystemKey(key) {
				continue
			}
			if val := current.Tags[key]; val != "" {
				contextValues[key] = val
			}
		}

		matches, err := r.runQueries(collection, itemID, ExpandQueries(queries, contextValues))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}

		var items []item.Item
		if r.rank != nil {
			items = r.rank(ctx, collection, itemID, matches)
		} else {
			items = make([]item.Item, len(matches))
			for i, m := range matches {
				items[i] = m.Item()
			}
		}
		if len(items) > r.limitPerDoc {
			items = items[:r.limitPerDoc]
		}

		shortName := rec.ID
		if i := strings.Index(shortName, "/"); i >= 0 {
			shortName = shortName[i+1:]
		}
		result[shortName] = items
	}
	return result, nil
}

// runQueries unions the results of each AND-query, skipping the
// anchor item, other meta-docs and duplicates.
func (r *Resolver) runQueries(collection, anchorID string, queries []Query) ([]store.Record, error) {
	seen := map[string]bool{}
	var matches []store.Record
	for _, q := range queries {
		records, err := r.runQuery(collection, q)
		if err != nil {
			continue // a malformed query line matches nothing
		}
		for _, rec := range records {
			if rec.ID == anchorID || strings.HasPrefix(rec.ID, ".meta/") || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			matches = append(matches, rec)
		}
	}
	return matches, nil
}

// runQuery evaluates one AND-query: the first pair goes to the tag
// index, the rest filter in memory.
func (r *Resolver) runQuery(collection string, q Query) ([]store.Record, error) {
	var firstKey string
	for k := range q {
		if firstKey == "" || k < firstKey {
			firstKey = k
		}
	}
	if firstKey == "" {
		return nil, nil
	}

	records, err := r.docs.QueryTag(collection, firstKey, q[firstKey], queryLimit)
	if err != nil {
		return nil, err
	}

	var out []store.Record
	for _, rec := range records {
		ok := true
		for k, v := range q {
			if rec.Tags[k] != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
