package keeper

import (
	"context"
	"sort"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/store"
)

// GetInput carries a read request.
type GetInput struct {
	IDs        []string
	Collection string

	// Offset selects a version by back-offset: 0 is current, 1 the
	// previous archived state, and so on. Only valid for a single id.
	Offset int

	// Expand resolves meta-docs and similar items for display. Only
	// applied to single-id current-version reads.
	Expand bool
}

// GetResult is the outcome of a Get.
type GetResult struct {
	Items []item.Item `json:"items"`

	// VersionCount is the archived-version count of the single
	// requested document.
	VersionCount int `json:"version_count,omitempty"`

	// Offset echoes the requested version offset.
	Offset int `json:"offset,omitempty"`

	// Nav lists neighboring version labels on version reads.
	Nav *store.VersionNav `json:"nav,omitempty"`

	// Related holds meta-doc matches keyed by meta-doc short name.
	Related map[string][]item.Item `json:"related,omitempty"`

	// Similar holds nearest neighbors of the requested document.
	Similar []item.Item `json:"similar,omitempty"`
}

// similarLimit caps the similar-items block on single-id gets.
const similarLimit = 3

// Get retrieves one or more documents. The call fails whole: if any
// id is missing nothing is returned and nothing is touched. Access
// times move for every returned document.
func (k *Keeper) Get(ctx context.Context, input GetInput) (*GetResult, error) {
	coll, err := k.resolveCollection(input.Collection)
	if err != nil {
		return nil, err
	}
	if input.Offset > 0 && len(input.IDs) != 1 {
		return nil, errInvalidMultiVersion()
	}

	if input.Offset > 0 {
		id := input.IDs[0]
		v, err := k.docs.GetVersion(id, coll, input.Offset)
		if err != nil {
			return nil, err
		}
		total, err := k.docs.VersionCount(id, coll)
		if err != nil {
			return nil, err
		}
		nav, err := k.docs.GetVersionNav(id, coll, input.Offset)
		if err != nil {
			return nil, err
		}
		tags := v.Tags.Clone()
		if tags == nil {
			tags = item.Tags{}
		}
		tags[item.TagUpdated] = v.CreatedAt
		return &GetResult{
			Items:        []item.Item{{ID: v.ID, Summary: v.Summary, Tags: tags, ContentHash: v.ContentHash}},
			VersionCount: total,
			Offset:       input.Offset,
			Nav:          nav,
		}, nil
	}

	items := make([]item.Item, 0, len(input.IDs))
	for _, id := range input.IDs {
		rec, err := k.docs.Get(id, coll)
		if err != nil {
			return nil, err
		}
		items = append(items, rec.Item())
	}
	if err := k.docs.TouchMany(input.IDs, coll); err != nil {
		k.logger.Printf("warning: could not touch %d items: %v", len(input.IDs), err)
	}

	result := &GetResult{Items: items}
	if len(input.IDs) == 1 {
		count, err := k.docs.VersionCount(input.IDs[0], coll)
		if err == nil {
			result.VersionCount = count
		}
		if input.Expand {
			k.expand(ctx, coll, input.IDs[0], result)
		}
	}
	return result, nil
}

func errInvalidMultiVersion() error {
	return invalidInput("version offset requires exactly one id")
}

// expand attaches meta-doc matches and nearest neighbors to a
// single-document result. Failures degrade to a plain result.
func (k *Keeper) expand(ctx context.Context, coll, id string, result *GetResult) {
	related, err := k.resolver.Resolve(ctx, coll, id)
	if err != nil {
		k.logger.Printf("warning: meta resolution failed for %s: %v", id, err)
	} else if len(related) > 0 {
		result.Related = related
	}

	if !k.bridge.Enabled() {
		return
	}
	hits, err := k.bridge.Search(ctx, coll, result.Items[0].Summary, similarLimit+4)
	if err != nil {
		k.logger.Printf("warning: similar lookup failed for %s: %v", id, err)
		return
	}
	for _, hit := range hits {
		if hit.ID == id {
			continue
		}
		rec, err := k.docs.Get(hit.ID, coll)
		if err != nil {
			continue // stale vector
		}
		it := rec.Item()
		score := hit.Score
		it.Score = &score
		result.Similar = append(result.Similar, it)
		if len(result.Similar) == similarLimit {
			break
		}
	}
}

// FindInput names the arguments of a Find.
type FindInput struct {
	Query      string
	Collection string
	Limit      int

	// Since keeps only items updated on or after this YYYY-MM-DD date.
	Since string

	// NoTouch leaves access times unchanged, for scripted lookups that
	// should not count as reads.
	NoTouch bool
}

// Find runs a semantic search. Scores carry recency decay so fresher
// matches outrank stale ones at equal similarity. Search requires an
// embedding provider; without one the backend is reported unavailable.
func (k *Keeper) Find(ctx context.Context, input FindInput) ([]item.Item, error) {
	coll, err := k.resolveCollection(input.Collection)
	if err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	if !k.bridge.Enabled() {
		return nil, errors.NewBackendUnavailable("embedding", nil)
	}

	// Fetch extra candidates so decay can reorder before the cut.
	hits, err := k.bridge.Search(ctx, coll, input.Query, limit*2)
	if err != nil {
		return nil, err
	}

	var items []item.Item
	for _, hit := range hits {
		rec, err := k.docs.Get(hit.ID, coll)
		if err != nil {
			continue // stale vector
		}
		it := rec.Item()
		score := hit.Score
		it.Score = &score
		items = append(items, it)
	}

	k.applyRecencyDecay(items)
	sort.SliceStable(items, func(i, j int) bool {
		return scoreOf(items[i]) > scoreOf(items[j])
	})
	items = filterSince(items, input.Since)
	if len(items) > limit {
		items = items[:limit]
	}
	if !input.NoTouch {
		k.touchItems(items, coll)
	}
	return items, nil
}

// QueryTag returns documents matching every given tag pair. An empty
// value matches any value for that key.
func (k *Keeper) QueryTag(collection string, query map[string]string, limit int) ([]item.Item, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}
	if len(query) == 0 {
		return nil, invalidInput("at least one tag query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	for key := range query {
		if !item.ValidKey(key) {
			return nil, invalidInput("invalid tag key: " + key)
		}
	}

	var firstKey string
	for key := range query {
		if firstKey == "" || key < firstKey {
			firstKey = key
		}
	}
	records, err := k.docs.QueryTag(coll, firstKey, query[firstKey], 0)
	if err != nil {
		return nil, err
	}

	var items []item.Item
	for _, rec := range records {
		ok := true
		for key, value := range query {
			stored, present := rec.Tags[key]
			if !present || (value != "" && stored != value) {
				ok = false
				break
			}
		}
		if ok {
			items = append(items, rec.Item())
		}
		if len(items) == limit {
			break
		}
	}
	k.touchItems(items, coll)
	return items, nil
}

// List returns recent documents ordered by update or access time.
func (k *Keeper) List(collection string, limit int, orderBy store.OrderBy, since string) ([]item.Item, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return k.listRecent(coll, limit, orderBy, since)
}

func (k *Keeper) listRecent(coll string, limit int, orderBy store.OrderBy, since string) ([]item.Item, error) {
	fetch := limit
	if since != "" {
		fetch = 0 // filter needs the full ordering
	}
	records, err := k.docs.ListRecent(coll, fetch, orderBy)
	if err != nil {
		return nil, err
	}
	items := make([]item.Item, len(records))
	for i, rec := range records {
		items[i] = rec.Item()
	}
	items = filterSince(items, since)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Collections lists every collection with its document count.
func (k *Keeper) Collections() ([]store.CollectionInfo, error) {
	return k.docs.ListCollections()
}

// TagKeys lists the distinct tag keys of a collection.
func (k *Keeper) TagKeys(collection string) ([]string, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}
	return k.docs.ListTagKeys(coll)
}

// TagValues lists the distinct values stored under a tag key.
func (k *Keeper) TagValues(collection, key string) ([]string, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}
	if !item.ValidKey(key) {
		return nil, invalidInput("invalid tag key: " + key)
	}
	return k.docs.ListTagValues(coll, key)
}

// filterSince keeps items updated on or after since (YYYY-MM-DD).
func filterSince(items []item.Item, since string) []item.Item {
	if since == "" {
		return items
	}
	var out []item.Item
	for _, it := range items {
		if item.DatePart(it.Tags[item.TagUpdated]) >= since {
			out = append(out, it)
		}
	}
	return out
}

func (k *Keeper) touchItems(items []item.Item, coll string) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := k.docs.TouchMany(ids, coll); err != nil {
		k.logger.Printf("warning: could not touch %d items: %v", len(ids), err)
	}
}
