package keeper

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/ingest"
	"github.com/hpungsan/keep/internal/item"
)

// RememberInput carries a write request.
type RememberInput struct {
	// Content is inline text or a source reference (path or URL).
	Content string

	// ID addresses the document. Empty means content-addressed:
	// "%" plus the first 12 hex chars of the content hash.
	ID string

	// Collection targets a collection; empty means the default.
	Collection string

	// Tags are the user's tags. An empty value clears that tag.
	Tags item.Tags

	// Summary overrides the derived summary. Only valid for sourced
	// content; Remember rejects it alongside inline text.
	Summary string
}

// Remember stores content. Prior state is archived when the content
// hash or tags change; long content gets a placeholder summary and a
// queue entry; the semantic index is updated best-effort.
func (k *Keeper) Remember(ctx context.Context, input RememberInput) (*item.Item, error) {
	coll, err := k.resolveCollection(input.Collection)
	if err != nil {
		return nil, err
	}

	var content *ingest.Content
	trimmed := strings.TrimSpace(input.Content)
	if ingest.IsSource(trimmed) {
		content, err = k.ingestor.FromSource(ctx, trimmed)
	} else {
		// Inline text is its own summary: an override makes no
		// sense, and text beyond the summary limit must come in
		// as a file or URL instead.
		if input.Summary != "" {
			return nil, errors.NewInvalidInput("summary cannot be used with inline text, only with file or URL sources")
		}
		if utf8.RuneCountInString(input.Content) > k.cfg.MaxSummaryLength {
			return nil, errors.NewInvalidInput(fmt.Sprintf(
				"inline text exceeds max_summary_length (%d); store it as a file or URL source", k.cfg.MaxSummaryLength))
		}
		content, err = k.ingestor.Inline(input.Content)
	}
	if err != nil {
		return nil, err
	}

	id := input.ID
	if id == "" {
		id = "%" + content.Hash[:12]
	}

	var existingTags item.Tags
	if prev, err := k.docs.Get(id, coll); err == nil {
		existingTags = prev.Tags
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	tags, err := k.mergeTags(existingTags, input.Tags)
	if err != nil {
		return nil, err
	}
	// Provenance tags from ingestion are system-managed.
	for key, value := range content.Tags {
		tags[key] = value
	}

	summary := content.Summary
	needsSummary := content.NeedsSummary
	if input.Summary != "" {
		summary = input.Summary
		needsSummary = false
	}

	rec, contentChanged, err := k.docs.Upsert(id, coll, summary, tags, content.Hash)
	if err != nil {
		return nil, err
	}

	if contentChanged {
		if needsSummary {
			if _, err := k.queue.Enqueue(id, coll, content.Text); err != nil {
				k.logger.Printf("warning: could not queue summary for %s: %v", id, err)
			}
		} else {
			if err := k.queue.Remove(id, coll); err != nil {
				k.logger.Printf("warning: could not clear summary queue for %s: %v", id, err)
			}
		}
		if err := k.bridge.Index(ctx, coll, id, rec.Summary); err != nil {
			k.logger.Printf("warning: semantic index skipped for %s: %v", id, err)
		}
	}

	result := rec.Item()
	return &result, nil
}

// UpdateTags merges tag changes into a document without touching its
// content. An empty value clears that tag. The prior state is
// archived when the tags actually change.
func (k *Keeper) UpdateTags(ctx context.Context, id, collection string, tags item.Tags) (*item.Item, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}

	prev, err := k.docs.Get(id, coll)
	if err != nil {
		return nil, err
	}
	merged, err := k.mergeTags(prev.Tags, tags)
	if err != nil {
		return nil, err
	}

	rec, err := k.docs.UpdateTags(id, coll, merged)
	if err != nil {
		return nil, err
	}
	result := rec.Item()
	return &result, nil
}

// Delete removes a document, its queued summary work and its vector.
// Version history survives unless deleteVersions is set.
func (k *Keeper) Delete(ctx context.Context, id, collection string, deleteVersions bool) error {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return err
	}
	if err := k.docs.Delete(id, coll, deleteVersions); err != nil {
		return err
	}
	if err := k.queue.Remove(id, coll); err != nil {
		k.logger.Printf("warning: could not clear summary queue for %s: %v", id, err)
	}
	if err := k.bridge.Remove(ctx, coll, id); err != nil {
		k.logger.Printf("warning: could not remove vector for %s: %v", id, err)
	}
	return nil
}

// DeleteCollection removes a whole collection, vectors included.
func (k *Keeper) DeleteCollection(ctx context.Context, collection string) (int, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return 0, err
	}
	n, err := k.docs.DeleteCollection(coll)
	if err != nil {
		return 0, err
	}
	if err := k.bridge.RemoveAll(ctx, coll); err != nil {
		k.logger.Printf("warning: could not drop vectors for %s: %v", coll, err)
	}
	return n, nil
}

// Touch refreshes a document's access time.
func (k *Keeper) Touch(id, collection string) error {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return err
	}
	return k.docs.Touch(id, coll)
}
