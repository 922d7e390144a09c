package keeper

import (
	"context"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/ingest"
	"github.com/hpungsan/keep/internal/meta"
)

// ReindexResult reports what a reindex pass did.
type ReindexResult struct {
	Collection string          `json:"collection"`
	Documents  int             `json:"documents"`
	Indexed    int             `json:"indexed"`
	Seeded     *meta.SeedStats `json:"seeded,omitempty"`
}

// Reindex reseeds the bundled system documents and rebuilds the
// collection's semantic index from stored summaries.
func (k *Keeper) Reindex(ctx context.Context, collection string) (*ReindexResult, error) {
	coll, err := k.resolveCollection(collection)
	if err != nil {
		return nil, err
	}

	seeded, err := meta.Seed(k.docs, coll)
	if err != nil {
		return nil, err
	}

	records, err := k.docs.ListRecent(coll, 0, "")
	if err != nil {
		return nil, err
	}
	result := &ReindexResult{Collection: coll, Documents: len(records), Seeded: seeded}

	if !k.bridge.Enabled() {
		k.logger.Printf("note: no embedding provider configured, skipping vector rebuild")
		return result, nil
	}

	texts := make(map[string]string, len(records))
	for _, rec := range records {
		texts[rec.ID] = rec.Summary
	}
	indexed, err := k.bridge.Reindex(ctx, coll, texts)
	if err != nil {
		return nil, err
	}
	result.Indexed = indexed
	return result, nil
}

// ProcessResult reports one queue-draining pass.
type ProcessResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// ProcessPending drains the summary queue: each job's content goes to
// the summarizer, and the resulting summary replaces the placeholder
// and refreshes the vector. Failed jobs stay queued for retry until
// their attempts run out. Documents deleted since enqueueing are
// dropped silently.
func (k *Keeper) ProcessPending(ctx context.Context, max int) (*ProcessResult, error) {
	if k.summarizer == nil {
		return nil, errors.NewBackendUnavailable("summarizer",
			errors.NewInvalidInput("no summarization provider configured"))
	}
	if max <= 0 {
		max = 50
	}

	result := &ProcessResult{}
	seen := make(map[string]bool)
	for i := 0; i < max; i++ {
		job, err := k.queue.Dequeue()
		if err != nil {
			return nil, err
		}
		if job == nil {
			break
		}
		// Seeing a job again means everything left already failed
		// this pass; further retries wait for the next run.
		if seen[job.JobID] {
			break
		}
		seen[job.JobID] = true

		exists, err := k.docs.Exists(job.ID, job.Collection)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := k.queue.Complete(job.JobID); err != nil {
				return nil, err
			}
			continue
		}

		collCtx := k.collectionContext(job.Collection, job.ID)
		summary, err := k.summarizer.Summarize(ctx, job.Content, collCtx)
		if err != nil {
			k.logger.Printf("warning: summarization failed for %s (attempt %d): %v",
				job.ID, job.Attempts+1, err)
			if err := k.queue.Fail(job.JobID); err != nil {
				return nil, err
			}
			result.Failed++
			continue
		}

		// Providers have no hard output cap, so the summary is
		// clamped to the configured limit before it is stored.
		summary = ingest.Truncate(summary, k.cfg.MaxSummaryLength)
		if err := k.docs.UpdateSummary(job.ID, job.Collection, summary); err != nil {
			return nil, err
		}
		if err := k.bridge.Index(ctx, job.Collection, job.ID, summary); err != nil {
			k.logger.Printf("warning: semantic index skipped for %s: %v", job.ID, err)
		}
		if err := k.queue.Complete(job.JobID); err != nil {
			return nil, err
		}
		result.Processed++
	}

	remaining, err := k.queue.Count()
	if err != nil {
		return nil, err
	}
	result.Remaining = remaining
	return result, nil
}

// PendingCount returns how many documents await a summary.
func (k *Keeper) PendingCount() (int, error) {
	return k.queue.Count()
}

// collectionContext samples neighboring summaries so the summarizer
// knows the collection's register without summarizing the neighbors.
func (k *Keeper) collectionContext(coll, excludeID string) string {
	records, err := k.docs.ListRecent(coll, 6, "")
	if err != nil {
		return ""
	}
	var lines []byte
	count := 0
	for _, rec := range records {
		if count == 4 {
			break
		}
		if rec.ID == excludeID || rec.Summary == "" {
			continue
		}
		line := rec.Summary
		if len(line) > 120 {
			line = line[:120]
		}
		lines = append(lines, '-', ' ')
		lines = append(lines, line...)
		lines = append(lines, '\n')
		count++
	}
	return string(lines)
}
