// Package pending queues documents awaiting an LLM summary. Writes
// never block on the summarizer: long content gets a truncation
// placeholder and a queue entry, and keep process drains the queue
// when a provider is reachable.
package pending

import (
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
)

// MaxAttempts is how many times a job is retried before it is dropped.
const MaxAttempts = 5

// Job is one queued summarization request.
type Job struct {
	JobID      string `json:"job_id"`
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Content    string `json:"content"`
	Attempts   int    `json:"attempts"`
	CreatedAt  string `json:"created_at"`
}

// Queue is the persistent summary queue. It shares the store's
// database file.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// NewQueue creates a queue over db.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// WithClock overrides the queue's clock. Returns the queue for chaining.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue queues a document for summarization. Re-enqueueing the same
// document replaces the queued content and resets the attempt count.
func (q *Queue) Enqueue(id, collection, content string) (string, error) {
	jobID, err := newJobID()
	if err != nil {
		return "", errors.NewInternal(err)
	}

	tx, err := q.db.Begin()
	if err != nil {
		return "", errors.NewTxAborted(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pending_summaries WHERE collection = ? AND id = ?`,
		collection, id); err != nil {
		return "", errors.NewInternal(err)
	}
	_, err = tx.Exec(`
		INSERT INTO pending_summaries (job_id, id, collection, content, attempts, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		jobID, id, collection, content, item.Timestamp(q.now()))
	if err != nil {
		return "", errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewTxAborted(err)
	}
	return jobID, nil
}

// Dequeue returns the least-attempted, oldest retryable job, or nil
// when the queue has nothing eligible. Jobs that hit MaxAttempts are
// removed. Attempts-first ordering keeps a failing job from starving
// the rest of the queue: it sorts behind every job that has failed
// fewer times.
func (q *Queue) Dequeue() (*Job, error) {
	if _, err := q.db.Exec(`DELETE FROM pending_summaries WHERE attempts >= ?`, MaxAttempts); err != nil {
		return nil, errors.NewInternal(err)
	}

	row := q.db.QueryRow(`
		SELECT job_id, id, collection, content, attempts, created_at
		FROM pending_summaries
		ORDER BY attempts ASC, created_at ASC, job_id ASC
		LIMIT 1`)

	job := &Job{}
	err := row.Scan(&job.JobID, &job.ID, &job.Collection, &job.Content, &job.Attempts, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return job, nil
}

// Complete removes a finished job.
func (q *Queue) Complete(jobID string) error {
	if _, err := q.db.Exec(`DELETE FROM pending_summaries WHERE job_id = ?`, jobID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Fail bumps a job's attempt count after a summarization failure. The
// job stays queued for later passes until it reaches MaxAttempts.
func (q *Queue) Fail(jobID string) error {
	if _, err := q.db.Exec(`UPDATE pending_summaries SET attempts = attempts + 1 WHERE job_id = ?`,
		jobID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Remove drops any queued job for a document, e.g. when the document
// is deleted before its summary arrives.
func (q *Queue) Remove(id, collection string) error {
	if _, err := q.db.Exec(`DELETE FROM pending_summaries WHERE collection = ? AND id = ?`,
		collection, id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Count returns how many jobs are queued.
func (q *Queue) Count() (int, error) {
	var count int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_summaries`).Scan(&count); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

func newJobID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
