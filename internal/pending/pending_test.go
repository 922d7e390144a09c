package pending

import (
	"testing"
	"time"

	"github.com/hpungsan/keep/internal/db"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewQueue(database).WithClock(func() time.Time {
		base = base.Add(time.Second)
		return base
	})
}

func TestEnqueueDequeue(t *testing.T) {
	q := newTestQueue(t)

	jobID, err := q.Enqueue("doc1", "default", "long content")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if len(jobID) != 26 {
		t.Errorf("job id = %q, want ULID", jobID)
	}

	job, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if job == nil || job.ID != "doc1" || job.Content != "long content" {
		t.Fatalf("job = %+v", job)
	}
	if job.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0: dequeueing alone must not burn an attempt", job.Attempts)
	}

	if err := q.Complete(job.JobID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	count, _ := q.Count()
	if count != 0 {
		t.Errorf("Count() = %d after Complete", count)
	}
}

func TestDequeueEmpty(t *testing.T) {
	q := newTestQueue(t)

	job, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if job != nil {
		t.Errorf("job = %+v, want nil", job)
	}
}

func TestDequeueOldestFirst(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue("first", "default", "a")
	q.Enqueue("second", "default", "b")

	job, _ := q.Dequeue()
	if job.ID != "first" {
		t.Errorf("dequeued %s, want first", job.ID)
	}
}

func TestReEnqueueReplaces(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue("doc1", "default", "old content")
	// Burn some attempts.
	job, _ := q.Dequeue()
	q.Fail(job.JobID)
	q.Fail(job.JobID)

	q.Enqueue("doc1", "default", "new content")
	count, _ := q.Count()
	if count != 1 {
		t.Fatalf("Count() = %d, want 1", count)
	}

	job, _ = q.Dequeue()
	if job.Content != "new content" || job.Attempts != 0 {
		t.Errorf("job = %+v", job)
	}
}

func TestFailedJobsSortBehindFreshOnes(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue("first", "default", "a")
	q.Enqueue("second", "default", "b")

	job, _ := q.Dequeue()
	if job.ID != "first" {
		t.Fatalf("dequeued %s, want first", job.ID)
	}
	if err := q.Fail(job.JobID); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	// The failed job yields to the untried one.
	job, _ = q.Dequeue()
	if job.ID != "second" {
		t.Errorf("dequeued %s, want second", job.ID)
	}
	q.Complete(job.JobID)

	job, _ = q.Dequeue()
	if job.ID != "first" || job.Attempts != 1 {
		t.Errorf("job = %+v, want first with one attempt", job)
	}
}

func TestMaxAttemptsDropsJob(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue("doc1", "default", "content")
	for i := 0; i < MaxAttempts; i++ {
		job, err := q.Dequeue()
		if err != nil || job == nil {
			t.Fatalf("attempt %d: job = %v, err = %v", i, job, err)
		}
		if err := q.Fail(job.JobID); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
	}

	// Exhausted jobs are dropped on the next dequeue.
	job, err := q.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if job != nil {
		t.Errorf("exhausted job still dequeued: %+v", job)
	}
	count, _ := q.Count()
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}

func TestRemove(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue("doc1", "default", "content")
	q.Enqueue("doc1", "work", "content")

	if err := q.Remove("doc1", "default"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	count, _ := q.Count()
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}
