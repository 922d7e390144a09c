package store

import (
	"testing"
	"time"

	"github.com/hpungsan/keep/internal/db"
	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
)

// testClock hands out strictly increasing times one second apart so
// recency ordering is deterministic.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database).WithClock(newTestClock().Now)
}

func TestUpsertInsert(t *testing.T) {
	s := newTestStore(t)

	rec, changed, err := s.Upsert("note1", "default", "first note", item.Tags{"topic": "go"}, "hash1")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !changed {
		t.Error("expected contentChanged on first insert")
	}
	if rec.CreatedAt != rec.UpdatedAt || rec.CreatedAt == "" {
		t.Errorf("timestamps = created %q updated %q", rec.CreatedAt, rec.UpdatedAt)
	}

	got, err := s.Get("note1", "default")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Summary != "first note" || got.Tags["topic"] != "go" || got.ContentHash != "hash1" {
		t.Errorf("Get() = %+v", got)
	}

	// No versions archived yet.
	count, err := s.VersionCount("note1", "default")
	if err != nil {
		t.Fatalf("VersionCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("VersionCount() = %d, want 0", count)
	}
}

func TestUpsertNoChangeDoesNotArchive(t *testing.T) {
	s := newTestStore(t)

	first, _, err := s.Upsert("note1", "default", "text", item.Tags{"a": "1"}, "h1")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Same content hash and same tags: no archive, no updated_at move.
	second, changed, err := s.Upsert("note1", "default", "text", item.Tags{"a": "1"}, "h1")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if changed {
		t.Error("contentChanged should be false for identical re-put")
	}
	if second.UpdatedAt != first.UpdatedAt {
		t.Errorf("updated_at moved on no-op write: %q -> %q", first.UpdatedAt, second.UpdatedAt)
	}
	if second.AccessedAt == first.AccessedAt {
		t.Error("accessed_at should move on re-put")
	}

	count, _ := s.VersionCount("note1", "default")
	if count != 0 {
		t.Errorf("VersionCount() = %d, want 0", count)
	}
}

func TestUpsertContentChangeArchives(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "v1 text", item.Tags{"a": "1"}, "h1")
	rec, changed, err := s.Upsert("note1", "default", "v2 text", item.Tags{"a": "1"}, "h2")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !changed {
		t.Error("expected contentChanged for new hash")
	}
	if rec.Summary != "v2 text" {
		t.Errorf("Summary = %q", rec.Summary)
	}

	count, _ := s.VersionCount("note1", "default")
	if count != 1 {
		t.Fatalf("VersionCount() = %d, want 1", count)
	}

	// Offset 1 is the most recently archived state.
	v, err := s.GetVersion("note1", "default", 1)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if v.Summary != "v1 text" || v.ContentHash != "h1" || v.Version != 1 {
		t.Errorf("GetVersion() = %+v", v)
	}
}

func TestUpsertTagChangeArchives(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "text", item.Tags{"status": "draft"}, "h1")
	_, changed, err := s.Upsert("note1", "default", "text", item.Tags{"status": "done"}, "h1")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if changed {
		t.Error("contentChanged should be false when only tags move")
	}

	count, _ := s.VersionCount("note1", "default")
	if count != 1 {
		t.Errorf("VersionCount() = %d, want 1", count)
	}
	v, err := s.GetVersion("note1", "default", 1)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if v.Tags["status"] != "draft" {
		t.Errorf("archived tags = %v", v.Tags)
	}
}

func TestUpsertTagChangeKeepsStoredSummary(t *testing.T) {
	s := newTestStore(t)

	// The stored summary may have been refined since the write, so a
	// same-content upsert must not push the caller's summary over it.
	s.Upsert("note1", "default", "placeholder", item.Tags{"status": "draft"}, "h1")
	if err := s.UpdateSummary("note1", "default", "refined summary"); err != nil {
		t.Fatalf("UpdateSummary() error = %v", err)
	}

	rec, _, err := s.Upsert("note1", "default", "placeholder", item.Tags{"status": "done"}, "h1")
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.Summary != "refined summary" {
		t.Errorf("Summary = %q, want the stored one", rec.Summary)
	}
	got, _ := s.Get("note1", "default")
	if got.Summary != "refined summary" {
		t.Errorf("stored Summary = %q", got.Summary)
	}

	// A content change takes the caller's summary as usual.
	rec, _, _ = s.Upsert("note1", "default", "new text", item.Tags{"status": "done"}, "h2")
	if rec.Summary != "new text" {
		t.Errorf("Summary after content change = %q", rec.Summary)
	}
}

func TestVersionOffsets(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "v1", nil, "h1")
	s.Upsert("note1", "default", "v2", nil, "h2")
	s.Upsert("note1", "default", "v3", nil, "h3")

	// Two archived versions: v1 and v2. Offset 1 = v2, offset 2 = v1.
	v, err := s.GetVersion("note1", "default", 1)
	if err != nil || v.Summary != "v2" {
		t.Errorf("offset 1 = %+v, %v", v, err)
	}
	v, err = s.GetVersion("note1", "default", 2)
	if err != nil || v.Summary != "v1" {
		t.Errorf("offset 2 = %+v, %v", v, err)
	}

	_, err = s.GetVersion("note1", "default", 3)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("offset past history: error = %v, want NOT_FOUND", err)
	}
	_, err = s.GetVersion("note1", "default", 0)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("offset 0: error = %v, want INVALID_INPUT", err)
	}
}

func TestListVersions(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "v1", nil, "h1")
	s.Upsert("note1", "default", "v2", nil, "h2")
	s.Upsert("note1", "default", "v3", nil, "h3")

	versions, err := s.ListVersions("note1", "default", 0)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("len = %d, want 2", len(versions))
	}
	// Newest first.
	if versions[0].Summary != "v2" || versions[1].Summary != "v1" {
		t.Errorf("order = %q, %q", versions[0].Summary, versions[1].Summary)
	}
}

func TestUpdateSummaryDoesNotArchive(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "pending", nil, "h1")
	if err := s.UpdateSummary("note1", "default", "the real summary"); err != nil {
		t.Fatalf("UpdateSummary() error = %v", err)
	}

	got, _ := s.Get("note1", "default")
	if got.Summary != "the real summary" {
		t.Errorf("Summary = %q", got.Summary)
	}
	count, _ := s.VersionCount("note1", "default")
	if count != 0 {
		t.Errorf("VersionCount() = %d, want 0", count)
	}

	if err := s.UpdateSummary("missing", "default", "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing doc: error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateTags(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "text", item.Tags{"a": "1"}, "h1")

	rec, err := s.UpdateTags("note1", "default", item.Tags{"a": "2", "b": "3"})
	if err != nil {
		t.Fatalf("UpdateTags() error = %v", err)
	}
	if rec.Tags["a"] != "2" || rec.Tags["b"] != "3" {
		t.Errorf("Tags = %v", rec.Tags)
	}
	count, _ := s.VersionCount("note1", "default")
	if count != 1 {
		t.Errorf("VersionCount() = %d, want 1", count)
	}

	// Identical tags: no new archive.
	s.UpdateTags("note1", "default", item.Tags{"a": "2", "b": "3"})
	count, _ = s.VersionCount("note1", "default")
	if count != 1 {
		t.Errorf("VersionCount() after no-op = %d, want 1", count)
	}

	// Tag index reflects the new tags.
	recs, err := s.QueryTag("default", "b", "3", 0)
	if err != nil || len(recs) != 1 {
		t.Errorf("QueryTag(b=3) = %d records, %v", len(recs), err)
	}
	recs, _ = s.QueryTag("default", "a", "1", 0)
	if len(recs) != 0 {
		t.Errorf("stale tag index entry for a=1")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "v1", nil, "h1")
	s.Upsert("note1", "default", "v2", nil, "h2")

	if err := s.Delete("note1", "default", false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get("note1", "default"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get after delete: error = %v, want NOT_FOUND", err)
	}
	// History kept when deleteVersions is false.
	count, _ := s.VersionCount("note1", "default")
	if count != 1 {
		t.Errorf("VersionCount() = %d, want 1", count)
	}

	if err := s.Delete("note1", "default", false); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("double delete: error = %v, want NOT_FOUND", err)
	}
}

func TestDeleteWithVersions(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note1", "default", "v1", item.Tags{"a": "1"}, "h1")
	s.Upsert("note1", "default", "v2", item.Tags{"a": "1"}, "h2")

	if err := s.Delete("note1", "default", true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	count, _ := s.VersionCount("note1", "default")
	if count != 0 {
		t.Errorf("VersionCount() = %d, want 0", count)
	}
	recs, _ := s.QueryTag("default", "a", "", 0)
	if len(recs) != 0 {
		t.Errorf("tag index rows survive delete")
	}
}

func TestTouch(t *testing.T) {
	s := newTestStore(t)

	first, _, _ := s.Upsert("note1", "default", "text", nil, "h1")
	if err := s.Touch("note1", "default"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	got, _ := s.Get("note1", "default")
	if got.AccessedAt == first.AccessedAt {
		t.Error("accessed_at unchanged after Touch")
	}
	if got.UpdatedAt != first.UpdatedAt {
		t.Error("updated_at moved on Touch")
	}

	if err := s.Touch("missing", "default"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Touch missing: error = %v, want NOT_FOUND", err)
	}
}

func TestTouchMany(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("a", "default", "x", nil, "h1")
	s.Upsert("b", "default", "y", nil, "h2")

	// Missing ids are ignored.
	if err := s.TouchMany([]string{"a", "b", "missing"}, "default"); err != nil {
		t.Fatalf("TouchMany() error = %v", err)
	}
}

func TestListRecentOrdering(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("a", "default", "first", nil, "h1")
	s.Upsert("b", "default", "second", nil, "h2")
	s.Upsert("c", "default", "third", nil, "h3")

	recs, err := s.ListRecent("default", 0, OrderByUpdated)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "c" || recs[2].ID != "a" {
		t.Errorf("order = %v", idsOf(recs))
	}

	// Touch a; by access time it should now lead.
	s.Touch("a", "default")
	recs, _ = s.ListRecent("default", 2, OrderByAccessed)
	if len(recs) != 2 || recs[0].ID != "a" {
		t.Errorf("accessed order = %v", idsOf(recs))
	}

	if _, err := s.ListRecent("default", 0, OrderBy("bogus")); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bogus order: error = %v, want INVALID_INPUT", err)
	}
}

func TestQueryByIDPrefix(t *testing.T) {
	s := newTestStore(t)

	s.Upsert(".tag/status", "default", "x", nil, "h1")
	s.Upsert(".tag/topic", "default", "y", nil, "h2")
	s.Upsert("now", "default", "z", nil, "h3")

	recs, err := s.QueryByIDPrefix("default", ".tag/", 0)
	if err != nil {
		t.Fatalf("QueryByIDPrefix() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != ".tag/status" || recs[1].ID != ".tag/topic" {
		t.Errorf("prefix results = %v", idsOf(recs))
	}
}

func TestQueryTag(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("a", "default", "x", item.Tags{"topic": "go", "status": "open"}, "h1")
	s.Upsert("b", "default", "y", item.Tags{"topic": "go"}, "h2")
	s.Upsert("c", "default", "z", item.Tags{"topic": "rust"}, "h3")
	s.Upsert("d", "other", "w", item.Tags{"topic": "go"}, "h4")

	recs, err := s.QueryTag("default", "topic", "go", 0)
	if err != nil {
		t.Fatalf("QueryTag() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("topic=go: %v", idsOf(recs))
	}

	// Key-only query matches any value.
	recs, _ = s.QueryTag("default", "topic", "", 0)
	if len(recs) != 3 {
		t.Errorf("topic=*: %v", idsOf(recs))
	}

	keys, _ := s.ListTagKeys("default")
	if len(keys) != 2 || keys[0] != "status" || keys[1] != "topic" {
		t.Errorf("keys = %v", keys)
	}
	values, _ := s.ListTagValues("default", "topic")
	if len(values) != 2 || values[0] != "go" || values[1] != "rust" {
		t.Errorf("values = %v", values)
	}
}

func TestCollections(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("a", "default", "x", nil, "h1")
	s.Upsert("b", "default", "y", nil, "h2")
	s.Upsert("c", "work", "z", nil, "h3")

	infos, err := s.ListCollections()
	if err != nil {
		t.Fatalf("ListCollections() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "default" || infos[0].Count != 2 || infos[1].Name != "work" {
		t.Errorf("collections = %+v", infos)
	}

	total, _ := s.CountAll()
	if total != 3 {
		t.Errorf("CountAll() = %d", total)
	}

	n, err := s.DeleteCollection("default")
	if err != nil || n != 2 {
		t.Fatalf("DeleteCollection() = %d, %v", n, err)
	}
	count, _ := s.Count("default")
	if count != 0 {
		t.Errorf("Count(default) = %d after DeleteCollection", count)
	}
	count, _ = s.Count("work")
	if count != 1 {
		t.Errorf("Count(work) = %d", count)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("a", "default", "x", nil, "h1")
	if ok, _ := s.Exists("a", "default"); !ok {
		t.Error("Exists(a) = false")
	}
	if ok, _ := s.Exists("a", "other"); ok {
		t.Error("Exists in wrong collection = true")
	}
}

func idsOf(recs []Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

func TestGetVersionNav(t *testing.T) {
	s := newTestStore(t)

	s.Upsert("note", "default", "v1", nil, "h1")
	s.Upsert("note", "default", "v2", nil, "h2")
	s.Upsert("note", "default", "v3", nil, "h3")

	// Viewing current: only older versions to walk back to.
	nav, err := s.GetVersionNav("note", "default", 0)
	if err != nil {
		t.Fatalf("GetVersionNav(0) error = %v", err)
	}
	if len(nav.Next) != 0 {
		t.Errorf("Next = %v, want empty", nav.Next)
	}
	if len(nav.Prev) != 2 || nav.Prev[0] != "@V{1}" || nav.Prev[1] != "@V{2}" {
		t.Errorf("Prev = %v", nav.Prev)
	}

	// Viewing the oldest version: everything newer is ahead.
	nav, err = s.GetVersionNav("note", "default", 2)
	if err != nil {
		t.Fatalf("GetVersionNav(2) error = %v", err)
	}
	if len(nav.Prev) != 0 {
		t.Errorf("Prev = %v, want empty", nav.Prev)
	}
	if len(nav.Next) != 2 || nav.Next[0] != "@V{1}" || nav.Next[1] != "current" {
		t.Errorf("Next = %v", nav.Next)
	}

	if _, err := s.GetVersionNav("note", "default", 3); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("offset past history: error = %v", err)
	}
	if _, err := s.GetVersionNav("note", "default", -1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("negative offset: error = %v", err)
	}
}
