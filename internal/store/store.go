// Package store implements the versioned document store over SQLite.
//
// Each document is a current row in the documents table plus zero or
// more archived rows in document_versions. Writes that change the
// content hash or the tags archive the prior current row first, so the
// version history records every distinct state the document has held.
// Tags are mirrored into tag_index for exact-match queries.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
)

// Record is the current state of a stored document.
type Record struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Summary     string    `json:"summary"`
	Tags        item.Tags `json:"tags"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	AccessedAt  string    `json:"accessed_at"`
}

// Version is one archived state of a document.
type Version struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Version     int       `json:"version"`
	Summary     string    `json:"summary"`
	Tags        item.Tags `json:"tags"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

// Item converts a record to its outward item form, folding the row
// timestamps into system tags.
func (r *Record) Item() item.Item {
	tags := r.Tags.Clone()
	if tags == nil {
		tags = item.Tags{}
	}
	tags[item.TagCreated] = r.CreatedAt
	tags[item.TagUpdated] = r.UpdatedAt
	tags[item.TagUpdatedDate] = item.DatePart(r.UpdatedAt)
	tags[item.TagAccessed] = r.AccessedAt
	return item.Item{
		ID:          r.ID,
		Summary:     r.Summary,
		Tags:        tags,
		ContentHash: r.ContentHash,
	}
}

// DocumentStore provides document persistence over an initialized
// database handle. The clock is injectable for tests.
type DocumentStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a DocumentStore over db.
func New(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db, now: time.Now}
}

// WithClock overrides the store's clock. Returns the store for chaining.
func (s *DocumentStore) WithClock(now func() time.Time) *DocumentStore {
	s.now = now
	return s
}

// DB exposes the underlying handle for sibling packages that share the
// same database file (pending queue, local vector backend).
func (s *DocumentStore) DB() *sql.DB {
	return s.db
}

func (s *DocumentStore) timestamp() string {
	return item.Timestamp(s.now())
}

func marshalTags(tags item.Tags) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}

func unmarshalTags(data string) (item.Tags, error) {
	tags := item.Tags{}
	if data == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, errors.NewCorruption("bad tags_json: " + err.Error())
	}
	return tags, nil
}

// Upsert writes a document, archiving the prior current state first
// when the content hash or tags differ from it. The returned bool
// reports whether the content hash changed (callers use it to skip
// re-embedding on no-op writes). Timestamps follow the archive rule:
// created_at is preserved across updates, updated_at moves only when
// something changed, accessed_at always moves.
func (s *DocumentStore) Upsert(id, collection, summary string, tags item.Tags, contentHash string) (*Record, bool, error) {
	now := s.timestamp()
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, errors.NewTxAborted(err)
	}
	defer tx.Rollback()

	prev, err := getTx(tx, id, collection)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, false, err
	}

	rec := &Record{
		ID:          id,
		Collection:  collection,
		Summary:     summary,
		Tags:        tags.Clone(),
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
		AccessedAt:  now,
	}

	contentChanged := prev == nil || prev.ContentHash != contentHash

	if prev == nil {
		_, err = tx.Exec(`
			INSERT INTO documents (id, collection, summary, tags_json, content_hash, created_at, updated_at, accessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, collection, summary, tagsJSON, contentHash, now, now, now,
		)
		if err != nil {
			return nil, false, errors.NewInternal(err)
		}
	} else {
		changed := contentChanged || !equalTags(prev.Tags, tags)
		if changed {
			if err := archiveTx(tx, prev); err != nil {
				return nil, false, err
			}
		}
		rec.CreatedAt = prev.CreatedAt
		if !contentChanged {
			// Same content: the stored summary may be summarizer
			// output, which the caller's re-derived placeholder
			// must not clobber on a tag-only change.
			rec.Summary = prev.Summary
		}
		if !changed {
			rec.UpdatedAt = prev.UpdatedAt
		}
		_, err = tx.Exec(`
			UPDATE documents
			SET summary = ?, tags_json = ?, content_hash = ?, updated_at = ?, accessed_at = ?
			WHERE id = ? AND collection = ?`,
			rec.Summary, tagsJSON, contentHash, rec.UpdatedAt, now, id, collection,
		)
		if err != nil {
			return nil, false, errors.NewInternal(err)
		}
	}

	if err := replaceTagsTx(tx, id, collection, tags); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, errors.NewTxAborted(err)
	}
	return rec, contentChanged, nil
}

// archiveTx copies a current row into document_versions with the next
// version number for that document.
func archiveTx(tx *sql.Tx, prev *Record) error {
	tagsJSON, err := marshalTags(prev.Tags)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO document_versions (id, collection, version, summary, tags_json, content_hash, created_at)
		SELECT ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?
		FROM document_versions WHERE id = ? AND collection = ?`,
		prev.ID, prev.Collection, prev.Summary, tagsJSON, prev.ContentHash, prev.UpdatedAt,
		prev.ID, prev.Collection,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func replaceTagsTx(tx *sql.Tx, id, collection string, tags item.Tags) error {
	if _, err := tx.Exec(`DELETE FROM tag_index WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return errors.NewInternal(err)
	}
	for _, key := range tags.SortedKeys() {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO tag_index (collection, key, value, id) VALUES (?, ?, ?, ?)`,
			collection, key, tags[key], id,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

func equalTags(a, b item.Tags) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Get retrieves a document without touching its access time.
func (s *DocumentStore) Get(id, collection string) (*Record, error) {
	return getQuerier(s.db, id, collection)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getTx(tx *sql.Tx, id, collection string) (*Record, error) {
	return getQuerier(tx, id, collection)
}

func getQuerier(q querier, id, collection string) (*Record, error) {
	row := q.QueryRow(`
		SELECT id, collection, summary, tags_json, content_hash, created_at, updated_at, accessed_at
		FROM documents WHERE id = ? AND collection = ?`, id, collection)

	rec := &Record{}
	var tagsJSON string
	err := row.Scan(&rec.ID, &rec.Collection, &rec.Summary, &tagsJSON,
		&rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt, &rec.AccessedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if rec.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return nil, err
	}
	return rec, nil
}

// Exists reports whether a document exists.
func (s *DocumentStore) Exists(id, collection string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM documents WHERE id = ? AND collection = ? LIMIT 1`,
		id, collection).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// Touch refreshes a document's access time.
func (s *DocumentStore) Touch(id, collection string) error {
	result, err := s.db.Exec(`UPDATE documents SET accessed_at = ? WHERE id = ? AND collection = ?`,
		s.timestamp(), id, collection)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// TouchMany refreshes access times for several documents in one
// statement. Missing ids are ignored.
func (s *DocumentStore) TouchMany(ids []string, collection string) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.timestamp()
	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewTxAborted(err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE documents SET accessed_at = ? WHERE id = ? AND collection = ?`,
			now, id, collection); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewTxAborted(err)
	}
	return nil
}

// UpdateSummary replaces a document's summary in place. Summaries are
// derived text, so this never archives a version.
func (s *DocumentStore) UpdateSummary(id, collection, summary string) error {
	result, err := s.db.Exec(`
		UPDATE documents SET summary = ?, updated_at = ? WHERE id = ? AND collection = ?`,
		summary, s.timestamp(), id, collection)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// UpdateTags replaces a document's tags, archiving the prior state
// when the tags actually differ.
func (s *DocumentStore) UpdateTags(id, collection string, tags item.Tags) (*Record, error) {
	now := s.timestamp()
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.NewTxAborted(err)
	}
	defer tx.Rollback()

	prev, err := getTx(tx, id, collection)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:          id,
		Collection:  collection,
		Summary:     prev.Summary,
		Tags:        tags.Clone(),
		ContentHash: prev.ContentHash,
		CreatedAt:   prev.CreatedAt,
		UpdatedAt:   prev.UpdatedAt,
		AccessedAt:  now,
	}

	if !equalTags(prev.Tags, tags) {
		if err := archiveTx(tx, prev); err != nil {
			return nil, err
		}
		rec.UpdatedAt = now
	}

	_, err = tx.Exec(`
		UPDATE documents SET tags_json = ?, updated_at = ?, accessed_at = ?
		WHERE id = ? AND collection = ?`,
		tagsJSON, rec.UpdatedAt, now, id, collection)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := replaceTagsTx(tx, id, collection, tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewTxAborted(err)
	}
	return rec, nil
}

// Delete removes a document and its tag index rows. When
// deleteVersions is true, archived versions go too; otherwise the
// version history stays available under the same id.
func (s *DocumentStore) Delete(id, collection string, deleteVersions bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewTxAborted(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM documents WHERE id = ? AND collection = ?`, id, collection)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}

	if _, err := tx.Exec(`DELETE FROM tag_index WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return errors.NewInternal(err)
	}
	if deleteVersions {
		if _, err := tx.Exec(`DELETE FROM document_versions WHERE id = ? AND collection = ?`, id, collection); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTxAborted(err)
	}
	return nil
}
