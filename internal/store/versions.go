package store

import (
	"database/sql"
	"fmt"

	"github.com/hpungsan/keep/internal/errors"
)

// VersionCount returns how many archived versions a document has.
func (s *DocumentStore) VersionCount(id, collection string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM document_versions WHERE id = ? AND collection = ?`,
		id, collection).Scan(&count)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// GetVersion retrieves an archived version by back-offset: offset 1 is
// the most recently archived state, offset 2 the one before it, and so
// on. Offset 0 is invalid here; callers resolve it to the current row.
func (s *DocumentStore) GetVersion(id, collection string, offset int) (*Version, error) {
	if offset < 1 {
		return nil, errors.NewInvalidInput("version offset must be at least 1")
	}

	maxVersion, err := s.maxVersion(id, collection)
	if err != nil {
		return nil, err
	}
	target := maxVersion - (offset - 1)
	if target < 1 {
		return nil, errors.NewVersionNotFound(id, offset)
	}

	row := s.db.QueryRow(`
		SELECT id, collection, version, summary, tags_json, content_hash, created_at
		FROM document_versions WHERE id = ? AND collection = ? AND version = ?`,
		id, collection, target)

	v := &Version{}
	var tagsJSON string
	err = row.Scan(&v.ID, &v.Collection, &v.Version, &v.Summary, &tagsJSON, &v.ContentHash, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewVersionNotFound(id, offset)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if v.Tags, err = unmarshalTags(tagsJSON); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions returns a document's archived versions, newest first.
func (s *DocumentStore) ListVersions(id, collection string, limit int) ([]Version, error) {
	query := `
		SELECT id, collection, version, summary, tags_json, content_hash, created_at
		FROM document_versions WHERE id = ? AND collection = ?
		ORDER BY version DESC`
	args := []any{id, collection}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		var tagsJSON string
		if err := rows.Scan(&v.ID, &v.Collection, &v.Version, &v.Summary, &tagsJSON, &v.ContentHash, &v.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if v.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return versions, nil
}

// VersionNav lists the labels reachable from a version view, nearest
// first, for history paging.
type VersionNav struct {
	Prev []string `json:"prev"`
	Next []string `json:"next"`
}

// GetVersionNav reports which versions surround the given offset.
// Offset 0 is the current document; its Next is always empty.
func (s *DocumentStore) GetVersionNav(id, collection string, offset int) (*VersionNav, error) {
	if offset < 0 {
		return nil, errors.NewInvalidInput("version offset must not be negative")
	}
	total, err := s.VersionCount(id, collection)
	if err != nil {
		return nil, err
	}
	if offset > total {
		return nil, errors.NewVersionNotFound(id, offset)
	}

	nav := &VersionNav{Prev: []string{}, Next: []string{}}
	for o := offset + 1; o <= total; o++ {
		nav.Prev = append(nav.Prev, versionLabel(o))
	}
	for o := offset - 1; o >= 0; o-- {
		nav.Next = append(nav.Next, versionLabel(o))
	}
	return nav, nil
}

func versionLabel(offset int) string {
	if offset == 0 {
		return "current"
	}
	return fmt.Sprintf("@V{%d}", offset)
}

func (s *DocumentStore) maxVersion(id, collection string) (int, error) {
	var max int
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE id = ? AND collection = ?`,
		id, collection).Scan(&max)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return max, nil
}
