package store

import (
	"github.com/hpungsan/keep/internal/errors"
)

// OrderBy selects the timestamp column used for recency listings.
type OrderBy string

const (
	OrderByUpdated  OrderBy = "updated"
	OrderByAccessed OrderBy = "accessed"
)

// CollectionInfo pairs a collection name with its document count.
type CollectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListRecent returns up to limit documents ordered by recency,
// newest first, ties broken by id ascending.
func (s *DocumentStore) ListRecent(collection string, limit int, orderBy OrderBy) ([]Record, error) {
	column := "updated_at"
	switch orderBy {
	case OrderByAccessed:
		column = "accessed_at"
	case OrderByUpdated, "":
	default:
		return nil, errors.NewInvalidInput("order must be one of: updated, accessed")
	}

	query := `
		SELECT id, collection, summary, tags_json, content_hash, created_at, updated_at, accessed_at
		FROM documents WHERE collection = ?
		ORDER BY ` + column + ` DESC, id ASC`
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// ListIDs returns every document id in a collection, sorted.
func (s *DocumentStore) ListIDs(collection string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM documents WHERE collection = ? ORDER BY id ASC`, collection)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// QueryByIDPrefix returns documents whose id starts with prefix,
// sorted by id.
func (s *DocumentStore) QueryByIDPrefix(collection, prefix string, limit int) ([]Record, error) {
	query := `
		SELECT id, collection, summary, tags_json, content_hash, created_at, updated_at, accessed_at
		FROM documents WHERE collection = ? AND id GLOB ?
		ORDER BY id ASC`
	args := []any{collection, globEscape(prefix) + "*"}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// globEscape wraps GLOB metacharacters in brackets so a prefix
// containing them matches literally.
func globEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[':
			out = append(out, '[', s[i], ']')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// QueryTag returns documents carrying the given tag key, optionally
// restricted to an exact value, newest first.
func (s *DocumentStore) QueryTag(collection, key, value string, limit int) ([]Record, error) {
	query := `
		SELECT d.id, d.collection, d.summary, d.tags_json, d.content_hash, d.created_at, d.updated_at, d.accessed_at
		FROM documents d
		JOIN tag_index t ON t.collection = d.collection AND t.id = d.id
		WHERE d.collection = ? AND t.key = ?`
	args := []any{collection, key}
	if value != "" {
		query += ` AND t.value = ?`
		args = append(args, value)
	}
	query += ` ORDER BY d.updated_at DESC, d.id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRecords(query, args...)
}

// ListTagKeys returns the distinct tag keys in use, sorted.
func (s *DocumentStore) ListTagKeys(collection string) ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT key FROM tag_index WHERE collection = ? ORDER BY key ASC`, collection)
}

// ListTagValues returns the distinct values stored under a key, sorted.
func (s *DocumentStore) ListTagValues(collection, key string) ([]string, error) {
	return s.queryStrings(`
		SELECT DISTINCT value FROM tag_index WHERE collection = ? AND key = ? ORDER BY value ASC`,
		collection, key)
}

// Count returns the number of documents in a collection.
func (s *DocumentStore) Count(collection string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&count)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// CountAll returns the number of documents across all collections.
func (s *DocumentStore) CountAll() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// ListCollections returns every collection with its document count,
// sorted by name.
func (s *DocumentStore) ListCollections() ([]CollectionInfo, error) {
	rows, err := s.db.Query(`
		SELECT collection, COUNT(*) FROM documents GROUP BY collection ORDER BY collection ASC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var infos []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Count); err != nil {
			return nil, errors.NewInternal(err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return infos, nil
}

// DeleteCollection removes every document, version and tag row in a
// collection, returning how many documents were removed.
func (s *DocumentStore) DeleteCollection(collection string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errors.NewTxAborted(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	if _, err := tx.Exec(`DELETE FROM document_versions WHERE collection = ?`, collection); err != nil {
		return 0, errors.NewInternal(err)
	}
	if _, err := tx.Exec(`DELETE FROM tag_index WHERE collection = ?`, collection); err != nil {
		return 0, errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewTxAborted(err)
	}
	return int(n), nil
}

func (s *DocumentStore) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var tagsJSON string
		if err := rows.Scan(&rec.ID, &rec.Collection, &rec.Summary, &tagsJSON,
			&rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt, &rec.AccessedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		if rec.Tags, err = unmarshalTags(tagsJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return records, nil
}

func (s *DocumentStore) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}
