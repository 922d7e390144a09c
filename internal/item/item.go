// Package item defines the user-visible entity and its tag rules.
package item

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/keep/internal/errors"
)

// SystemTagPrefix marks tags that only the core may write.
const SystemTagPrefix = "_"

// System tag keys managed by the store.
const (
	TagCreated     = "_created"
	TagUpdated     = "_updated"
	TagUpdatedDate = "_updated_date"
	TagAccessed    = "_accessed"
	TagSource      = "_source"
	TagContentType = "_content_type"
	TagBundledHash = "_bundled_hash"
)

// Item is the single user-visible entity.
type Item struct {
	// ID is an opaque identifier: a URI, a content hash (% + hex),
	// a reserved name (now, .meta/todo, ...) or a user-chosen slug.
	ID string `json:"id"`

	// Summary is a short human description, never longer than the
	// configured max_summary_length.
	Summary string `json:"summary"`

	// Tags maps key -> value. Keys starting with _ are system tags.
	Tags Tags `json:"tags,omitempty"`

	// ContentHash is the sha256 of the source body, empty for pure
	// inline items whose summary is the content.
	ContentHash string `json:"content_hash,omitempty"`

	// Score is similarity in [0,1], present only on search results.
	Score *float64 `json:"score,omitempty"`
}

// Tags is an unordered key -> value mapping with a controlled key
// character set. Values are stored as strings; numbers, booleans and
// timestamps round-trip through their string forms.
type Tags map[string]string

// tagKeyPattern is the allowed shape for tag keys.
var tagKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// ValidKey reports whether key is an acceptable tag key.
func ValidKey(key string) bool {
	return tagKeyPattern.MatchString(key)
}

// IsSystemKey reports whether key is reserved for the core.
func IsSystemKey(key string) bool {
	return strings.HasPrefix(key, SystemTagPrefix)
}

// FilterNonSystem returns a copy of t with all system tags removed.
// Applied at every user-write boundary; the store itself keeps system
// tags alongside user tags.
func (t Tags) FilterNonSystem() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		if !IsSystemKey(k) {
			out[k] = v
		}
	}
	return out
}

// UserEqual reports whether the non-system portions of two tag sets match.
func (t Tags) UserEqual(other Tags) bool {
	a := t.FilterNonSystem()
	b := other.FilterNonSystem()
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

// Clone returns a shallow copy.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// SortedKeys returns tag keys in lexical order, for stable display.
func (t Tags) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseTagArg parses a strict key=value token from the CLI or MCP
// surface. The value may be empty ("status=") but the separator is
// required and the key must pass ValidKey.
func ParseTagArg(arg string) (string, string, error) {
	k, v, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", errors.NewInvalidInput("tag must be key=value: " + arg)
	}
	if !ValidKey(k) {
		return "", "", errors.NewInvalidInput("invalid tag key: " + k)
	}
	return k, v, nil
}

// collectionPattern restricts collection names to lowercase ASCII
// starting with a letter.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateCollection checks a collection name.
func ValidateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return errors.NewInvalidInput("invalid collection name: " + name)
	}
	return nil
}

// Timestamp formats t as ISO-8601 UTC with second precision and a
// trailing Z, the only timestamp form the store persists.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// DatePart returns the YYYY-MM-DD prefix of a stored timestamp.
func DatePart(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}
