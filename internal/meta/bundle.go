package meta

import (
	"embed"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/ingest"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/store"
)

//go:embed system/*.md
var systemDocs embed.FS

// SystemDocIDs maps bundled filenames to their document ids.
var SystemDocIDs = map[string]string{
	"now.md":            ".now",
	"conversations.md":  ".conversations",
	"domains.md":        ".domains",
	"library.md":        ".library",
	"tag-act.md":        ".tag/act",
	"tag-status.md":     ".tag/status",
	"tag-project.md":    ".tag/project",
	"tag-topic.md":      ".tag/topic",
	"tag-type.md":       ".tag/type",
	"meta-todo.md":      ".meta/todo",
	"meta-learnings.md": ".meta/learnings",
}

type frontmatter struct {
	Tags map[string]string `yaml:"tags"`
}

// LoadFrontmatter splits optional YAML frontmatter from content.
// Returns the body and the frontmatter tags (empty when absent).
func LoadFrontmatter(text string) (string, item.Tags, error) {
	if !strings.HasPrefix(text, "---") {
		return text, item.Tags{}, nil
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return text, item.Tags{}, nil
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return "", nil, errors.NewInvalidInput("bad frontmatter: " + err.Error())
	}
	tags := item.Tags{}
	for k, v := range fm.Tags {
		tags[k] = v
	}
	return strings.TrimLeft(parts[2], "\n"), tags, nil
}

// SeedStats reports what a seeding pass did.
type SeedStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Seed installs or refreshes the bundled system documents. A stored
// doc whose content hash no longer matches its bundled_hash tag has
// been edited by the user and is left alone; everything else follows
// the bundle. System docs are reference material and are stored
// verbatim, never summarized.
func Seed(docs *store.DocumentStore, collection string) (*SeedStats, error) {
	stats := &SeedStats{}

	entries, err := systemDocs.ReadDir("system")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, entry := range entries {
		id, ok := SystemDocIDs[entry.Name()]
		if !ok {
			continue
		}
		raw, err := systemDocs.ReadFile("system/" + entry.Name())
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		content, tags, err := LoadFrontmatter(string(raw))
		if err != nil {
			return nil, err
		}

		bundledHash := ingest.HashText(content)
		tags["category"] = "system"
		tags[item.TagBundledHash] = bundledHash

		existing, err := docs.Get(id, collection)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			prevHash := existing.Tags[item.TagBundledHash]
			if prevHash != "" && existing.ContentHash != prevHash {
				// User edited this doc, preserve their version.
				stats.Skipped++
				continue
			}
			if existing.ContentHash == bundledHash && existing.Tags.UserEqual(tags) {
				continue
			}
		}

		if _, _, err := docs.Upsert(id, collection, content, tags, bundledHash); err != nil {
			return nil, err
		}
		if existing != nil {
			stats.Updated++
		} else {
			stats.Created++
		}
	}
	return stats, nil
}
