// Package meta implements meta-documents: stored documents under
// .meta/ whose bodies are re-evaluated at read time. A meta-doc line
// is either a query (every token a key=value pair, ANDed together) or
// a context-match key (bare "key="), which substitutes the reading
// item's own tag value into the queries. Everything else is prose and
// ignored by the parser.
package meta

import (
	"regexp"
	"strings"
)

var (
	queryPairRe  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*=\S+$`)
	contextKeyRe = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)=$`)
)

// Query is one AND-query over tags.
type Query map[string]string

// ParseMetaDoc parses a meta-doc body into query lines and
// context-match keys.
func ParseMetaDoc(content string) (queries []Query, contextKeys []string) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := contextKeyRe.FindStringSubmatch(line); m != nil {
			contextKeys = append(contextKeys, m[1])
			continue
		}

		tokens := strings.Fields(line)
		pairs := Query{}
		isQuery := true
		for _, token := range tokens {
			if !queryPairRe.MatchString(token) {
				isQuery = false
				break
			}
			k, v, _ := strings.Cut(token, "=")
			pairs[k] = v
		}
		if isQuery && len(pairs) > 0 {
			queries = append(queries, pairs)
		}
	}
	return queries, contextKeys
}

// ExpandQueries crosses query lines with the reading item's context
// values. With no context values the query lines pass through as-is.
func ExpandQueries(queries []Query, contextValues map[string]string) []Query {
	if len(contextValues) == 0 {
		return queries
	}
	var expanded []Query
	for _, q := range queries {
		for ck, cv := range contextValues {
			merged := Query{}
			for k, v := range q {
				merged[k] = v
			}
			merged[ck] = cv
			expanded = append(expanded, merged)
		}
	}
	return expanded
}
