package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/keeper"
)

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if keepErr, ok := err.(*errors.KeepError); ok {
		return cli.Exit(capitalize(keepErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// safeIDPattern matches ids that need no quoting in shell-facing output.
var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_./:@{}%-]+$`)

// shellQuoteID wraps an id in single quotes when it contains whitespace
// or shell metacharacters. JSON output never quotes.
func shellQuoteID(id string) string {
	if safeIDPattern.MatchString(id) {
		return id
	}
	return "'" + strings.ReplaceAll(id, "'", `'\''`) + "'"
}

// printItem writes one item as a YAML frontmatter document:
// a header with id and tags, then the summary body.
func printItem(w io.Writer, it item.Item, versionCount, offset int) {
	fmt.Fprintln(w, "---")
	if offset > 0 {
		fmt.Fprintf(w, "id: %s @V{%d}\n", shellQuoteID(it.ID), offset)
	} else {
		fmt.Fprintf(w, "id: %s\n", shellQuoteID(it.ID))
	}
	if len(it.Tags) > 0 {
		fmt.Fprintln(w, "tags:")
		for _, key := range it.Tags.SortedKeys() {
			fmt.Fprintf(w, "  %s: %s\n", key, it.Tags[key])
		}
	}
	if versionCount > 0 {
		fmt.Fprintf(w, "versions: %d\n", versionCount)
	}
	if it.Score != nil {
		fmt.Fprintf(w, "score: %.3f\n", *it.Score)
	}
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, it.Summary)
}

// printGetResult renders a get: frontmatter documents on stdout,
// related and similar blocks on stderr so stdout stays parseable.
func printGetResult(result *keeper.GetResult) {
	for i, it := range result.Items {
		count := 0
		if len(result.Items) == 1 {
			count = result.VersionCount
		}
		printItem(os.Stdout, it, count, result.Offset)
		if i < len(result.Items)-1 {
			fmt.Fprintln(os.Stdout)
		}
	}

	if len(result.Related) > 0 {
		names := make([]string, 0, len(result.Related))
		for name := range result.Related {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(os.Stderr, "related (%s):\n", name)
			for _, it := range result.Related[name] {
				fmt.Fprintf(os.Stderr, "  %s\t%s\n", shellQuoteID(it.ID), oneLine(it.Summary))
			}
		}
	}
	if len(result.Similar) > 0 {
		fmt.Fprintln(os.Stderr, "similar:")
		for _, it := range result.Similar {
			fmt.Fprintf(os.Stderr, "  %s\t%s\n", shellQuoteID(it.ID), oneLine(it.Summary))
		}
	}
}

// printItemLines writes one summary line per item to stdout.
func printItemLines(items []item.Item) {
	for _, it := range items {
		fmt.Printf("%s\t%s\n", shellQuoteID(it.ID), oneLine(it.Summary))
	}
}

// oneLine clips a summary to its first line for list displays.
func oneLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 80
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
