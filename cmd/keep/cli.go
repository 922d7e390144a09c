package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/keep/internal/config"
	"github.com/hpungsan/keep/internal/errors"
	"github.com/hpungsan/keep/internal/item"
	"github.com/hpungsan/keep/internal/keeper"
	"github.com/hpungsan/keep/internal/store"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(k *keeper.Keeper, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "keep",
		Usage:   "Reflective memory store",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Machine-readable JSON output"},
			&cli.StringFlag{Name: "store", Usage: "Store directory (default: $KEEP_STORE or ~/.keep)"},
			&cli.StringFlag{Name: "collection", Aliases: []string{"c"}, Usage: "Collection name"},
		},
		Commands: []*cli.Command{
			findCmd(k),
			putCmd(k, false),
			getCmd(k),
			delCmd(k),
			listCmd(k),
			collectionsCmd(k),
			reindexCmd(k),
			processCmd(k),
			putCmd(k, true), // hidden "update" alias
			delAliasCmd(k),  // hidden "delete" alias
			touchCmd(k),     // hidden
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// findCmd creates the find command.
func findCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:      "find",
		Usage:     "Semantic search over summaries",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Maximum results"},
			&cli.StringFlag{Name: "since", Usage: "Only items updated on or after YYYY-MM-DD"},
			&cli.BoolFlag{Name: "no-touch", Usage: "Do not advance access times"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidInput("query is required"))
			}
			items, err := k.Find(c.Context, keeper.FindInput{
				Query:      strings.Join(c.Args().Slice(), " "),
				Collection: c.String("collection"),
				Limit:      c.Int("limit"),
				Since:      c.String("since"),
				NoTouch:    c.Bool("no-touch"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(items)
			}
			printItemLines(items)
			return nil
		},
	}
}

// putCmd creates the put command, or its hidden update alias.
func putCmd(k *keeper.Keeper, alias bool) *cli.Command {
	name := "put"
	if alias {
		name = "update"
	}
	return &cli.Command{
		Name:      name,
		Hidden:    alias,
		Usage:     "Store or update a document from inline text, a path, a URL, or stdin (-)",
		ArgsUsage: "<uri|-|text>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag as key=value; an empty value clears the tag"},
			&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Usage: "Explicit summary for sourced content"},
			&cli.StringFlag{Name: "id", Usage: "Document id (default: content-addressed for inline text)"},
		},
		Action: func(c *cli.Context) error {
			tags, err := parseTagFlags(c.StringSlice("tag"))
			if err != nil {
				return outputError(err)
			}

			// No content with an id and tags retags the document
			// in place, leaving its content and summary alone.
			if c.NArg() == 0 && !stdinHasData() && c.String("id") != "" && len(tags) > 0 {
				it, err := k.UpdateTags(c.Context, c.String("id"), c.String("collection"), tags)
				if err != nil {
					return outputError(err)
				}
				if c.Bool("json") {
					return outputJSON(it)
				}
				printItem(os.Stdout, *it, 0, 0)
				return nil
			}

			content, err := putContent(c)
			if err != nil {
				return outputError(err)
			}

			it, err := k.Remember(c.Context, keeper.RememberInput{
				Content:    content,
				ID:         c.String("id"),
				Collection: c.String("collection"),
				Tags:       tags,
				Summary:    c.String("summary"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(it)
			}
			printItem(os.Stdout, *it, 0, 0)
			return nil
		},
	}
}

// putContent resolves the put argument: inline text, a source, or stdin.
func putContent(c *cli.Context) (string, error) {
	arg := strings.Join(c.Args().Slice(), " ")
	if arg == "-" || (arg == "" && stdinHasData()) {
		text, err := readStdin()
		if err != nil {
			return "", errors.NewInternal(err)
		}
		if text == "" {
			return "", errors.NewInvalidInput("stdin is empty")
		}
		return text, nil
	}
	if arg == "" {
		return "", errors.NewInvalidInput("content is required: inline text, a path or URL, or - for stdin")
	}
	return arg, nil
}

// getCmd creates the get command.
func getCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Retrieve documents by id",
		ArgsUsage: "<id...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Version offset (1 = most recently archived); requires one id"},
			&cli.BoolFlag{Name: "no-similar", Usage: "Skip related and similar item lookup"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidInput("at least one id is required"))
			}
			result, err := k.Get(c.Context, keeper.GetInput{
				IDs:        c.Args().Slice(),
				Collection: c.String("collection"),
				Offset:     c.Int("offset"),
				Expand:     !c.Bool("no-similar"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			printGetResult(result)
			return nil
		},
	}
}

// delCmd creates the del command.
func delCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:      "del",
		Usage:     "Delete documents",
		ArgsUsage: "<id...>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Delete without confirmation"},
			&cli.BoolFlag{Name: "keep-versions", Usage: "Retain archived versions"},
		},
		Action: deleteAction(k),
	}
}

// delAliasCmd creates the hidden delete alias.
func delAliasCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Hidden:    true,
		Usage:     "Delete documents",
		ArgsUsage: "<id...>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Delete without confirmation"},
			&cli.BoolFlag{Name: "keep-versions", Usage: "Retain archived versions"},
		},
		Action: deleteAction(k),
	}
}

func deleteAction(k *keeper.Keeper) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() == 0 {
			return outputError(errors.NewInvalidInput("at least one id is required"))
		}
		ids := c.Args().Slice()
		if !c.Bool("force") && !confirmDelete(ids) {
			return outputError(errors.NewInvalidInput("aborted; use --force to delete without confirmation"))
		}
		for _, id := range ids {
			if err := k.Delete(c.Context, id, c.String("collection"), !c.Bool("keep-versions")); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(os.Stderr, "deleted %s\n", shellQuoteID(id))
		}
		return nil
	}
}

// confirmDelete asks for confirmation on an interactive terminal.
// Piped stdin cannot confirm, so those callers must pass --force.
func confirmDelete(ids []string) bool {
	if !isTerminal() {
		return false
	}
	fmt.Fprintf(os.Stderr, "delete %d document(s)? [y/N] ", len(ids))
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// listCmd creates the list command.
func listCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List documents by recency or tag",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Filter by tag key=value (key= matches any value)"},
			&cli.BoolFlag{Name: "recent", Usage: "List by recency (the default)"},
			&cli.StringFlag{Name: "order", Value: "updated", Usage: "Sort column: updated|accessed"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum results"},
			&cli.StringFlag{Name: "since", Usage: "Only items updated on or after YYYY-MM-DD"},
			&cli.StringFlag{Name: "tags", Usage: "List distinct tag keys, or values of the given key"},
		},
		Action: func(c *cli.Context) error {
			coll := c.String("collection")

			if c.IsSet("tags") {
				return listTags(c, k, coll)
			}

			if pairs := c.StringSlice("tag"); len(pairs) > 0 {
				query := map[string]string{}
				for _, pair := range pairs {
					key, value, err := item.ParseTagArg(pair)
					if err != nil {
						return outputError(err)
					}
					query[key] = value
				}
				items, err := k.QueryTag(coll, query, c.Int("limit"))
				if err != nil {
					return outputError(err)
				}
				if c.Bool("json") {
					return outputJSON(items)
				}
				printItemLines(items)
				return nil
			}

			items, err := k.List(coll, c.Int("limit"), store.OrderBy(c.String("order")), c.String("since"))
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(items)
			}
			printItemLines(items)
			return nil
		},
	}
}

// listTags lists distinct tag keys, or the values of one key.
func listTags(c *cli.Context, k *keeper.Keeper, coll string) error {
	var values []string
	var err error
	if key := c.String("tags"); key != "" {
		values, err = k.TagValues(coll, key)
	} else {
		values, err = k.TagKeys(coll)
	}
	if err != nil {
		return outputError(err)
	}
	if c.Bool("json") {
		return outputJSON(values)
	}
	for _, v := range values {
		fmt.Println(v)
	}
	return nil
}

// collectionsCmd creates the collections command.
func collectionsCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "List collections with document counts",
		Action: func(c *cli.Context) error {
			infos, err := k.Collections()
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(infos)
			}
			for _, info := range infos {
				fmt.Printf("%s\t%d\n", info.Name, info.Count)
			}
			return nil
		},
	}
}

// reindexCmd creates the reindex command.
func reindexCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Re-seed bundled documents and rebuild the vector index",
		Action: func(c *cli.Context) error {
			result, err := k.Reindex(c.Context, c.String("collection"))
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			fmt.Fprintf(os.Stderr, "reindexed %s: %d documents, %d embedded, %d system docs seeded\n",
				result.Collection, result.Documents, result.Indexed, result.Seeded.Created+result.Seeded.Updated)
			return nil
		},
	}
}

// processCmd creates the process command.
func processCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Summarize queued documents",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 50, Usage: "Maximum jobs to process"},
		},
		Action: func(c *cli.Context) error {
			result, err := k.ProcessPending(c.Context, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(result)
			}
			fmt.Fprintf(os.Stderr, "processed %d, failed %d, remaining %d\n",
				result.Processed, result.Failed, result.Remaining)
			return nil
		},
	}
}

// touchCmd creates the hidden touch command: it refreshes access
// times without reading, for scripts that want to pin recency.
func touchCmd(k *keeper.Keeper) *cli.Command {
	return &cli.Command{
		Name:      "touch",
		Hidden:    true,
		Usage:     "Refresh document access times",
		ArgsUsage: "<id...>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidInput("at least one id is required"))
			}
			for _, id := range c.Args().Slice() {
				if err := k.Touch(id, c.String("collection")); err != nil {
					return outputError(err)
				}
			}
			return nil
		},
	}
}

// Helper functions

// parseTagFlags converts repeated --tag key=value flags to a tag map.
func parseTagFlags(pairs []string) (item.Tags, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := item.Tags{}
	for _, pair := range pairs {
		key, value, err := item.ParseTagArg(pair)
		if err != nil {
			return nil, err
		}
		tags[key] = value
	}
	return tags, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
