package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var putToolDef = mcp.NewTool("keep_put",
	mcp.WithDescription(
		"Store or update a document. Content may be inline text, a file path, or a URL; "+
			"file and URL sources are fetched and recorded with provenance tags. "+
			"Re-putting identical content is a no-op; changed content archives the prior version. "+
			"Omitting content while supplying id and tags updates tags only.",
	),
	mcp.WithString("content",
		mcp.Description("Inline text, a file path, or an http(s) URL. May be omitted for a tags-only update."),
	),
	mcp.WithString("id",
		mcp.Description("Document id. Defaults to a content-addressed id for inline text."),
	),
	mcp.WithString("collection",
		mcp.Description("Collection name (default: the configured default collection)"),
	),
	mcp.WithObject("tags",
		mcp.Description("Tag key=value pairs. An empty value clears the tag. Keys starting with _ are reserved and silently dropped."),
	),
	mcp.WithString("summary",
		mcp.Description("Explicit summary for sourced content, overriding automatic summarization"),
	),
)

var getToolDef = mcp.NewTool("keep_get",
	mcp.WithDescription(
		"Retrieve documents by id. Fails whole: if any id is missing nothing is returned. "+
			"With a version offset, returns an archived version of a single document "+
			"(1 = most recently archived). With expand, meta documents and similar items are attached.",
	),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Document ids to retrieve"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithString("collection",
		mcp.Description("Collection name"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Version offset; requires exactly one id"),
	),
	mcp.WithBoolean("expand",
		mcp.Description("Attach related items from meta documents and nearest neighbors"),
	),
)

var findToolDef = mcp.NewTool("keep_find",
	mcp.WithDescription(
		"Semantic search over document summaries. Scores blend similarity with recency. "+
			"Requires an embedding provider; fails with BACKEND_UNAVAILABLE when none is configured.",
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural-language query"),
	),
	mcp.WithString("collection",
		mcp.Description("Collection name"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum results (default 10)"),
	),
	mcp.WithString("since",
		mcp.Description("Only items updated on or after this YYYY-MM-DD date"),
	),
)

var queryTagToolDef = mcp.NewTool("keep_query_tag",
	mcp.WithDescription(
		"Exact tag lookup. All given pairs must match; an empty value matches any value for that key.",
	),
	mcp.WithObject("tags",
		mcp.Required(),
		mcp.Description("Tag key=value pairs to match"),
	),
	mcp.WithString("collection",
		mcp.Description("Collection name"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum results"),
	),
)

var listToolDef = mcp.NewTool("keep_list",
	mcp.WithDescription("List documents by recency."),
	mcp.WithString("collection",
		mcp.Description("Collection name"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum results (default 20)"),
	),
	mcp.WithString("order_by",
		mcp.Description("Sort column: updated (default) or accessed"),
	),
	mcp.WithString("since",
		mcp.Description("Only items updated on or after this YYYY-MM-DD date"),
	),
)

var deleteToolDef = mcp.NewTool("keep_delete",
	mcp.WithDescription("Delete a document and, by default, its archived versions."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Document id"),
	),
	mcp.WithString("collection",
		mcp.Description("Collection name"),
	),
	mcp.WithBoolean("keep_versions",
		mcp.Description("Retain archived versions after deleting the current document"),
	),
)

var collectionsToolDef = mcp.NewTool("keep_collections",
	mcp.WithDescription("List collections with their document counts."),
)
