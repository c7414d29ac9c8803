package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stripToolDef = mcp.NewTool("text_strip",
	mcp.WithDescription("Remove the common leading indentation and trailing whitespace from text. Obvious code is returned unchanged."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to strip")),
)

var unwrapToolDef = mcp.NewTool("text_unwrap",
	mcp.WithDescription("Join hard-wrapped prose lines into paragraphs. Lists, tables, headings, and code are preserved."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to unwrap")),
)

var detectToolDef = mcp.NewTool("text_detect",
	mcp.WithDescription("Score how much text looks like code or structured data, and report the code blocks to preserve."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to score")),
)

var transformToolDef = mcp.NewTool("text_transform",
	mcp.WithDescription("Run the configured transformation pipeline over text without touching the clipboard. Fails with ALREADY_PROCESSING while another run is in flight."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to transform")),
)

var clipboardTransformToolDef = mcp.NewTool("clipboard_transform",
	mcp.WithDescription("Transform the current clipboard text and write the result back to the clipboard."),
)

var clipboardStatusToolDef = mcp.NewTool("clipboard_status",
	mcp.WithDescription("Report whether a transformation is running, the configured stages, and the last run."),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List past transformation runs, newest first."),
	mcp.WithString("outcome", mcp.Description("Filter by outcome"), mcp.Enum("success", "failure", "cancelled")),
	mcp.WithString("trigger", mcp.Description("Filter by trigger"), mcp.Enum("hotkey", "auto", "cli", "api", "mcp")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var historyFetchToolDef = mcp.NewTool("history_fetch",
	mcp.WithDescription("Fetch one past run with its per-stage outputs."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Run ID")),
	mcp.WithBoolean("include_text", mcp.Description("Include input, output, and stage texts (default true)")),
)

var historyStatsToolDef = mcp.NewTool("history_stats",
	mcp.WithDescription("Aggregate counts and average duration of past runs."),
)
