package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/aide/internal/assistant"
	"github.com/kalambet/aide/internal/record"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service    *assistant.Service
	HTTPClient *http.Client // optional; used by import_events with a url
	Logger     *slog.Logger
	Version    string
}

// NewMCPServer creates an MCP server with all aide tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"aide",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("aide: personal calendar, finance and notes kept as JSON collections. Pass free-form text; it is parsed into records."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("add_event",
			mcp.WithDescription("Parse calendar events from free-form text and add them to the calendar."),
			mcp.WithString("text", mcp.Description("Description of the event(s), e.g. \"dentist tomorrow at 3pm\""), mcp.Required()),
		),
		mcpAddEvent(deps),
	)

	s.AddTool(
		mcp.NewTool("import_events",
			mcp.WithDescription("Import a schedule from text or a URL (PDF, HTML or plain text). Events already in the calendar are skipped."),
			mcp.WithString("text", mcp.Description("Schedule text")),
			mcp.WithString("url", mcp.Description("URL of a schedule document")),
		),
		mcpImportEvents(deps),
	)

	s.AddTool(
		mcp.NewTool("record_transaction",
			mcp.WithDescription("Parse an expense or income from free-form text and add it to the finance ledger."),
			mcp.WithString("text", mcp.Description("e.g. \"lunch 20\" or \"salary 3000\""), mcp.Required()),
		),
		mcpRecordTransaction(deps),
	)

	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Store a note with optional tags."),
			mcp.WithString("content", mcp.Description("Note text"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.WithStringItems()),
		),
		mcpAddNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_records",
			mcp.WithDescription("List the records of one collection."),
			mcp.WithString("kind", mcp.Description("calendar, finance or note"), mcp.Required()),
		),
		mcpListRecords(deps),
	)

	s.AddTool(
		mcp.NewTool("assist",
			mcp.WithDescription("Decide whether text is an event, a transaction or a note, and store it accordingly."),
			mcp.WithString("text", mcp.Description("Free-form text"), mcp.Required()),
		),
		mcpAssist(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"finance://summary",
			"Finance Summary",
			mcp.WithResourceDescription("Balance, totals and per-category expenses as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceFinanceSummary(deps),
	)

	return s
}

func mcpAddEvent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		events, err := deps.Service.AddEvents(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("add_event failed: %v", err)), nil
		}
		return mcpJSON(events)
	}
}

func mcpImportEvents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := req.GetString("text", "")
		url := req.GetString("url", "")

		var (
			res assistant.ImportResult
			err error
		)
		switch {
		case strings.TrimSpace(url) != "":
			res, err = importURL(ctx, Deps{Service: deps.Service, HTTPClient: deps.HTTPClient, Logger: deps.Logger}, url)
		case strings.TrimSpace(text) != "":
			res, err = deps.Service.ImportEvents(ctx, text)
		default:
			return mcpError("one of text or url is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("import_events failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpRecordTransaction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		entry, err := deps.Service.AddExpense(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("record_transaction failed: %v", err)), nil
		}
		return mcpJSON(entry)
	}
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		n, err := deps.Service.AddNote(ctx, content, tags)
		if err != nil {
			return mcpError(fmt.Sprintf("add_note failed: %v", err)), nil
		}
		return mcpJSON(n)
	}
}

func mcpListRecords(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		kind, err := record.ParseKind(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		listing, err := deps.Service.List(ctx, kind)
		if err != nil {
			return mcpError(fmt.Sprintf("list_records failed: %v", err)), nil
		}
		return mcpJSON(listing)
	}
}

func mcpAssist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		out, err := deps.Service.Assist(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("assist failed: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpResourceFinanceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sum, err := deps.Service.FinanceSummary(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize finance: %w", err)
		}

		b, err := json.Marshal(sum)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
