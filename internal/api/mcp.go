package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/studykit/brain/internal/kb"
	"github.com/studykit/brain/internal/provider"
)

// MCPSearcher retrieves scored chunks for the MCP layer.
type MCPSearcher interface {
	Query(question string, topK int) ([]kb.Result, error)
}

// MCPIndexer stores a note into the knowledge base.
type MCPIndexer interface {
	Add(docID string, chunks []kb.Chunk) error
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Search MCPSearcher
	Index  MCPIndexer
	Answer Asker
}

// NewMCPServer creates an MCP server exposing the knowledge base to agent
// clients over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"brain",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("brain is a local study knowledge base built from indexed documents. Search it, ask it questions, or add notes to it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_notes",
			mcp.WithDescription("Search the knowledge base and return the best-matching note chunks with similarity scores."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 3)")),
		),
		mcpSearchNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_notes",
			mcp.WithDescription("Answer a question using only the indexed notes, citing the sources used."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("How many chunks to retrieve as context (default 3)")),
		),
		mcpAskNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("index_note",
			mcp.WithDescription("Store a text note into the knowledge base for later retrieval."),
			mcp.WithString("content", mcp.Description("The note text to store"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Provenance label for the note (default \"mcp\")")),
		),
		mcpIndexNote(deps),
	)

	return s
}

func mcpSearchNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Search.Query(query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type noteResult struct {
			Text   string  `json:"text"`
			Source string  `json:"source"`
			Score  float64 `json:"score"`
		}
		notes := make([]noteResult, len(results))
		for i, r := range results {
			notes[i] = noteResult{Text: r.Chunk.Text, Source: r.Chunk.Source, Score: r.Score}
		}

		b, err := json.Marshal(notes)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		topK := req.GetInt("top_k", 0)

		ans, err := deps.Answer.Ask(ctx, question, topK, provider.ModeAuto)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(ans)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIndexNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		source := req.GetString("source", "mcp")

		if err := deps.Index.Add(uuid.NewString(), []kb.Chunk{{Text: content, Source: source}}); err != nil {
			return mcpError(fmt.Sprintf("failed to index note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Indexed note from %s", source)), nil
	}
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
