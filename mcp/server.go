// Package mcp provides MCP (Model Context Protocol) tool adapters for
// notehive, so MCP-compatible agents can read and write notes through the
// same offline-first bridge the CLI uses.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/notehive/notehive"
)

// Server wraps the MCP server with notehive tools.
type Server struct {
	client    *notehive.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with notehive tools registered.
func NewServer(client *notehive.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"notehive",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "notes_add", Description: "Create a note with optional labels"},
		{Name: "notes_list", Description: "List notes in one lifecycle bucket"},
		{Name: "notes_archive", Description: "Archive or unarchive a note"},
		{Name: "notes_set_reminder", Description: "Set or clear a note's reminder"},
		{Name: "labels_list", Description: "List the user's labels"},
		{Name: "sync_now", Description: "Drain queued offline changes and pull the remote snapshot"},
		{Name: "status", Description: "Report store statistics and connectivity"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "notes_add":
		return s.handleNotesAdd(ctx, args)
	case "notes_list":
		return s.handleNotesList(ctx, args)
	case "notes_archive":
		return s.handleNotesArchive(ctx, args)
	case "notes_set_reminder":
		return s.handleSetReminder(ctx, args)
	case "labels_list":
		return s.handleLabelsList(ctx, args)
	case "sync_now":
		return s.handleSyncNow(ctx, args)
	case "status":
		return s.handleStatus(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("notes_add",
		mcp.WithDescription("Create a note with optional labels. The note is written to the cloud when reachable, otherwise cached locally and queued for sync."),
		mcp.WithString("title",
			mcp.Description("Note title"),
		),
		mcp.WithString("content",
			mcp.Description("Note body; at least one of title and content is required"),
		),
		mcp.WithArray("labels",
			mcp.Description("Label names to attach"),
			mcp.WithStringItems(),
		),
	), s.wrap(s.handleNotesAdd))

	s.mcpServer.AddTool(mcp.NewTool("notes_list",
		mcp.WithDescription("List notes in one lifecycle bucket, most recently modified first."),
		mcp.WithString("bucket",
			mcp.Description("Bucket to list: active, archived, bin, or reminders (default: active)"),
		),
	), s.wrap(s.handleNotesList))

	s.mcpServer.AddTool(mcp.NewTool("notes_archive",
		mcp.WithDescription("Archive or unarchive a note by id."),
		mcp.WithString("id",
			mcp.Description("Note id"),
			mcp.Required(),
		),
		mcp.WithBoolean("archived",
			mcp.Description("true to archive, false to unarchive (default: true)"),
		),
	), s.wrap(s.handleNotesArchive))

	s.mcpServer.AddTool(mcp.NewTool("notes_set_reminder",
		mcp.WithDescription("Set or clear a note's reminder."),
		mcp.WithString("id",
			mcp.Description("Note id"),
			mcp.Required(),
		),
		mcp.WithString("at",
			mcp.Description("Reminder time in RFC3339; omit to clear the reminder"),
		),
	), s.wrap(s.handleSetReminder))

	s.mcpServer.AddTool(mcp.NewTool("labels_list",
		mcp.WithDescription("List the user's labels."),
	), s.wrap(s.handleLabelsList))

	s.mcpServer.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Drain queued offline changes and pull the full remote snapshot. Requires NIMBUS_URL to be configured."),
	), s.wrap(s.handleSyncNow))

	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report store statistics and connectivity state."),
	), s.wrap(s.handleStatus))
}

type handlerFunc func(ctx context.Context, args map[string]any) (*ToolResult, error)

// wrap adapts an internal handler to the mcp-go handler signature.
func (s *Server) wrap(h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleNotesAdd(ctx context.Context, args map[string]any) (*ToolResult, error) {
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)
	if title == "" && content == "" {
		return &ToolResult{Content: "title or content is required", IsError: true}, nil
	}

	note := notehive.Note{Title: title, Content: content}
	if raw, ok := args["labels"].([]any); ok {
		for _, v := range raw {
			if name, ok := v.(string); ok {
				note.Labels = append(note.Labels, name)
			}
		}
	}

	created, err := s.client.AddNote(ctx, note)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("add failed: %v", err), IsError: true}, nil
	}

	msg := fmt.Sprintf("Added note %s", created.ID)
	if !s.client.IsOnline() {
		msg += " (offline: queued for sync)"
	}
	return &ToolResult{Content: msg}, nil
}

func (s *Server) handleNotesList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	bucket, _ := args["bucket"].(string)

	notes, err := s.client.ListNotes(bucket)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("list failed: %v", err), IsError: true}, nil
	}
	if len(notes) == 0 {
		return &ToolResult{Content: "No notes."}, nil
	}

	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "%s | %s | %s", n.ID, n.Timestamp.Format(time.RFC3339), n.Title)
		if len(n.Labels) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(n.Labels, ", "))
		}
		b.WriteByte('\n')
	}
	return &ToolResult{Content: b.String()}, nil
}

func (s *Server) handleNotesArchive(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return &ToolResult{Content: "id is required", IsError: true}, nil
	}

	archived := true
	if v, ok := args["archived"].(bool); ok {
		archived = v
	}

	var err error
	if archived {
		err = s.client.ArchiveNote(ctx, id)
	} else {
		err = s.client.UnarchiveNote(ctx, id)
	}
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("archive failed: %v", err), IsError: true}, nil
	}

	verb := "Archived"
	if !archived {
		verb = "Unarchived"
	}
	return &ToolResult{Content: fmt.Sprintf("%s note %s", verb, id)}, nil
}

func (s *Server) handleSetReminder(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return &ToolResult{Content: "id is required", IsError: true}, nil
	}

	var at *time.Time
	if raw, ok := args["at"].(string); ok && raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return &ToolResult{Content: fmt.Sprintf("invalid time: %v", err), IsError: true}, nil
		}
		at = &parsed
	}

	if err := s.client.SetReminder(ctx, id, at); err != nil {
		return &ToolResult{Content: fmt.Sprintf("set reminder failed: %v", err), IsError: true}, nil
	}

	if at == nil {
		return &ToolResult{Content: fmt.Sprintf("Cleared reminder on note %s", id)}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Set reminder on note %s for %s", id, at.Format(time.RFC3339))}, nil
}

func (s *Server) handleLabelsList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	labels, err := s.client.ListLabels()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("list failed: %v", err), IsError: true}, nil
	}
	if len(labels) == 0 {
		return &ToolResult{Content: "No labels."}, nil
	}

	var b strings.Builder
	for _, l := range labels {
		fmt.Fprintf(&b, "%s | %s\n", l.ID, l.Name)
	}
	return &ToolResult{Content: b.String()}, nil
}

func (s *Server) handleSyncNow(ctx context.Context, args map[string]any) (*ToolResult, error) {
	if err := s.client.DrainNow(ctx); err != nil {
		return &ToolResult{Content: fmt.Sprintf("drain failed: %v", err), IsError: true}, nil
	}
	if err := s.client.SyncOnlineChanges(ctx, ""); err != nil {
		return &ToolResult{Content: fmt.Sprintf("reconcile failed: %v", err), IsError: true}, nil
	}
	return &ToolResult{Content: "Sync complete."}, nil
}

func (s *Server) handleStatus(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("stats failed: %v", err), IsError: true}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notes: %d\n", stats.NoteCount)
	fmt.Fprintf(&b, "Labels: %d\n", stats.LabelCount)
	fmt.Fprintf(&b, "Pending operations: %d\n", stats.PendingOps)
	fmt.Fprintf(&b, "Dead letters: %d\n", stats.DeadLetters)
	fmt.Fprintf(&b, "Online: %v\n", s.client.IsOnline())
	return &ToolResult{Content: b.String()}, nil
}
