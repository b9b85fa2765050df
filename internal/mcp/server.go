package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
)

// UserSource reports the signed-in user tools act as.
type UserSource interface {
	CurrentUser() *models.User
}

// Server exposes the issue workflow as MCP tools.
type Server struct {
	svc      *lifecycle.Service
	users    UserSource
	maxShown int
	version  string
}

// NewServer creates the MCP server wrapper. maxShown <= 0 returns every match.
func NewServer(svc *lifecycle.Service, users UserSource, maxShown int, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, users: users, maxShown: maxShown, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issueboard", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.checkDuplicatesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateStatusTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func toolError(err error) *mcp.CallToolResult {
	_, msg := lifecycle.Describe(err)
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type matchOut struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Percent int    `json:"similarity_percent"`
}

func (s *Server) matchesOut(matches []similarity.Match) []matchOut {
	top := similarity.Top(matches, s.maxShown)
	out := make([]matchOut, 0, len(top))
	for _, m := range top {
		out = append(out, matchOut{
			ID:      m.Issue.ID,
			Title:   m.Issue.Title,
			Status:  string(m.Issue.Status),
			Percent: similarity.Percent(m.Score),
		})
	}
	return out
}

// issueboard_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issueboard_list_issues",
		mcp.WithDescription("List issues newest first. Returns a JSON array of issues."),
		mcp.WithString("status", mcp.Description("Filter by status: open, in_progress, done")),
		mcp.WithString("priority", mcp.Description("Filter by priority: low, medium, high")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter store.IssueListFilter
	if v := request.GetString("status", ""); v != "" {
		status, err := models.ParseIssueStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Status = status
	}
	if v := request.GetString("priority", ""); v != "" {
		priority, err := models.ParseIssuePriority(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Priority = priority
	}

	issues, err := s.svc.List(ctx, s.users.CurrentUser(), filter)
	if err != nil {
		return toolError(err), nil
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return jsonResult(issues)
}

// issueboard_check_duplicates
func (s *Server) checkDuplicatesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issueboard_check_duplicates",
		mcp.WithDescription("Find existing issues whose title and description overlap with a proposed issue."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Proposed issue title")),
		mcp.WithString("description", mcp.Description("Proposed issue description")),
	)
	return tool, s.handleCheckDuplicates
}

func (s *Server) handleCheckDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	c := models.Candidate{Title: title, Description: request.GetString("description", "")}

	matches, err := s.svc.CheckDuplicates(ctx, s.users.CurrentUser(), c)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{
		"matches": s.matchesOut(matches),
		"total":   len(matches),
	})
}

// issueboard_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issueboard_create_issue",
		mcp.WithDescription("Create an issue. Similar existing issues block creation and are returned instead unless confirm is true."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Issue description")),
		mcp.WithString("assigned_to", mcp.Required(), mcp.Description("Assignee")),
		mcp.WithString("priority", mcp.Description("Priority: low, medium (default), high")),
		mcp.WithBoolean("confirm", mcp.Description("Create even if similar issues exist")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	priority := models.IssuePriorityMedium
	if v := request.GetString("priority", ""); v != "" {
		priority, err = models.ParseIssuePriority(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	draft := lifecycle.NewDraft(s.svc)
	draft.SetForm(models.Candidate{
		Title:       title,
		Description: request.GetString("description", ""),
		Priority:    priority,
		AssignedTo:  request.GetString("assigned_to", ""),
	})

	user := s.users.CurrentUser()
	res, err := draft.Submit(ctx, user)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Created() {
		if !request.GetBool("confirm", false) {
			return jsonResult(map[string]any{
				"created": false,
				"message": "similar issues already exist; review them or call again with confirm=true",
				"matches": s.matchesOut(res.Matches),
			})
		}
		if res, err = draft.Submit(ctx, user); err != nil {
			return toolError(err), nil
		}
	}
	return jsonResult(map[string]any{
		"created": true,
		"issue":   res.Issue,
	})
}

// issueboard_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issueboard_update_status",
		mcp.WithDescription("Move an issue to a new status. Open issues must go through in_progress before done."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: open, in_progress, done")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	raw, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	to, err := models.ParseIssueStatus(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	user := s.users.CurrentUser()
	issue, err := s.svc.Get(ctx, user, id)
	if err != nil {
		return toolError(err), nil
	}
	if err := s.svc.ChangeStatus(ctx, user, issue, to); err != nil {
		return toolError(err), nil
	}
	return jsonResult(issue)
}
