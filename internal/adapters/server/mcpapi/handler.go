// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/stamp/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the time-tracking tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("tracking service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerCatalogTools(mcpSrv, service)
	registerTimerTools(mcpSrv, service)
	registerIntervalTools(mcpSrv, service)
	registerReportTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "stamp"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerCatalogTools registers task and tag tools.
func registerCatalogTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"stamp.list_tasks",
			mcp.WithDescription("List tasks, optionally only those carrying every listed tag id."),
			mcp.WithArray("tags", mcp.Description("Tag ids that must all be present"), mcp.Items(map[string]any{"type": "number"})),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Tags []int64 `json:"tags"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			tasks, err := service.ListTasks(ctx, common.ListTasksRequest{Tags: args.Tags})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_tasks", map[string]any{"tasks": tasks})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"stamp.create_task",
			mcp.WithDescription("Create one task."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
			mcp.WithArray("tags", mcp.Description("Tag ids to attach"), mcp.Items(map[string]any{"type": "number"})),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Name string  `json:"name"`
				Tags []int64 `json:"tags"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Name) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "name" not found`), nil
			}
			task, err := service.CreateTask(ctx, common.CreateTaskRequest{Name: args.Name, Tags: args.Tags})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_task", task)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"stamp.list_tags",
			mcp.WithDescription("List every tag."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tags, err := service.ListTags(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_tags", map[string]any{"tags": tags})
		},
	)
}

// registerTimerTools registers start/stop timer tools.
func registerTimerTools(srv *mcpserver.MCPServer, service common.Service) {
	for _, tool := range []struct {
		name        string
		description string
		call        func(context.Context, int64) (common.Event, error)
	}{
		{"start_timer", "Start a task's timer now. Fails with conflict when it is already running.", service.StartTimer},
		{"stop_timer", "Stop a task's running timer now. Fails with conflict when nothing is running.", service.StopTimer},
	} {
		srv.AddTool(
			mcp.NewTool(
				"stamp."+tool.name,
				mcp.WithDescription(tool.description),
				mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task identifier")),
			),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				taskID, err := req.RequireInt("task_id")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				event, err := tool.call(ctx, int64(taskID))
				if err != nil {
					return toolResultFromError(err), nil
				}
				return jsonResult(tool.name, event)
			},
		)
	}
}

// registerIntervalTools registers interval read and save tools.
func registerIntervalTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"stamp.list_intervals",
			mcp.WithDescription("Rebuild a task's start/stop intervals over a window, flagging overlaps."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithString("from", mcp.Description("Window start: RFC3339, date, or phrase like 'last monday'")),
			mcp.WithString("to", mcp.Description("Window end: RFC3339, date, or phrase")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			taskID, err := req.RequireInt("task_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			intervals, err := service.ListIntervals(ctx, common.ListIntervalsRequest{
				TaskID: int64(taskID),
				From:   req.GetString("from", ""),
				To:     req.GetString("to", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_intervals", map[string]any{"intervals": intervals})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"stamp.save_intervals",
			mcp.WithDescription("Apply interval edits (new, modified, deleted) as event writes and return the rebuilt intervals."),
			mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task identifier")),
			mcp.WithArray("edits", mcp.Required(), mcp.Description("Interval edits"), mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start":          map[string]any{"type": "string", "description": "RFC3339 start"},
					"stop":           map[string]any{"type": "string", "description": "RFC3339 stop; omit for an open interval"},
					"start_event_id": map[string]any{"type": "number"},
					"stop_event_id":  map[string]any{"type": "number"},
					"is_new":         map[string]any{"type": "boolean"},
					"is_modified":    map[string]any{"type": "boolean"},
					"deleted":        map[string]any{"type": "boolean"},
				},
			})),
			mcp.WithString("from", mcp.Description("Window start for the returned intervals")),
			mcp.WithString("to", mcp.Description("Window end for the returned intervals")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				TaskID int64                 `json:"task_id"`
				Edits  []common.IntervalEdit `json:"edits"`
				From   string                `json:"from"`
				To     string                `json:"to"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if args.TaskID <= 0 {
				return mcp.NewToolResultError(`invalid_request: required argument "task_id" not found`), nil
			}
			result, err := service.SaveIntervals(ctx, common.SaveIntervalsRequest{
				TaskID: args.TaskID,
				Edits:  args.Edits,
				From:   args.From,
				To:     args.To,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("save_intervals", result)
		},
	)
}

// registerReportTools registers summary and raw event tools.
func registerReportTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"stamp.time_summary",
			mcp.WithDescription("Total hours per task and per tag over a window."),
			mcp.WithString("from", mcp.Description("Window start")),
			mcp.WithString("to", mcp.Description("Window end")),
			mcp.WithBoolean("include_ongoing", mcp.Description("Count running timers up to now; defaults to config")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				From           string `json:"from"`
				To             string `json:"to"`
				IncludeOngoing *bool  `json:"include_ongoing"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			summary, err := service.Summary(ctx, common.SummaryRequest{From: args.From, To: args.To, IncludeOngoing: args.IncludeOngoing})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("time_summary", summary)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"stamp.list_events",
			mcp.WithDescription("List raw start/stop events ordered by timestamp."),
			mcp.WithNumber("task_id", mcp.Description("Only events of this task")),
			mcp.WithString("from", mcp.Description("Earliest timestamp")),
			mcp.WithString("to", mcp.Description("Latest timestamp")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			listReq := common.ListEventsRequest{
				From: req.GetString("from", ""),
				To:   req.GetString("to", ""),
			}
			if taskID := int64(req.GetInt("task_id", 0)); taskID > 0 {
				listReq.TaskID = &taskID
			}
			events, err := service.ListEvents(ctx, listReq)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_events", map[string]any{"events": events})
		},
	)
}

// jsonResult encodes one structured tool result.
func jsonResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// invalidRequestToolResult reports malformed tool arguments.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidInterval):
		return mcp.NewToolResultError("invalid_interval: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, common.ErrPartialWrite):
		return mcp.NewToolResultError("partial_write: " + err.Error())
	case errors.Is(err, common.ErrStore):
		return mcp.NewToolResultError("store_error: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
