package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/decktools/deckswitch/internal/switcher"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Deps
}

// NewMCPServer creates an MCP server with all deckswitch tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"deckswitch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("deckswitch manages Steam logins: switch the logged-in account and launch games across the restart."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_users",
			mcp.WithDescription("List all Steam accounts known to this device, newest login first."),
		),
		mcpListUsers(deps),
	)

	s.AddTool(
		mcp.NewTool("current_user",
			mcp.WithDescription("Return the account Steam currently considers logged in, or null."),
		),
		mcpCurrentUser(deps),
	)

	s.AddTool(
		mcp.NewTool("game_owner",
			mcp.WithDescription("Look up which account installed a game, from its app manifest."),
			mcp.WithString("appId", mcp.Description("Steam application id"), mcp.Required()),
		),
		mcpGameOwner(deps),
	)

	s.AddTool(
		mcp.NewTool("local_owners",
			mcp.WithDescription("List accounts on this device with recorded play time for a game."),
			mcp.WithString("appId", mcp.Description("Steam application id"), mcp.Required()),
		),
		mcpLocalOwners(deps),
	)

	s.AddTool(
		mcp.NewTool("switch_user",
			mcp.WithDescription("Switch the active Steam account. Kills and relaunches the Steam client; optionally launches a game after the new session logs in."),
			mcp.WithString("steamId", mcp.Description("64-bit id of the target account"), mcp.Required()),
			mcp.WithString("accountName", mcp.Description("Login name of the target account"), mcp.Required()),
			mcp.WithString("appId", mcp.Description("Optional game to launch after login")),
		),
		mcpSwitchUser(deps),
	)

	s.AddTool(
		mcp.NewTool("restart_steam",
			mcp.WithDescription("Restart the Steam client without changing accounts."),
			mcp.WithString("appId", mcp.Description("Optional game to launch after login")),
		),
		mcpRestartSteam(deps),
	)

	s.AddTool(
		mcp.NewTool("trigger_pending_launch",
			mcp.WithDescription("Kick the deferred launch coordinator. No-op when nothing is pending."),
		),
		mcpTriggerLaunch(deps),
	)

	s.AddTool(
		mcp.NewTool("pending_launch_status",
			mcp.WithDescription("Report whether a deferred game launch is waiting to be redeemed."),
		),
		mcpLaunchStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("switch_history",
			mcp.WithDescription("List recent account switches, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		mcpSwitchHistory(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"steam://users",
			"Steam Accounts",
			mcp.WithResourceDescription("All login records on this device as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceUsers(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"deckswitch://history",
			"Switch History",
			mcp.WithResourceDescription("Last 10 account switches"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpListUsers(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Install.Users())
	}
}

func mcpCurrentUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Install.CurrentUser())
	}
}

func mcpGameOwner(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		appID, err := req.RequireString("appId")
		if err != nil {
			return mcpError("appId is required"), nil
		}
		return mcpJSON(deps.Owners.GameOwner(appID))
	}
}

func mcpLocalOwners(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		appID, err := req.RequireString("appId")
		if err != nil {
			return mcpError("appId is required"), nil
		}
		owners := deps.Owners.LocalOwners(ctx, appID)
		if owners == nil {
			owners = []string{}
		}
		return mcpJSON(owners)
	}
}

func mcpSwitchUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		steamID, err := req.RequireString("steamId")
		if err != nil {
			return mcpError("steamId is required"), nil
		}
		accountName, err := req.RequireString("accountName")
		if err != nil {
			return mcpError("accountName is required"), nil
		}

		out := deps.Switcher.Switch(ctx, switcher.Request{
			SteamID:     steamID,
			AccountName: accountName,
			AppID:       req.GetString("appId", ""),
		})
		if !out.Success {
			return mcpError(fmt.Sprintf("switch failed: %s", out.Error)), nil
		}
		return mcpText(fmt.Sprintf("Switched to %s; Steam is restarting", accountName)), nil
	}
}

func mcpRestartSteam(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		appID := req.GetString("appId", "")
		if err := deps.Restarter.Restart(ctx, appID); err != nil {
			return mcpError(fmt.Sprintf("restart failed: %v", err)), nil
		}
		return mcpText("Steam is restarting"), nil
	}
}

func mcpTriggerLaunch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Launches.Trigger(context.WithoutCancel(ctx))
		return mcpText("Launch trigger queued"), nil
	}
}

func mcpLaunchStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Launches.Status())
	}
}

func mcpSwitchHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		events, err := deps.Store.ListSwitchEvents(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("history failed: %v", err)), nil
		}
		return mcpJSON(events)
	}
}

func mcpResourceUsers(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Install.Users())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal users: %w", err)
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

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.Store.ListSwitchEvents(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list switch events: %w", err)
		}

		type eventSummary struct {
			AccountName string `json:"accountName"`
			Success     bool   `json:"success"`
			CreatedAt   string `json:"createdAt"`
		}
		summaries := make([]eventSummary, len(events))
		for i, ev := range events {
			summaries[i] = eventSummary{
				AccountName: ev.AccountName,
				Success:     ev.Success,
				CreatedAt:   ev.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
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
