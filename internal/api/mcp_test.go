package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/decktools/deckswitch/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *testEnv) {
	t.Helper()
	deps, env := newTestDeps(t)
	return MCPDeps{Deps: deps}, env
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ListUsers(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	writeSteamFile(t, env.install.LoginUsersPath(), loginUsersFixture)
	handler := mcpListUsers(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_users", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var users []json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &users); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestMCPTool_CurrentUser_NullWhenEmpty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpCurrentUser(deps)

	result, err := handler(context.Background(), makeCallToolRequest("current_user", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "null" {
		t.Fatalf("expected null, got: %s", text)
	}
}

func TestMCPTool_GameOwner_RequiresAppID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGameOwner(deps)

	result, err := handler(context.Background(), makeCallToolRequest("game_owner", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing appId")
	}
}

func TestMCPTool_LocalOwners(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	writeSteamFile(t, filepath.Join(env.install.UserdataDir(), "200", "config", "localconfig.vdf"), localConfigFixture)
	handler := mcpLocalOwners(deps)

	result, err := handler(context.Background(), makeCallToolRequest("local_owners", map[string]interface{}{
		"appId": "730",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var owners []string
	if err := json.Unmarshal([]byte(toolText(t, result)), &owners); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(owners) != 1 || owners[0] != "76561197960265928" {
		t.Fatalf("owners = %v, want the 64-bit form of account 200", owners)
	}
}

func TestMCPTool_SwitchUser(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	writeSteamFile(t, env.install.LoginUsersPath(), loginUsersFixture)
	handler := mcpSwitchUser(deps)

	result, err := handler(context.Background(), makeCallToolRequest("switch_user", map[string]interface{}{
		"steamId":     "76561197960265729",
		"accountName": "alice",
		"appId":       "730",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if len(env.restarter.calls) != 1 || env.restarter.calls[0] != "730" {
		t.Fatalf("restart calls = %v, want [730]", env.restarter.calls)
	}

	// The attempt lands in history.
	events, err := env.store.ListSwitchEvents(10, 0)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) != 1 || !events[0].Success {
		t.Fatalf("events = %+v, want one successful switch", events)
	}
}

func TestMCPTool_SwitchUser_MissingArgs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSwitchUser(deps)

	result, err := handler(context.Background(), makeCallToolRequest("switch_user", map[string]interface{}{
		"steamId": "123",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing accountName")
	}
}

func TestMCPTool_SwitchUser_FailureIsToolError(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	// A directory at the login-state path makes the engine report a
	// failure outcome.
	if err := os.MkdirAll(env.install.LoginUsersPath(), 0o755); err != nil {
		t.Fatalf("creating directory: %v", err)
	}
	handler := mcpSwitchUser(deps)

	result, err := handler(context.Background(), makeCallToolRequest("switch_user", map[string]interface{}{
		"steamId":     "76561197960265729",
		"accountName": "alice",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when the switch fails")
	}
}

func TestMCPTool_RestartSteam(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := mcpRestartSteam(deps)

	result, err := handler(context.Background(), makeCallToolRequest("restart_steam", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if len(env.restarter.calls) != 1 || env.restarter.calls[0] != "" {
		t.Fatalf("restart calls = %v, want one without app id", env.restarter.calls)
	}
}

func TestMCPTool_PendingLaunchStatus(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	if err := env.launches.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	handler := mcpLaunchStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("pending_launch_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var st struct {
		Pending bool `json:"pending"`
		Intent  *struct {
			AppID string `json:"appId"`
		} `json:"intent"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &st); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !st.Pending || st.Intent == nil || st.Intent.AppID != "123" {
		t.Fatalf("status = %+v, want pending intent for 123", st)
	}
}

func TestMCPTool_TriggerPendingLaunch(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	if err := env.launches.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	handler := mcpTriggerLaunch(deps)

	result, err := handler(context.Background(), makeCallToolRequest("trigger_pending_launch", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	select {
	case appID := <-env.launched:
		if appID != "123" {
			t.Fatalf("launched %q, want 123", appID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never launched the pending app")
	}
}

func TestMCPTool_SwitchHistory(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	ev := storage.SwitchEvent{
		ID:          "ev-1",
		SteamID:     "76561197960265729",
		AccountName: "alice",
		Success:     true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := env.store.SaveSwitchEvent(ev); err != nil {
		t.Fatalf("SaveSwitchEvent: %v", err)
	}
	handler := mcpSwitchHistory(deps)

	result, err := handler(context.Background(), makeCallToolRequest("switch_history", map[string]interface{}{
		"limit": 5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var events []json.RawMessage
	if err := json.Unmarshal([]byte(toolText(t, result)), &events); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestMCPResource_Users(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	writeSteamFile(t, env.install.LoginUsersPath(), loginUsersFixture)

	handler := mcpResourceUsers(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("steam://users"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var users []json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &users); err != nil {
		t.Fatalf("failed to parse users JSON: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestMCPResource_History(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	ev := storage.SwitchEvent{
		ID:          "ev-1",
		SteamID:     "76561197960265729",
		AccountName: "alice",
		Success:     true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := env.store.SaveSwitchEvent(ev); err != nil {
		t.Fatalf("SaveSwitchEvent: %v", err)
	}

	handler := mcpResourceHistory(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("deckswitch://history"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []struct {
		AccountName string `json:"accountName"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0].AccountName != "alice" {
		t.Fatalf("summaries = %+v, want alice's switch", summaries)
	}
}
