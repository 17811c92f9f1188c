package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/farmsync/farmsync"
	"github.com/farmsync/farmsync/internal/remote/memory"
	farmmcp "github.com/farmsync/farmsync/mcp"
)

func testConfig(t *testing.T) farmsync.Config {
	t.Helper()
	dir := t.TempDir()
	return farmsync.Config{
		Farm:      "test",
		LocalPath: filepath.Join(dir, "test.db"),
		PhotoDir:  filepath.Join(dir, "photos"),
	}
}

func newClient(t *testing.T) *farmsync.Client {
	t.Helper()
	client, err := farmsync.New(testConfig(t))
	if err != nil {
		t.Fatalf("farmsync.New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRemote() *memory.Store {
	rs := memory.NewStore()
	for _, kind := range farmsync.SyncOrder() {
		unique := "sync_key"
		if kind == farmsync.KindAnimal {
			unique = "id_interno"
		}
		rs.Define(string(kind), farmsync.RemoteIDColumn(kind), unique)
	}
	return rs
}

func callTool(t *testing.T, s *farmmcp.Server, name string, args map[string]any) *farmmcp.ToolResult {
	t.Helper()
	result, err := s.CallTool(context.Background(), name, args)
	if err != nil {
		t.Fatalf("CallTool(%s) returned error: %v", name, err)
	}
	if result == nil {
		t.Fatalf("CallTool(%s) returned nil result", name)
	}
	return result
}

func TestServer_ToolsList(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))
	tools := server.ListTools()

	expected := []string{
		"farmsync_status", "farmsync_stats", "farmsync_sync", "farmsync_animals",
		"farmsync_animal", "farmsync_add_animal", "farmsync_record_milking",
	}
	if len(tools) != len(expected) {
		t.Errorf("ListTools() returned %d tools, want %d", len(tools), len(expected))
	}
	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("Tool %q not found in registered tools", name)
		}
	}
}

func TestTool_AddAndListAnimals(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))

	result := callTool(t, server, "farmsync_add_animal", map[string]any{
		"id_interno": "V-001",
		"name":       "Bessie",
		"birth_date": "15/03/2021",
	})
	if result.IsError {
		t.Fatalf("add animal returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "V-001") || !strings.Contains(result.Content, "2021-03-15") {
		t.Errorf("add animal output = %q", result.Content)
	}

	result = callTool(t, server, "farmsync_animals", nil)
	if !strings.Contains(result.Content, "Found 1 animals") || !strings.Contains(result.Content, "Bessie") {
		t.Errorf("animals output = %q", result.Content)
	}

	result = callTool(t, server, "farmsync_animals", map[string]any{"status": farmsync.StatusSold})
	if result.Content != "No animals found." {
		t.Errorf("filtered animals output = %q", result.Content)
	}
}

func TestTool_AddAnimal_Errors(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))

	if result := callTool(t, server, "farmsync_add_animal", map[string]any{}); !result.IsError {
		t.Error("missing id_interno should be an error")
	}

	callTool(t, server, "farmsync_add_animal", map[string]any{"id_interno": "V-001"})
	result := callTool(t, server, "farmsync_add_animal", map[string]any{"id_interno": "V-001"})
	if !result.IsError || !strings.Contains(result.Content, "already exists") {
		t.Errorf("duplicate add = %+v, want already exists error", result)
	}
}

func TestTool_RecordMilking(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))
	callTool(t, server, "farmsync_add_animal", map[string]any{"id_interno": "V-001"})

	result := callTool(t, server, "farmsync_record_milking", map[string]any{
		"animal":    "V-001",
		"date":      "2024-05-01",
		"liters_am": 6.5,
		"liters_pm": 5.5,
	})
	if result.IsError {
		t.Fatalf("record milking returned error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "12 L") {
		t.Errorf("record milking output = %q, want computed total", result.Content)
	}

	result = callTool(t, server, "farmsync_animal", map[string]any{"animal": "V-001"})
	if !strings.Contains(result.Content, "Milkings: 1") {
		t.Errorf("animal output = %q", result.Content)
	}

	result = callTool(t, server, "farmsync_record_milking", map[string]any{"animal": "V-404", "date": "2024-05-01"})
	if !result.IsError {
		t.Error("milking for unknown animal should be an error")
	}
}

func TestTool_StatusAndStats(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))
	callTool(t, server, "farmsync_add_animal", map[string]any{"id_interno": "V-001"})

	result := callTool(t, server, "farmsync_status", nil)
	if !strings.Contains(result.Content, "Pending records: 1") {
		t.Errorf("status output = %q", result.Content)
	}

	result = callTool(t, server, "farmsync_stats", nil)
	if !strings.Contains(result.Content, "Animals: 1 (1 pending)") || !strings.Contains(result.Content, "Last sync: never") {
		t.Errorf("stats output = %q", result.Content)
	}
}

func TestTool_Sync_Offline(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))

	result := callTool(t, server, "farmsync_sync", nil)
	if !result.IsError || !strings.Contains(result.Content, "no remote") {
		t.Errorf("sync without remote = %+v", result)
	}
}

func TestTool_Sync_WithRemote(t *testing.T) {
	rs := newRemote()
	client, err := farmsync.NewWithBackends(testConfig(t), rs, nil)
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	defer func() { _ = client.Close() }()
	server := farmmcp.NewServer(client)
	callTool(t, server, "farmsync_add_animal", map[string]any{"id_interno": "V-001"})

	result := callTool(t, server, "farmsync_sync", map[string]any{"direction": "push"})
	if result.IsError || result.Content != "Uploaded 1 records" {
		t.Errorf("push output = %+v", result)
	}
	if n := len(rs.Rows("animales")); n != 1 {
		t.Errorf("remote animals = %d, want 1", n)
	}

	result = callTool(t, server, "farmsync_sync", nil)
	if result.IsError || !strings.Contains(result.Content, "Downloaded") {
		t.Errorf("sync output = %+v", result)
	}

	if result := callTool(t, server, "farmsync_sync", map[string]any{"direction": "sideways"}); !result.IsError {
		t.Error("invalid direction should be an error")
	}
}

func TestTool_Unknown(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))
	if result := callTool(t, server, "farmsync_nope", nil); !result.IsError {
		t.Error("unknown tool should be an error")
	}
}

func TestProtocol_Initialize(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))

	initRequest := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`
	response := server.HandleMessage(context.Background(), []byte(initRequest))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for initialize request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if _, hasError := respMap["error"]; hasError {
		t.Errorf("Initialize response has error: %v", respMap["error"])
	}
	result, ok := respMap["result"].(map[string]any)
	if !ok {
		t.Fatalf("Initialize response missing result")
	}
	serverInfo, ok := result["serverInfo"].(map[string]any)
	if !ok {
		t.Fatal("Initialize result missing serverInfo")
	}
	if serverInfo["name"] != "farmsync" {
		t.Errorf("serverInfo.name = %v, want 'farmsync'", serverInfo["name"])
	}
}

func TestProtocol_InvalidMethod(t *testing.T) {
	server := farmmcp.NewServer(newClient(t))

	response := server.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"unknown/method","params":{}}`))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for invalid method request")
	}
	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	errorObj, ok := respMap["error"].(map[string]any)
	if !ok {
		t.Fatal("Response should have error for unknown method")
	}
	if code, _ := errorObj["code"].(float64); int(code) != -32601 {
		t.Errorf("Error code = %v, want -32601", errorObj["code"])
	}
}
