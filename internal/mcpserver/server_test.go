package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/feta/internal/exporter"
	"github.com/starford/feta/internal/exportservice"
	"github.com/starford/feta/internal/models"
	"github.com/starford/feta/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir, fs := testutil.TestVault(t, map[string]string{
		"A.md":   "---\ntags: [x]\n---\nHello",
		"B.md":   "World #y",
		"C/D.md": "Nested",
	})
	db := testutil.TestDB(t)
	sink := exporter.NewSink(fs, false, testutil.Logger())
	svc := exportservice.New(fs, sink, db, nil, exportservice.Defaults{}, testutil.Logger())
	return New(svc, "test"), dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "export_folder":
		result, err = srv.exportFolder(ctx, req)
	case "list_folders":
		result, err = srv.listFolders(ctx, req)
	case "list_tags":
		result, err = srv.listTags(ctx, req)
	case "list_exports":
		result, err = srv.listExports(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestExportFolder_Summary(t *testing.T) {
	srv, dir := testServer(t)

	r := callTool(t, srv, "export_folder", map[string]any{
		"required_tag": "x",
		"destination":  "out.json",
	})
	if r.IsError {
		t.Fatalf("export error: %s", resultText(r))
	}
	var sum exportSummary
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatal(err)
	}
	if !sum.Saved || sum.Count != 1 || sum.Destination != "out.json" || sum.Checksum == "" {
		t.Errorf("summary = %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.json")); err != nil {
		t.Errorf("export file: %v", err)
	}
}

func TestExportFolder_IncludeNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "export_folder", map[string]any{"root": "C", "include_notes": true})
	var export models.JSONExport
	if err := json.Unmarshal([]byte(resultText(r)), &export); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, resultText(r))
	}
	if export.Notes["d-md"].Content != "Nested" {
		t.Errorf("export = %+v", export)
	}
}

func TestExportFolder_UnknownRoot(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "export_folder", map[string]any{"root": "missing"})
	if !r.IsError {
		t.Error("expected error for missing folder")
	}
}

func TestExportFolder_NoteDestinationRejected(t *testing.T) {
	srv, dir := testServer(t)
	r := callTool(t, srv, "export_folder", map[string]any{"destination": "B.md"})
	if !r.IsError || !strings.Contains(resultText(r), "B.md") {
		t.Errorf("result = %+v", r)
	}
	data, err := os.ReadFile(filepath.Join(dir, "B.md"))
	if err != nil || string(data) != "World #y" {
		t.Errorf("B.md = %q, %v", data, err)
	}
}

func TestExportFolder_EmptyTagMeansNoFilter(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "export_folder", map[string]any{"required_tag": ""})
	var sum exportSummary
	if err := json.Unmarshal([]byte(resultText(r)), &sum); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, resultText(r))
	}
	if sum.Count != 3 {
		t.Errorf("count = %d, want 3", sum.Count)
	}
}

func TestExportFolder_HTMLWithoutRenderer(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "export_folder", map[string]any{"render_html": true})
	if !r.IsError || !strings.Contains(resultText(r), "html") {
		t.Errorf("result = %+v", r)
	}
}

func TestListFoldersAndTags(t *testing.T) {
	srv, _ := testServer(t)

	var folders []string
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_folders", nil))), &folders)
	if len(folders) != 2 || folders[1] != "C" {
		t.Errorf("folders = %v", folders)
	}

	var tags []exportservice.TagCount
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_tags", nil))), &tags)
	if len(tags) != 2 || tags[0].Tag != "x" || tags[1].Tag != "y" {
		t.Errorf("tags = %+v", tags)
	}
}

func TestListExports(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "export_folder", nil)
	_ = callTool(t, srv, "export_folder", nil)

	text := resultText(callTool(t, srv, "list_exports", map[string]any{"limit": 1}))
	var runs []map[string]any
	if err := json.Unmarshal([]byte(text), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0]["note_count"].(float64) != 3 {
		t.Errorf("runs = %v", runs)
	}

	if r := callTool(t, srv, "list_exports", map[string]any{"limit": -1}); !r.IsError {
		t.Error("expected error for negative limit")
	}
}

func TestExportFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readExportFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ExportFormatURI || !strings.Contains(tc.Text, `"notes"`) {
		t.Errorf("resource = %+v", contents)
	}
}
