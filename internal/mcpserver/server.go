// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes feta's export tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/feta/internal/exportservice"
	"github.com/starford/feta/internal/history"
)

// ExportFormatURI is the resource describing the export document.
const ExportFormatURI = "feta://export-format"

// Service is the export service the tools call.
type Service interface {
	Export(ctx context.Context, req exportservice.Request) (*exportservice.Result, error)
	Folders(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]exportservice.TagCount, error)
	History(ctx context.Context, limit int) ([]history.Run, error)
}

// Server wraps the MCP server with feta tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all feta tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"feta",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("export_folder",
		mcp.WithDescription("Export the notes of a vault folder into a single JSON document and save it. "+
			"Omitted arguments use the configured defaults. Read "+ExportFormatURI+" for the document shape."),
		mcp.WithString("root", mcp.Description("Folder to export, relative to the vault (\"/\" for the whole vault)")),
		mcp.WithString("required_tag", mcp.Description("Only export notes carrying this tag (without #); an empty value clears the configured default")),
		mcp.WithString("required_frontmatter_key", mcp.Description("Only export notes whose frontmatter has this key; an empty value clears the configured default")),
		mcp.WithBoolean("render_html", mcp.Description("Export rendered HTML instead of Markdown")),
		mcp.WithString("destination", mcp.Description("Output file, relative to the vault; must not be a .md file")),
		mcp.WithBoolean("include_notes", mcp.Description("Return the full export document instead of a summary")),
	), s.exportFolder)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List every folder in the vault."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag in the vault with the number of notes carrying it."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("list_exports",
		mcp.WithDescription("List recent export runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), s.listExports)

	s.mcp.AddResource(
		mcp.NewResource(ExportFormatURI, "Export Format",
			mcp.WithResourceDescription("Shape of the JSON document written by export_folder."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// exportSummary is the default export_folder result.
type exportSummary struct {
	Destination string `json:"destination"`
	Count       int    `json:"count"`
	Saved       bool   `json:"saved"`
	Bytes       int    `json:"bytes,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) exportFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	er := exportservice.Request{
		Root:        req.GetString("root", ""),
		Destination: req.GetString("destination", ""),
	}
	args := req.GetArguments()
	if _, ok := args["required_tag"]; ok {
		v := req.GetString("required_tag", "")
		er.RequiredTag = &v
	}
	if _, ok := args["required_frontmatter_key"]; ok {
		v := req.GetString("required_frontmatter_key", "")
		er.RequiredFrontmatterKey = &v
	}
	if _, ok := args["render_html"]; ok {
		v := req.GetBool("render_html", false)
		er.RenderHTML = &v
	}

	res, err := s.svc.Export(ctx, er)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetBool("include_notes", false) {
		out, _ := json.MarshalIndent(res.Export, "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}

	sum := exportSummary{
		Destination: res.Outcome.Destination,
		Count:       res.Export.Count(),
		Saved:       res.Outcome.Saved(),
		Bytes:       res.Outcome.Bytes,
		Checksum:    res.Outcome.Checksum,
	}
	if res.Outcome.Err != nil {
		sum.Error = res.Outcome.Err.Error()
	}
	out, _ := json.MarshalIndent(sum, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.svc.Folders(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(folders, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags found"), nil
	}
	out, _ := json.MarshalIndent(tags, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listExports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be positive, got %d", limit)), nil
	}
	runs, err := s.svc.History(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readExportFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ExportFormatURI,
			MIMEType: "text/markdown",
			Text:     ExportFormat,
		},
	}, nil
}
