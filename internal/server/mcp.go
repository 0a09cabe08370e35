package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/tracemap/internal/sourcemap"
)

// DeobfuscateStackArgs represents the arguments for the deobfuscate_stack tool
type DeobfuscateStackArgs struct {
	Stack string `json:"stack" jsonschema:"Raw JavaScript error stack trace as captured from the browser"`
	Debug bool   `json:"debug,omitempty" jsonschema:"Append a mapped or unmapped marker to every frame (default: false)"`
}

// ListSourceMapsArgs represents the arguments for the list_source_maps tool
type ListSourceMapsArgs struct{}

// NewMCPServer creates an MCP server exposing the deobfuscator as tools
func NewMCPServer(resolver Resolver, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tracemap",
		Version: "1.0.0",
	}, &mcp.ServerOptions{
		Instructions: `
Stack trace deobfuscation for minified JavaScript bundles.

Tools:
1. "deobfuscate_stack" - Rewrite a raw stack trace to original source files, lines and function names
2. "list_source_maps" - List the generated files that currently have a source map loaded

Frames from files without a loaded map are returned unchanged.
`,
	})

	server.AddReceivingMiddleware(createLoggingMiddleware(logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "deobfuscate_stack",
		Description: "Rewrite a minified JavaScript stack trace using the loaded source maps. Returns one \"at fn (file:line:column)\" line per frame.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DeobfuscateStackArgs) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(args.Stack) == "" {
			return nil, nil, errors.New("stack is required")
		}

		frames := resolver.Resolve(args.Stack)
		var text string
		if args.Debug {
			text = sourcemap.FormatWithMetadata(frames, nil)
		} else {
			text = sourcemap.FormatStackTrace(frames)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: text},
			},
		}, nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_source_maps",
		Description: "List the generated file names that currently have a source map loaded, one per line.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListSourceMapsArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: strings.Join(resolver.Keys(), "\n")},
			},
		}, nil, nil
	})

	return server
}
