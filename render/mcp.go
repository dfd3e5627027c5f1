package render

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domshift/kit"
)

// RegisterMCP exposes the renderer as MCP tools.
func RegisterMCP(srv *mcp.Server, rd *Renderer, logger *slog.Logger) {
	mw := kit.Chain(kit.Logging(logger, "mcp"))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domshift_render",
		Description: "Apply the loaded relocation rules to an HTML document at one or more viewport widths and return the resulting markup and placements.",
		InputSchema: kit.ObjectSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "Full HTML document or fragment"},
			"widths":   map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "description": "Viewport widths in CSS pixels"},
			"height":   map[string]any{"type": "number", "description": "Viewport height in CSS pixels"},
			"from_dom": map[string]any{"type": "boolean", "description": "Also apply rules declared with data-move-* attributes"},
		}, []string{"html"}),
	}, mw(RenderEndpoint(rd)), kit.DecodeArgs[Request])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "domshift_breakpoints",
		Description: "List the named breakpoints and the media queries they stand for.",
		InputSchema: kit.ObjectSchema(map[string]any{}, nil),
	}, mw(BreakpointsEndpoint(rd)), kit.DecodeArgs[struct{}])
}
