package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/worker"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterCanvasPrompts registers describe_canvas, which embeds the compact
// component rendering of a canvas into a prompt.
func RegisterCanvasPrompts(s *server.MCPServer, manager *worker.Manager, defaults semantic.Options) {
	prompt := mcp.NewPrompt("describe_canvas",
		mcp.WithPromptDescription("Explain what a whiteboard canvas shows, from its extracted components"),
		mcp.WithArgument("elements", mcp.RequiredArgument(), mcp.ArgumentDescription("Canvas elements as JSON")),
		mcp.WithArgument("focus", mcp.ArgumentDescription("What to concentrate on, e.g. the user flow or the form fields")),
	)
	s.AddPrompt(prompt, describeCanvasHandler(manager, defaults))
}

func describeCanvasHandler(manager *worker.Manager, defaults semantic.Options) server.PromptHandlerFunc {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		shapes, err := scene.ParseElementsJSON([]byte(request.Params.Arguments["elements"]))
		if err != nil {
			return nil, fmt.Errorf("describe_canvas: %w", err)
		}

		res := manager.ExtractOrFallback(ctx, semantic.Request{Elements: shapes, Options: defaults})

		var b strings.Builder
		b.WriteString("The canvas contains these components, one per line as ROLE \"text\" @(x,y) [RELATIONSHIP:target]:\n\n")
		b.WriteString(semantic.RenderCompact(res.Components))
		b.WriteString("\n\nDescribe what this canvas represents and how its parts relate.")
		if focus := strings.TrimSpace(request.Params.Arguments["focus"]); focus != "" {
			fmt.Fprintf(&b, " Concentrate on %s.", focus)
		}
		if res.Summary.Degraded {
			b.WriteString(" Roles were assigned from shape kinds only, so treat them as rough.")
		}

		return &mcp.GetPromptResult{
			Description: fmt.Sprintf("Canvas with %d components from %d elements", res.Summary.TotalComponents, res.Summary.TotalElements),
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: b.String(),
					},
				},
			},
		}, nil
	}
}
