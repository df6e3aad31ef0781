package tools

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/athapong/canvas-mcp/services"
	"github.com/athapong/canvas-mcp/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sashabaranov/go-openai"
)

// ToolGroup is a set of tools switched on and off together.
type ToolGroup struct {
	Name string
	Desc string
}

// ToolGroups lists the names accepted by ENABLE_TOOLS.
var ToolGroups = []ToolGroup{
	{"tool_manager", "Tool management"},
	{"canvas", "Component extraction, compact rendering and canvas diff"},
	{"canvas_graph", "Component queries, neighborhoods and graph export"},
	{"widgets", "Widget store: list, edit, snapshots, import/export, geocoding"},
	{"planner", "LLM plan over the enabled tools"},
}

func RegisterToolManagerTool(s *server.MCPServer) {
	tool := mcp.NewTool("tool_manager",
		mcp.WithDescription("Manage MCP tools - enable or disable tool groups"),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action to perform: list, enable, disable")),
		mcp.WithString("tool_name", mcp.Description("Tool group to enable/disable")),
	)
	s.AddTool(tool, util.ErrorGuard(util.AdaptLegacyHandler(toolManagerHandler)))
}

// RegisterPlannerTool registers tool_use_plan, which needs an LLM provider.
func RegisterPlannerTool(s *server.MCPServer, model string) {
	planTool := mcp.NewTool("tool_use_plan",
		mcp.WithDescription("Create a plan using the enabled canvas tools to solve the request"),
		mcp.WithString("request", mcp.Required(), mcp.Description("Request to plan for")),
		mcp.WithString("context", mcp.Required(), mcp.Description("Context related to the request, e.g. what is on the canvas")),
	)
	s.AddTool(planTool, util.ErrorGuard(func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolUsePlanHandler(ctx, request.GetArguments(), model)
	}))
}

func enabledTools() []string {
	var out []string
	for _, name := range strings.Split(os.Getenv("ENABLE_TOOLS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func toolManagerHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	action, ok := arguments["action"].(string)
	if !ok {
		return mcp.NewToolResultError("action must be a string"), nil
	}

	toolList := enabledTools()
	allEnabled := len(toolList) == 0

	switch action {
	case "list":
		var b strings.Builder
		b.WriteString("Available tools:\n")
		for _, t := range ToolGroups {
			status := "disabled"
			if allEnabled || slices.Contains(toolList, t.Name) {
				status = "enabled"
			}
			fmt.Fprintf(&b, "- %s (%s) [%s]\n", t.Name, t.Desc, status)
		}
		b.WriteString("\nCurrently enabled tools:\n")
		if allEnabled {
			b.WriteString("All tools are enabled (ENABLE_TOOLS is empty)\n")
		} else {
			for _, name := range toolList {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
		b.WriteString("\nChanges take effect when the server restarts.\n")
		return mcp.NewToolResultText(b.String()), nil

	case "enable", "disable":
		toolName, ok := arguments["tool_name"].(string)
		if !ok || toolName == "" {
			return mcp.NewToolResultError("tool_name is required for enable/disable actions"), nil
		}
		known := slices.ContainsFunc(ToolGroups, func(g ToolGroup) bool { return g.Name == toolName })
		if !known {
			return mcp.NewToolResultError(fmt.Sprintf("unknown tool %q", toolName)), nil
		}

		if action == "enable" {
			if !allEnabled && !slices.Contains(toolList, toolName) {
				toolList = append(toolList, toolName)
			}
		} else {
			if allEnabled {
				for _, g := range ToolGroups {
					toolList = append(toolList, g.Name)
				}
			}
			toolList = slices.DeleteFunc(toolList, func(name string) bool { return name == toolName })
		}

		os.Setenv("ENABLE_TOOLS", strings.Join(toolList, ","))
		return mcp.NewToolResultText(fmt.Sprintf("Successfully %sd tool: %s", action, toolName)), nil

	default:
		return mcp.NewToolResultError("Invalid action. Use 'list', 'enable', or 'disable'"), nil
	}
}

func toolUsePlanHandler(ctx context.Context, arguments map[string]interface{}, model string) (*mcp.CallToolResult, error) {
	request, _ := arguments["request"].(string)
	contextString, _ := arguments["context"].(string)

	client, err := services.DefaultLLMClient()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tools := enabledTools()
	if len(tools) == 0 {
		for _, g := range ToolGroups {
			tools = append(tools, g.Name)
		}
	}

	systemPrompt := fmt.Sprintf(`You are a tool usage planning assistant for a whiteboard canvas. Create a detailed execution plan using the currently enabled tools: %s

Context: %s

Output format:
1. [Tool Name] - Purpose: ... (Expected result: ...)
2. [Tool Name] - Purpose: ... (Expected result: ...)
...`, strings.Join(tools, ", "), contextString)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: request},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API call failed: %v", err)), nil
	}
	if len(resp.Choices) == 0 {
		return mcp.NewToolResultError("No response from model"), nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return mcp.NewToolResultText("**Execution Plan:**\n" + content), nil
}
