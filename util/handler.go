package util

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// LegacyHandler is a tool handler that only looks at the call arguments.
type LegacyHandler func(arguments map[string]interface{}) (*mcp.CallToolResult, error)

// AdaptLegacyHandler turns an argument-only handler into a tool handler.
func AdaptLegacyHandler(h LegacyHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return h(request.GetArguments())
	}
}

// ErrorGuard converts panics and returned errors into tool error results so
// one failing tool never takes the server down.
func ErrorGuard(h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"tool":  request.Params.Name,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Tool handler panicked")
				result = mcp.NewToolResultError(fmt.Sprintf("internal error: %v", r))
				err = nil
			}
		}()

		result, err = h(ctx, request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}
