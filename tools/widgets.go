package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/athapong/canvas-mcp/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// WidgetTools exposes the widget store. Mutating tools snapshot the store
// first so every change can be undone with widget_restore.
type WidgetTools struct {
	Store    *widgets.Storage
	Geocoder widgets.Geocoder
}

// RegisterWidgetTools registers the widget_* tools.
func RegisterWidgetTools(s *server.MCPServer, wt *WidgetTools) {
	s.AddTool(mcp.NewTool("widget_list",
		mcp.WithDescription("List stored widgets (maps, videos, iframes, charts, calendars) detected on the canvas"),
		mcp.WithString("type", mcp.Description("Only list widgets of this type: map, video, iframe, chart, calendar")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.listHandler)))

	s.AddTool(mcp.NewTool("widget_get",
		mcp.WithDescription("Get the metadata of one widget"),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Canvas element id of the widget")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.getHandler)))

	s.AddTool(mcp.NewTool("widget_update",
		mcp.WithDescription("Update the title, description or type configuration of a widget"),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Canvas element id of the widget")),
		mcp.WithString("patch", mcp.Required(), mcp.Description(`Patch JSON, e.g. {"title":"Office","map":{"latitude":48.85,"longitude":2.35,"zoom":12,"style":"roadmap"}}`)),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.updateHandler)))

	s.AddTool(mcp.NewTool("widget_duplicate",
		mcp.WithDescription("Copy a widget onto another element"),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Element id to copy from")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Element id to copy to")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.duplicateHandler)))

	s.AddTool(mcp.NewTool("widget_delete",
		mcp.WithDescription("Delete a widget"),
		mcp.WithString("element_id", mcp.Required(), mcp.Description("Canvas element id of the widget")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.deleteHandler)))

	s.AddTool(mcp.NewTool("widget_history",
		mcp.WithDescription("List the saved widget snapshots, oldest first"),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.historyHandler)))

	s.AddTool(mcp.NewTool("widget_restore",
		mcp.WithDescription("Restore the widget store to a saved snapshot"),
		mcp.WithString("snapshot_id", mcp.Required(), mcp.Description("Snapshot id from widget_history")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.restoreHandler)))

	s.AddTool(mcp.NewTool("widget_export",
		mcp.WithDescription("Serialize the widget store to JSON"),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.exportHandler)))

	s.AddTool(mcp.NewTool("widget_import",
		mcp.WithDescription("Replace the widget store with previously exported JSON"),
		mcp.WithString("data", mcp.Required(), mcp.Description("Output of widget_export")),
	), util.ErrorGuard(util.AdaptLegacyHandler(wt.importHandler)))

	if wt.Geocoder != nil {
		s.AddTool(mcp.NewTool("widget_geocode",
			mcp.WithDescription("Center a map widget on a place using Google Maps geocoding"),
			mcp.WithString("element_id", mcp.Required(), mcp.Description("Canvas element id of the map widget")),
			mcp.WithString("query", mcp.Description("Place to look up (default: the place named on the widget)")),
		), util.ErrorGuard(wt.geocodeHandler))
	}
}

func stringArg(arguments map[string]interface{}, key string) (string, error) {
	v, ok := arguments[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%s is required and must be a string", key)
	}
	return v, nil
}

func (wt *WidgetTools) listHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if t, ok := arguments["type"].(string); ok && t != "" {
		typ := widgets.Type(strings.ToLower(t))
		if !typ.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unsupported widget type %q", t)), nil
		}
		return jsonResult(wt.Store.GetByType(typ))
	}
	return jsonResult(wt.Store.GetAll())
}

func (wt *WidgetTools) getHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := stringArg(arguments, "element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, ok := wt.Store.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no widget for element %s", id)), nil
	}
	return jsonResult(md)
}

func (wt *WidgetTools) updateHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := stringArg(arguments, "element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := stringArg(arguments, "patch")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch widgets.Patch
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid patch: %v", err)), nil
	}

	snapshot := wt.Store.SaveSnapshot("update", id)
	md, err := wt.Store.Update(id, patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"widget": md, "snapshot_id": snapshot})
}

func (wt *WidgetTools) duplicateHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	src, err := stringArg(arguments, "source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := stringArg(arguments, "target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snapshot := wt.Store.SaveSnapshot("duplicate", dst)
	md, err := wt.Store.Duplicate(src, dst)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"widget": md, "snapshot_id": snapshot})
}

func (wt *WidgetTools) deleteHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := stringArg(arguments, "element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !wt.Store.Has(id) {
		return mcp.NewToolResultError(fmt.Sprintf("no widget for element %s", id)), nil
	}

	snapshot := wt.Store.SaveSnapshot("delete", id)
	wt.Store.Delete(id)
	return mcp.NewToolResultText(fmt.Sprintf("Deleted widget %s (undo with snapshot %s)", id, snapshot)), nil
}

func (wt *WidgetTools) historyHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	history := wt.Store.History()
	if len(history) == 0 {
		return mcp.NewToolResultText("No snapshots saved"), nil
	}

	var b strings.Builder
	for _, snap := range history {
		fmt.Fprintf(&b, "- %s %s %s", snap.ID, snap.Timestamp.Format("2006-01-02 15:04:05"), snap.Operation)
		if snap.ElementID != "" {
			fmt.Fprintf(&b, " %s", snap.ElementID)
		}
		fmt.Fprintf(&b, " (%d widgets)\n", len(snap.Data))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (wt *WidgetTools) restoreHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	id, err := stringArg(arguments, "snapshot_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !wt.Store.RestoreSnapshot(id) {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot %s not found", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Restored snapshot %s (%d widgets)", id, wt.Store.Count())), nil
}

func (wt *WidgetTools) exportHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	data, err := wt.Store.Serialize()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(data), nil
}

func (wt *WidgetTools) importHandler(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	data, err := stringArg(arguments, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := wt.Store.Deserialize(data); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Imported %d widgets", wt.Store.Count())), nil
}

func (wt *WidgetTools) geocodeHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()
	id, err := stringArg(arguments, "element_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	md, ok := wt.Store.Get(id)
	if !ok || md.Map == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no map widget for element %s", id)), nil
	}

	q, _ := arguments["query"].(string)
	if q == "" {
		q = md.Map.Query
	}
	if q == "" {
		return mcp.NewToolResultError("query is required: the widget names no place"), nil
	}

	lat, lng, err := wt.Geocoder.Geocode(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Google Maps API error: %v", err)), nil
	}

	cfg := *md.Map
	cfg.Latitude, cfg.Longitude = lat, lng
	cfg.Query = q
	cfg.CenterSource = widgets.CenterGeocoded

	snapshot := wt.Store.SaveSnapshot("geocode", id)
	updated, err := wt.Store.Update(id, widgets.Patch{Map: &cfg})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"widget": updated, "snapshot_id": snapshot})
}
