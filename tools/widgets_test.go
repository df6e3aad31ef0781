package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/athapong/canvas-mcp/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
)

func newWidgetTools(t *testing.T) (*WidgetTools, *fakeGeocoder) {
	t.Helper()
	store := widgets.NewStorage(widgets.WithStorageLogger(quietLogger()))
	seed := []widgets.Metadata{
		{
			ElementID: "office",
			Type:      widgets.TypeMap,
			Title:     "Office",
			Map: &widgets.MapConfig{
				Latitude:     widgets.DefaultMapLatitude,
				Longitude:    widgets.DefaultMapLongitude,
				Zoom:         widgets.DefaultMapZoom,
				Style:        widgets.DefaultMapStyle,
				Query:        "Paris",
				CenterSource: widgets.CenterDefault,
			},
		},
		{
			ElementID: "sales",
			Type:      widgets.TypeChart,
			Title:     "Sales",
			Chart:     &widgets.ChartConfig{ChartType: "line"},
		},
	}
	for _, md := range seed {
		if err := store.Set(md); err != nil {
			t.Fatalf("seeding %s: %v", md.ElementID, err)
		}
	}
	geo := &fakeGeocoder{}
	return &WidgetTools{Store: store, Geocoder: geo}, geo
}

func legacyCall(t *testing.T, h util.LegacyHandler, args map[string]interface{}) (string, bool) {
	t.Helper()
	res, err := h(args)
	if err != nil {
		t.Fatalf("handler returned an error: %v", err)
	}
	return res.Content[0].(mcp.TextContent).Text, res.IsError
}

func TestWidgetListAndGet(t *testing.T) {
	wt, _ := newWidgetTools(t)

	out, isErr := legacyCall(t, wt.listHandler, map[string]interface{}{})
	if isErr {
		t.Fatalf("list failed: %s", out)
	}
	if ids := gjson.Get(out, "#.elementId").Array(); len(ids) != 2 || ids[0].String() != "office" {
		t.Errorf("expected both widgets ordered by id, got %v", ids)
	}

	out, _ = legacyCall(t, wt.listHandler, map[string]interface{}{"type": "CHART"})
	if ids := gjson.Get(out, "#.elementId").Array(); len(ids) != 1 || ids[0].String() != "sales" {
		t.Errorf("expected only the chart, got %v", ids)
	}
	if _, isErr := legacyCall(t, wt.listHandler, map[string]interface{}{"type": "hologram"}); !isErr {
		t.Error("expected an unsupported type to be rejected")
	}

	out, isErr = legacyCall(t, wt.getHandler, map[string]interface{}{"element_id": "office"})
	if isErr || gjson.Get(out, "title").String() != "Office" {
		t.Errorf("unexpected widget_get output %q", out)
	}
	if _, isErr := legacyCall(t, wt.getHandler, map[string]interface{}{"element_id": "nowhere"}); !isErr {
		t.Error("expected a missing widget to be an error")
	}
	if _, isErr := legacyCall(t, wt.getHandler, map[string]interface{}{}); !isErr {
		t.Error("expected element_id to be required")
	}
}

func TestWidgetUpdateAndRestore(t *testing.T) {
	wt, _ := newWidgetTools(t)

	out, isErr := legacyCall(t, wt.updateHandler, map[string]interface{}{
		"element_id": "office",
		"patch":      `{"title":"Head office"}`,
	})
	if isErr {
		t.Fatalf("update failed: %s", out)
	}
	if got := gjson.Get(out, "widget.title").String(); got != "Head office" {
		t.Errorf("expected the new title, got %q", got)
	}
	if got := gjson.Get(out, "widget.version").Int(); got != 2 {
		t.Errorf("expected version 2, got %d", got)
	}
	snapshot := gjson.Get(out, "snapshot_id").String()

	history, _ := legacyCall(t, wt.historyHandler, nil)
	if !strings.Contains(history, snapshot) || !strings.Contains(history, "update office (2 widgets)") {
		t.Errorf("unexpected history:\n%s", history)
	}

	if _, isErr := legacyCall(t, wt.restoreHandler, map[string]interface{}{"snapshot_id": snapshot}); isErr {
		t.Fatal("restore failed")
	}
	md, _ := wt.Store.Get("office")
	if md.Title != "Office" {
		t.Errorf("expected the title to be restored, got %q", md.Title)
	}

	if _, isErr := legacyCall(t, wt.restoreHandler, map[string]interface{}{"snapshot_id": "missing"}); !isErr {
		t.Error("expected an unknown snapshot to be an error")
	}
	if _, isErr := legacyCall(t, wt.updateHandler, map[string]interface{}{"element_id": "office", "patch": "{"}); !isErr {
		t.Error("expected a malformed patch to be an error")
	}
	if _, isErr := legacyCall(t, wt.updateHandler, map[string]interface{}{
		"element_id": "office",
		"patch":      `{"map":{"latitude":120,"longitude":0,"zoom":3,"style":"roadmap"}}`,
	}); !isErr {
		t.Error("expected an out-of-range latitude to be rejected")
	}
}

func TestWidgetDuplicateAndDelete(t *testing.T) {
	wt, _ := newWidgetTools(t)

	out, isErr := legacyCall(t, wt.duplicateHandler, map[string]interface{}{"source_id": "sales", "target_id": "sales-copy"})
	if isErr {
		t.Fatalf("duplicate failed: %s", out)
	}
	if wt.Store.Count() != 3 {
		t.Errorf("expected 3 widgets, got %d", wt.Store.Count())
	}
	if _, isErr := legacyCall(t, wt.duplicateHandler, map[string]interface{}{"source_id": "sales", "target_id": "office"}); !isErr {
		t.Error("expected duplicating onto an existing widget to fail")
	}

	out, isErr = legacyCall(t, wt.deleteHandler, map[string]interface{}{"element_id": "sales-copy"})
	if isErr || !strings.HasPrefix(out, "Deleted widget sales-copy") {
		t.Errorf("unexpected delete output %q", out)
	}
	if wt.Store.Has("sales-copy") {
		t.Error("expected the copy to be gone")
	}
	if _, isErr := legacyCall(t, wt.deleteHandler, map[string]interface{}{"element_id": "sales-copy"}); !isErr {
		t.Error("expected deleting a missing widget to fail")
	}
}

func TestWidgetExportImport(t *testing.T) {
	wt, _ := newWidgetTools(t)

	data, isErr := legacyCall(t, wt.exportHandler, nil)
	if isErr {
		t.Fatalf("export failed: %s", data)
	}
	if !json.Valid([]byte(data)) {
		t.Fatalf("export is not JSON: %s", data)
	}

	wt.Store.Clear()
	out, isErr := legacyCall(t, wt.importHandler, map[string]interface{}{"data": data})
	if isErr || out != "Imported 2 widgets" {
		t.Errorf("unexpected import output %q", out)
	}
	if _, isErr := legacyCall(t, wt.importHandler, map[string]interface{}{"data": "not json"}); !isErr {
		t.Error("expected malformed data to be rejected")
	}
}

func TestWidgetGeocode(t *testing.T) {
	wt, geo := newWidgetTools(t)

	out, isErr := call(t, wt.geocodeHandler, map[string]interface{}{"element_id": "office"})
	if isErr {
		t.Fatalf("geocode failed: %s", out)
	}
	if geo.calls != 1 {
		t.Errorf("expected one lookup, got %d", geo.calls)
	}
	md, _ := wt.Store.Get("office")
	if md.Map.Latitude != 48.8566 || md.Map.CenterSource != widgets.CenterGeocoded {
		t.Errorf("expected the geocoded center, got %+v", md.Map)
	}

	if _, isErr := call(t, wt.geocodeHandler, map[string]interface{}{"element_id": "sales"}); !isErr {
		t.Error("expected a chart widget to be rejected")
	}
}
