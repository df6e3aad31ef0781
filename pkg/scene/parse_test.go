package scene

import (
	"strings"
	"testing"
)

func TestParseElementsJSON_ExcalidrawScene(t *testing.T) {
	data := []byte(`{
		"type": "excalidraw",
		"elements": [
			{"id": "r1", "type": "rectangle", "x": 10, "y": 20, "width": 200, "height": 50,
			 "angle": 0, "backgroundColor": "#fff", "strokeWidth": 2, "roundness": {"type": 3},
			 "opacity": 100, "groupIds": ["inner", "outer"]},
			{"id": "t1", "type": "text", "x": 20, "y": 30, "width": 80, "height": 20,
			 "text": "Submit", "fontSize": 20, "containerId": "r1"},
			{"id": "gone", "type": "rectangle", "isDeleted": true},
			{"id": "a1", "type": "arrow", "x": 0, "y": 0, "width": 100, "height": 0,
			 "points": [[0, 0], [100, 0]]}
		]
	}`)

	shapes, err := ParseElementsJSON(data)
	if err != nil {
		t.Fatalf("ParseElementsJSON failed: %v", err)
	}
	if len(shapes) != 3 {
		t.Fatalf("expected 3 shapes (deleted dropped), got %d", len(shapes))
	}

	rect := shapes[0]
	if rect.Kind != KindRectangle || rect.Width != 200 || rect.GroupID != "outer" {
		t.Errorf("unexpected rectangle %+v", rect)
	}
	if rect.Style.Roundness == nil || *rect.Style.Roundness != 3 {
		t.Errorf("expected roundness 3, got %v", rect.Style.Roundness)
	}
	if rect.Style.Opacity == nil || *rect.Style.Opacity != 1 {
		t.Errorf("expected opacity scaled to 1, got %v", rect.Style.Opacity)
	}
	if rect.Style.FontSize != nil {
		t.Error("absent fontSize must stay nil")
	}

	text := shapes[1]
	if text.Text != "Submit" || text.ContainerID != "r1" || *text.Style.FontSize != 20 {
		t.Errorf("unexpected text %+v", text)
	}

	arrow := shapes[2]
	if len(arrow.Points) != 2 || arrow.Points[1].X != 100 {
		t.Errorf("unexpected arrow points %v", arrow.Points)
	}
}

func TestParseElementsJSON_BareArrayAndKindAlias(t *testing.T) {
	shapes, err := ParseElementsJSON([]byte(`[{"kind": "diamond", "x": 1, "style": {"strokeColor": "#f00"}}]`))
	if err != nil {
		t.Fatalf("ParseElementsJSON failed: %v", err)
	}
	if len(shapes) != 1 || shapes[0].Kind != KindDiamond {
		t.Fatalf("unexpected shapes %+v", shapes)
	}
	if shapes[0].ID != "element-0" {
		t.Errorf("expected generated id, got %q", shapes[0].ID)
	}
	if shapes[0].Style.StrokeColor != "#f00" {
		t.Errorf("expected nested style to be read, got %q", shapes[0].Style.StrokeColor)
	}
}

func TestParseElementsJSON_Errors(t *testing.T) {
	for _, in := range []string{`not json`, `{"elements": 3}`, `[1, 2]`} {
		if _, err := ParseElementsJSON([]byte(in)); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestParseSVG(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300">
		<g id="form">
			<rect id="box" x="10" y="10" width="200" height="60" rx="8" fill="#eee" stroke-width="2"/>
			<text x="110" y="45" font-size="16" text-anchor="middle">Submit</text>
		</g>
		<circle cx="300" cy="50" r="20"/>
		<line x1="210" y1="40" x2="280" y2="50" marker-end="url(#head)"/>
		<polygon points="300,100 340,140 300,180 260,140"/>
	</svg>`

	shapes, err := ParseSVG(strings.NewReader(svg))
	if err != nil {
		t.Fatalf("ParseSVG failed: %v", err)
	}
	if len(shapes) != 5 {
		t.Fatalf("expected 5 shapes, got %d: %+v", len(shapes), shapes)
	}

	byKind := map[Kind]RawShape{}
	for _, s := range shapes {
		byKind[s.Kind] = s
	}

	rect := byKind[KindRectangle]
	if rect.ID != "box" || rect.GroupID != "form" || rect.Width != 200 {
		t.Errorf("unexpected rect %+v", rect)
	}
	if rect.Style.Roundness == nil || *rect.Style.Roundness != 8 {
		t.Error("expected rx to map to roundness")
	}

	if text := byKind[KindText]; text.Text != "Submit" || text.GroupID != "form" {
		t.Errorf("unexpected text %+v", text)
	}
	if circle := byKind[KindEllipse]; circle.X != 280 || circle.Width != 40 {
		t.Errorf("unexpected circle %+v", circle)
	}
	if arrow, ok := byKind[KindArrow]; !ok || len(arrow.Points) != 2 {
		t.Errorf("expected marker-end line to become an arrow, got %+v", arrow)
	}
	if _, ok := byKind[KindDiamond]; !ok {
		t.Error("expected rhombus polygon to become a diamond")
	}
}
