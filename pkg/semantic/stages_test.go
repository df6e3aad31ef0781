package semantic

import (
	"testing"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/google/go-cmp/cmp"
)

func floatPtr(v float64) *float64 { return &v }

func shape(kind scene.Kind, id string, x, y, w, h float64) scene.RawShape {
	return scene.RawShape{ID: id, Kind: kind, Geometry: scene.Geometry{X: x, Y: y, Width: w, Height: h}}
}

func rect(id string, x, y, w, h float64) scene.RawShape {
	return shape(scene.KindRectangle, id, x, y, w, h)
}

func roundedRect(id string, x, y, w, h float64, text string) scene.RawShape {
	s := rect(id, x, y, w, h)
	s.Style.Roundness = floatPtr(1)
	s.Text = text
	return s
}

func textAt(id string, x, y, w, h float64, text string) scene.RawShape {
	s := shape(scene.KindText, id, x, y, w, h)
	s.Text = text
	return s
}

type stages struct {
	n     *scene.Normalized
	h     *Hierarchy
	atts  []TextAttachment
	conns []Connector
	roles []RoleAssignment
}

func runStages(shapes ...scene.RawShape) stages {
	var s stages
	s.n = scene.Normalize(shapes)
	s.h = ResolveContainers(s.n)
	s.atts = AttachText(s.n, s.h)
	s.conns = AnalyzeConnectors(s.n, s.atts)
	s.roles = ClassifyRoles(s.n, s.h, s.atts, s.conns)
	return s
}

func (s stages) role(t *testing.T, id string) RoleAssignment {
	t.Helper()
	for _, r := range s.roles {
		if r.ElementID == id {
			return r
		}
	}
	t.Fatalf("no role assigned to %s", id)
	return RoleAssignment{}
}

func (s stages) attachment(t *testing.T, id string) TextAttachment {
	t.Helper()
	for _, a := range s.atts {
		if a.TextID == id {
			return a
		}
	}
	t.Fatalf("no attachment for %s", id)
	return TextAttachment{}
}

func TestResolveContainers_FirstClaimWins(t *testing.T) {
	s := runStages(
		rect("outer", 0, 0, 400, 300),
		rect("inner", 50, 50, 200, 100),
		textAt("t", 60, 60, 50, 20, "hello"),
	)

	want := map[string]string{"inner": "outer", "t": "outer"}
	if diff := cmp.Diff(want, s.h.Parents); diff != "" {
		t.Errorf("parents mismatch (-want +got):\n%s", diff)
	}
	if got := s.h.Depth("t"); got != 1 {
		t.Errorf("expected depth 1 for t, got %d", got)
	}
}

func TestResolveContainers_IsAcyclic(t *testing.T) {
	// Each box holds the other's center; only the lower one may claim.
	scenes := [][]scene.RawShape{
		{rect("a", 0, 0, 200, 200), rect("b", 50, 50, 200, 200)},
		{rect("a", 0, 0, 200, 200), rect("b", 50, 50, 200, 200), rect("c", 20, 20, 200, 200)},
		{
			shape(scene.KindEllipse, "e", 0, 0, 300, 300),
			rect("r", 100, 100, 150, 150),
			rect("s", 120, 120, 100, 100),
			textAt("t", 130, 130, 40, 20, "x"),
		},
	}

	for i, shapes := range scenes {
		s := runStages(shapes...)
		for _, el := range s.n.All {
			if s.h.IsAncestor(el.ID, el.ID) {
				t.Errorf("scene %d: %s is its own ancestor", i, el.ID)
			}
			steps := 0
			for id, ok := el.ID, true; ok; id, ok = s.h.Parent(id) {
				steps++
				if steps > s.n.Len()+1 {
					t.Fatalf("scene %d: parent chain from %s does not terminate", i, el.ID)
				}
			}
		}
	}
}

func TestResolveContainers_Groups(t *testing.T) {
	a := rect("a", 0, 0, 20, 20)
	a.GroupID = "g"
	b := rect("b", 100, 50, 20, 20)
	b.GroupID = "g"
	lone := rect("c", 500, 500, 20, 20)
	lone.GroupID = "solo"

	s := runStages(a, b, lone)

	key := GroupKey("g")
	if s.h.Parents["a"] != key || s.h.Parents["b"] != key {
		t.Errorf("expected both members under %s, got %v", key, s.h.Parents)
	}
	if _, ok := s.h.Parents["c"]; ok {
		t.Error("a single-member group must not create a container")
	}
	want := scene.NewBoundingBox(0, 0, 120, 70)
	if diff := cmp.Diff(want, s.h.GroupBoxes[key]); diff != "" {
		t.Errorf("group box mismatch (-want +got):\n%s", diff)
	}
}

func TestAttachText(t *testing.T) {
	bound := textAt("bound", 10, 300, 50, 20, "Go")
	bound.ContainerID = "btn"
	big := textAt("big", 20, 200, 100, 30, "Header")
	big.Style.FontSize = floatPtr(28)

	s := runStages(
		rect("panel", 0, 0, 400, 300),
		textAt("top", 20, 10, 100, 20, "Panel title"),
		textAt("body", 20, 150, 100, 20, "Some details"),
		big,
		rect("btn", 500, 0, 120, 40),
		bound,
		rect("box", 500, 100, 100, 60),
		textAt("caption", 510, 170, 80, 20, "Caption"),
		textAt("alone", 900, 900, 80, 20, "Floating"),
	)

	tests := []struct {
		id   string
		want TextAttachment
	}{
		{"top", TextAttachment{TextID: "top", AttachedTo: "panel", Type: AttachTitle, Confidence: 0.9}},
		{"body", TextAttachment{TextID: "body", AttachedTo: "panel", Type: AttachBody, Confidence: 0.9}},
		{"big", TextAttachment{TextID: "big", AttachedTo: "panel", Type: AttachTitle, Confidence: 0.9}},
		{"bound", TextAttachment{TextID: "bound", AttachedTo: "btn", Type: AttachBody, Confidence: 0.95}},
		{"caption", TextAttachment{TextID: "caption", AttachedTo: "box", Type: AttachTitle, Confidence: 0.8}},
		{"alone", TextAttachment{TextID: "alone", Type: AttachStandalone, Confidence: 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, s.attachment(t, tt.id)); diff != "" {
				t.Errorf("attachment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAnalyzeConnectors_BothEndsRequired(t *testing.T) {
	line := shape(scene.KindLine, "poly", 0, 0, 0, 0)
	line.Points = []scene.Point{{X: 50, Y: 50}, {X: 120, Y: 90}, {X: 250, Y: 50}}

	label := textAt("lbl", 130, 10, 40, 20, "next")
	label.ContainerID = "arrow"

	s := runStages(
		rect("a", 0, 0, 100, 50),
		rect("b", 200, 0, 100, 50),
		shape(scene.KindArrow, "arrow", 100, 25, 100, 0),
		label,
		shape(scene.KindArrow, "dangling", 100, 25, 300, 0),
		shape(scene.KindArrow, "nowhere", 600, 600, 50, 0),
		line,
	)

	if len(s.conns) != 2 {
		t.Fatalf("expected 2 connectors, got %d: %+v", len(s.conns), s.conns)
	}
	for _, c := range s.conns {
		if c.Start == nil || c.End == nil {
			t.Fatalf("connector %s has an unresolved end", c.ElementID)
		}
		for _, end := range []*Attachment{c.Start, c.End} {
			el, ok := s.n.Get(end.ShapeID)
			if !ok || el.Kind.IsConnector() {
				t.Errorf("connector %s attached to invalid shape %q", c.ElementID, end.ShapeID)
			}
		}
	}

	arrow := s.conns[0]
	if arrow.ElementID != "arrow" || arrow.Start.ShapeID != "a" || arrow.End.ShapeID != "b" {
		t.Errorf("unexpected arrow resolution: %+v", arrow)
	}
	if arrow.Direction != DirectionStartToEnd || arrow.Confidence != 0.9 {
		t.Errorf("expected directed arrow at 0.9, got %s at %v", arrow.Direction, arrow.Confidence)
	}
	if arrow.Start.Point != scene.AttachRight || arrow.End.Point != scene.AttachLeft {
		t.Errorf("expected right to left attachment, got %s to %s", arrow.Start.Point, arrow.End.Point)
	}
	if arrow.Label != "next" {
		t.Errorf("expected label from bound text, got %q", arrow.Label)
	}

	poly := s.conns[1]
	if poly.ElementID != "poly" || poly.Direction != DirectionBidirectional || poly.Confidence != 0.8 {
		t.Errorf("unexpected line resolution: %+v", poly)
	}
	if poly.Start.ShapeID != "a" || poly.End.ShapeID != "b" {
		t.Errorf("expected line from a to b through its vertices, got %s to %s", poly.Start.ShapeID, poly.End.ShapeID)
	}
}

func TestAnalyzeConnectors_FreeTextTargets(t *testing.T) {
	own := textAt("own", 198, 15, 30, 20, "go")
	own.ContainerID = "toNote"

	s := runStages(
		rect("a", 0, 0, 100, 50),
		textAt("note", 205, 10, 80, 30, "Checkout"),
		shape(scene.KindArrow, "toNote", 100, 25, 100, 0),
		own,
	)

	if len(s.conns) != 1 {
		t.Fatalf("expected the arrow to resolve, got %+v", s.conns)
	}
	c := s.conns[0]
	if c.Start.ShapeID != "a" || c.End.ShapeID != "note" || c.End.Point != scene.AttachLeft {
		t.Errorf("expected a to the left of note, got %s to %s (%s)", c.Start.ShapeID, c.End.ShapeID, c.End.Point)
	}
	if c.Label != "go" {
		t.Errorf("expected the bound label, got %q", c.Label)
	}
}

func TestClassifyRoles(t *testing.T) {
	dbBox := rect("db", 0, 0, 150, 150)
	dbBox.Text = "User DB"

	invisible := rect("ghost", 0, 0, 50, 50)
	invisible.Style.Opacity = floatPtr(0)

	tests := []struct {
		name   string
		shapes []scene.RawShape
		id     string
		role   Role
		conf   float64
	}{
		{"button", []scene.RawShape{roundedRect("btn", 0, 0, 120, 40, "Submit")}, "btn", RoleButton, 0.9},
		{"diamond", []scene.RawShape{shape(scene.KindDiamond, "d", 0, 0, 80, 80)}, "d", RoleDecisionPoint, 0.95},
		{"radio", []scene.RawShape{shape(scene.KindEllipse, "o", 0, 0, 20, 20)}, "o", RoleRadioButton, 0.7},
		{"icon", []scene.RawShape{shape(scene.KindEllipse, "o", 0, 0, 100, 100)}, "o", RoleIcon, 0.6},
		{"elongated ellipse", []scene.RawShape{shape(scene.KindEllipse, "o", 0, 0, 200, 50)}, "o", RoleComponent, 0.5},
		{"database", []scene.RawShape{dbBox}, "db", RoleUnknown, 0.85},
		{"large area", []scene.RawShape{rect("big", 0, 0, 300, 200)}, "big", RoleContainer, 0.6},
		{"plain", []scene.RawShape{rect("p", 0, 0, 50, 50)}, "p", RoleComponent, 0.3},
		{"image", []scene.RawShape{shape(scene.KindImage, "img", 0, 0, 50, 50)}, "img", RoleImagePlaceholder, 1.0},
		{"standalone text", []scene.RawShape{textAt("t", 0, 0, 50, 20, "hi")}, "t", RoleTextBlock, 1.0},
		{
			"card",
			[]scene.RawShape{
				func() scene.RawShape { r := rect("card", 0, 0, 300, 200); r.Text = "Profile"; return r }(),
				rect("c1", 20, 50, 50, 50),
				rect("c2", 100, 50, 50, 50),
			},
			"card", RoleCard, 0.7,
		},
		{
			"container",
			[]scene.RawShape{rect("box", 0, 0, 100, 100), rect("child", 10, 10, 20, 20)},
			"box", RoleContainer, 0.8,
		},
		{
			"process step",
			[]scene.RawShape{
				roundedRect("s1", 0, 0, 100, 50, ""),
				roundedRect("s2", 200, 0, 100, 50, ""),
				shape(scene.KindArrow, "flow", 100, 25, 100, 0),
			},
			"s1", RoleProcessStep, 0.8,
		},
		{
			"connector",
			[]scene.RawShape{
				rect("a", 0, 0, 100, 50),
				rect("b", 200, 0, 100, 50),
				shape(scene.KindArrow, "flow", 100, 25, 100, 0),
			},
			"flow", RoleConnector, 0.9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runStages(tt.shapes...).role(t, tt.id)
			if got.Role != tt.role || got.Confidence != tt.conf {
				t.Errorf("expected %s at %v, got %s at %v (%v)", tt.role, tt.conf, got.Role, got.Confidence, got.Reasoning)
			}
		})
	}

	t.Run("database hint", func(t *testing.T) {
		got := runStages(dbBox).role(t, "db")
		if got.Reasoning[len(got.Reasoning)-1] != HintDatabaseLike {
			t.Errorf("expected %q hint, got %v", HintDatabaseLike, got.Reasoning)
		}
	})

	t.Run("decorative", func(t *testing.T) {
		s := runStages(invisible, textAt("empty", 0, 100, 50, 20, "   "), shape(scene.KindOther, "x", 0, 200, 10, 10))
		if len(s.roles) != 0 {
			t.Errorf("expected no roles for decorative elements, got %+v", s.roles)
		}
	})
}
