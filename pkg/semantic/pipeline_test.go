package semantic

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
	"github.com/sirupsen/logrus"
)

type staticNamer struct{}

func (staticNamer) SuggestName(Component) string { return "" }

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	base := []Option{WithLogger(logger), WithNameSuggester(staticNamer{}), WithPipelineClock(clock)}
	return NewPipeline(append(base, opts...)...)
}

func extract(t *testing.T, p *Pipeline, opts Options, shapes ...scene.RawShape) *Result {
	t.Helper()
	res, err := p.Extract(context.Background(), Request{
		Elements: shapes,
		Viewport: scene.Viewport{Width: 1000, Height: 1000},
		Options:  opts,
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return res
}

func loginForm() []scene.RawShape {
	title := textAt("title", 20, 10, 150, 30, "Login Form")
	title.Style.FontSize = floatPtr(24)
	return []scene.RawShape{
		rect("form", 0, 0, 400, 300),
		title,
		rect("label", 20, 80, 150, 30),
		textAt("email", 25, 85, 120, 20, "Email Address"),
		roundedRect("submit", 20, 220, 160, 40, "Submit Button"),
	}
}

func TestExtract_EmptyScene(t *testing.T) {
	res := extract(t, newTestPipeline(t), DefaultOptions())

	if res.Components == nil || len(res.Components) != 0 {
		t.Errorf("expected an empty, non-nil component list, got %#v", res.Components)
	}
	if res.Summary.TotalElements != 0 || res.Summary.TotalComponents != 0 {
		t.Errorf("unexpected summary %+v", res.Summary)
	}
	if res.TokenOptimization == nil || res.TokenOptimization.Validation.OverallSuccess {
		t.Errorf("an empty scene cannot pass validation: %+v", res.TokenOptimization)
	}
}

func TestExtract_LoginFormTokenScenario(t *testing.T) {
	res := extract(t, newTestPipeline(t), DefaultOptions(), loginForm()...)

	opt := res.TokenOptimization
	if opt == nil {
		t.Fatal("expected token optimization")
	}
	if opt.RawTokens <= opt.CompactTokens {
		t.Errorf("raw estimate %d must exceed compact estimate %d", opt.RawTokens, opt.CompactTokens)
	}
	if opt.Validation.OverallSuccess && opt.ReductionPercent < TargetReduction {
		t.Errorf("validation passed with only %.1f%% reduction", opt.ReductionPercent)
	}
	if !opt.Validation.Grouped {
		t.Errorf("expected fewer components than elements, got %d for %d", len(res.Components), res.Summary.TotalElements)
	}

	form, ok := res.Component(ComponentID("form"))
	if !ok {
		t.Fatal("expected a component for the form")
	}
	if form.Role != RoleCard {
		t.Errorf("expected the form to be a CARD, got %s", form.Role)
	}
	if len(form.ElementIDs) != 2 || form.ElementIDs[1] != "title" {
		t.Errorf("expected the title merged into the form, got %v", form.ElementIDs)
	}
	if _, ok := res.Component(ComponentID("title")); ok {
		t.Error("merged title must not have its own component")
	}

	submit, _ := res.Component(ComponentID("submit"))
	if submit.Role != RoleButton || submit.Metadata.Interaction != InteractionClickable {
		t.Errorf("expected a clickable BUTTON, got %s/%s", submit.Role, submit.Metadata.Interaction)
	}
	if submit.Metadata.Layout.ParentID != form.ID {
		t.Errorf("expected submit under the form, got parent %q", submit.Metadata.Layout.ParentID)
	}
	if submit.Metadata.Name != "Button 1" {
		t.Errorf("expected fallback name, got %q", submit.Metadata.Name)
	}
	if _, ok := hasRelationship(form.Relationships, RelContains, "submit"); !ok {
		t.Errorf("expected form CONTAINS submit, got %+v", form.Relationships)
	}
}

func TestExtract_WidgetOverridesRole(t *testing.T) {
	p := newTestPipeline(t)
	shapes := []scene.RawShape{
		func() scene.RawShape { r := rect("map", 0, 0, 300, 200); r.Text = "[MAP: Paris office]"; return r }(),
		textAt("vid", 500, 500, 200, 30, "[VIDEO: https://youtube.com/watch?v=abc]"),
		roundedRect("plain", 0, 400, 120, 40, "Regular button text"),
	}

	res := extract(t, p, DefaultOptions(), shapes...)

	m, _ := res.Component(ComponentID("map"))
	if m.Role != RoleWidget || m.Metadata.Widget == nil || m.Metadata.Widget.Type != widgets.TypeMap {
		t.Fatalf("expected a map WIDGET, got %s %+v", m.Role, m.Metadata.Widget)
	}
	if m.Confidence != 0.95 || m.Metadata.Interaction != InteractionEmbedded {
		t.Errorf("expected embedded widget at 0.95, got %v/%s", m.Confidence, m.Metadata.Interaction)
	}

	v, _ := res.Component(ComponentID("vid"))
	if v.Role != RoleWidget || v.Metadata.Widget.Video == nil || v.Metadata.Widget.Video.Provider != "youtube" {
		t.Errorf("expected a youtube video widget, got %s %+v", v.Role, v.Metadata.Widget)
	}

	plain, _ := res.Component(ComponentID("plain"))
	if plain.Role != RoleButton {
		t.Errorf("expected plain text to stay a BUTTON, got %s", plain.Role)
	}
	if res.Summary.WidgetCount != 2 || len(res.Detections) != 3 {
		t.Errorf("expected 2 widgets out of 3 detections, got %d (%d detections)", res.Summary.WidgetCount, len(res.Detections))
	}

	opts := DefaultOptions()
	opts.EnableWidgetDetection = false
	res = extract(t, p, opts, shapes...)
	if m, _ := res.Component(ComponentID("map")); m.Role == RoleWidget {
		t.Error("widget detection disabled but role was overridden")
	}
}

func TestExtract_WidgetLabelOnConnector(t *testing.T) {
	label := textAt("lbl", 130, 10, 60, 20, "sends events")
	label.ContainerID = "arr"

	res := extract(t, newTestPipeline(t), DefaultOptions(),
		roundedRect("a", 0, 0, 100, 50, ""),
		roundedRect("b", 200, 0, 100, 50, ""),
		shape(scene.KindArrow, "arr", 100, 25, 100, 0),
		label,
	)

	arr, ok := res.Component(ComponentID("arr"))
	if !ok {
		t.Fatal("expected a component for the arrow")
	}
	if arr.Role != RoleConnector || arr.Metadata.Widget != nil {
		t.Errorf("expected the arrow to stay a CONNECTOR, got %s %+v", arr.Role, arr.Metadata.Widget)
	}
	if len(arr.ElementIDs) != 1 {
		t.Errorf("expected the widget label to stay separate, got elements %v", arr.ElementIDs)
	}
	for _, r := range arr.Relationships {
		t.Errorf("connector picked up relationship %s to %s", r.Type, r.TargetComponentID)
	}

	lbl, ok := res.Component(ComponentID("lbl"))
	if !ok || lbl.Role != RoleWidget || lbl.Metadata.Widget == nil || lbl.Metadata.Widget.Type != widgets.TypeCalendar {
		t.Errorf("expected the label to be a calendar WIDGET, got %+v", lbl)
	}

	a, _ := res.Component(ComponentID("a"))
	if r, ok := hasRelationship(a.Relationships, RelFlowsTo, "b"); !ok || r.Metadata["label"] != "sends events" {
		t.Errorf("expected a FLOWS_TO b labelled by the annotation, got %+v", a.Relationships)
	}
}

func TestExtract_KeepsNegativeDetections(t *testing.T) {
	hidden := rect("ghost", 600, 600, 80, 40)
	hidden.Style.Opacity = floatPtr(0)

	res := extract(t, newTestPipeline(t), DefaultOptions(),
		roundedRect("submit", 0, 0, 160, 40, "Submit Button"),
		textAt("note", 0, 200, 200, 20, "Regular button text"),
		hidden,
		shape(scene.KindEllipse, "dot", 400, 400, 20, 20),
	)

	got := make(map[string]widgets.Detection, len(res.Detections))
	for _, d := range res.Detections {
		got[d.ElementID] = d
	}
	if len(got) != 3 {
		t.Fatalf("expected detections for submit, note and ghost, got %+v", res.Detections)
	}
	for _, id := range []string{"submit", "note", "ghost"} {
		d, ok := got[id]
		if !ok {
			t.Errorf("missing detection for %s", id)
			continue
		}
		if d.IsWidget || d.Metadata != nil {
			t.Errorf("expected %s to be a negative detection, got %+v", id, d)
		}
	}
	if _, ok := got["dot"]; ok {
		t.Error("ellipses are not scanned for widgets")
	}
	if res.Summary.WidgetCount != 0 {
		t.Errorf("expected no widgets, got %d", res.Summary.WidgetCount)
	}
}

func TestExtract_Options(t *testing.T) {
	p := newTestPipeline(t)

	t.Run("min confidence drops components", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MinConfidence = 0.5
		res := extract(t, p, opts, loginForm()...)
		if _, ok := res.Component(ComponentID("label")); ok {
			t.Error("expected the 0.3 label rectangle to be dropped")
		}
		if res.Summary.DroppedComponents != 1 {
			t.Errorf("expected 1 dropped component, got %d", res.Summary.DroppedComponents)
		}
	})

	t.Run("max components keeps the most confident", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxComponents = 2
		res := extract(t, p, opts, loginForm()...)
		if len(res.Components) != 2 {
			t.Fatalf("expected 2 components, got %d", len(res.Components))
		}
		if res.Components[0].ID != ComponentID("email") || res.Components[1].ID != ComponentID("submit") {
			t.Errorf("expected email and submit in source order, got %s and %s", res.Components[0].ID, res.Components[1].ID)
		}
	})

	t.Run("fast depth skips relationship analysis", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AnalysisDepth = DepthFast
		res := extract(t, p, opts,
			roundedRect("a", 0, 0, 100, 50, ""),
			roundedRect("b", 200, 0, 100, 50, ""),
			shape(scene.KindArrow, "flow", 100, 25, 100, 0),
		)
		a, _ := res.Component(ComponentID("a"))
		for _, r := range a.Relationships {
			if r.Type != RelFlowsTo {
				t.Errorf("fast depth produced %s", r.Type)
			}
		}
		if _, ok := hasRelationship(a.Relationships, RelFlowsTo, "b"); !ok {
			t.Error("connector flows are kept at fast depth")
		}
	})

	t.Run("thorough depth counts exactly", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AnalysisDepth = DepthThorough
		res := extract(t, newTestPipeline(t, WithTokenCounter(fixedCounter{})), opts, loginForm()...)
		if res.TokenOptimization.Encoding != "words" || res.TokenOptimization.ExactRawTokens == 0 {
			t.Errorf("expected exact counts, got %+v", res.TokenOptimization)
		}
	})

	t.Run("token optimization disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.EnableTokenOptimization = false
		if res := extract(t, p, opts, loginForm()...); res.TokenOptimization != nil {
			t.Error("expected no token optimization")
		}
	})
}

func TestExtract_SkipsNonFiniteGeometry(t *testing.T) {
	bad := rect("bad", 0, 0, 10, 10)
	bad.Width = math.Inf(1)

	res := extract(t, newTestPipeline(t), DefaultOptions(), bad, rect("ok", 0, 0, 10, 10))
	if len(res.Summary.SkippedElements) != 1 || res.Summary.SkippedElements[0] != "bad" {
		t.Errorf("expected bad to be skipped, got %v", res.Summary.SkippedElements)
	}
	if res.Summary.TotalComponents != 1 {
		t.Errorf("expected one component, got %d", res.Summary.TotalComponents)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t).Extract(ctx, Request{Elements: loginForm(), Options: DefaultOptions()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBatchExtract(t *testing.T) {
	p := newTestPipeline(t, WithBatchSize(2))
	reqs := make([]Request, 5)
	for i := range reqs {
		reqs[i] = Request{Elements: loginForm()[:i+1], Options: DefaultOptions()}
	}

	results, err := p.BatchExtract(context.Background(), reqs)
	if err != nil {
		t.Fatalf("BatchExtract failed: %v", err)
	}
	for i, res := range results {
		if res.Summary.TotalElements != i+1 {
			t.Errorf("result %d: expected %d elements, got %d", i, i+1, res.Summary.TotalElements)
		}
	}
}

func TestMinimalExtract(t *testing.T) {
	res := MinimalExtract(Request{Elements: loginForm()})

	if !res.Summary.Degraded {
		t.Error("expected a degraded summary")
	}
	if len(res.Components) != 5 {
		t.Fatalf("expected one component per element, got %d", len(res.Components))
	}
	for _, c := range res.Components {
		if len(c.ElementIDs) != 1 || len(c.Relationships) != 0 {
			t.Errorf("unexpected minimal component %+v", c)
		}
	}
	if res.Components[0].Role != RoleComponent || res.Components[1].Role != RoleTextBlock {
		t.Errorf("unexpected kind roles %s, %s", res.Components[0].Role, res.Components[1].Role)
	}
}

func TestAssignNames(t *testing.T) {
	comps := []Component{
		component("a", RoleButton, 0, 0, 1, 1),
		component("b", RoleProcessStep, 0, 0, 1, 1),
		component("c", RoleButton, 0, 0, 1, 1),
	}
	out := assignNames(comps, nil)

	want := []string{"Button 1", "Process Step 1", "Button 2"}
	for i, c := range out {
		if c.Metadata.Name != want[i] {
			t.Errorf("component %d: expected %q, got %q", i, want[i], c.Metadata.Name)
		}
	}
}

func TestProseNamer(t *testing.T) {
	namer := NewProseNamer(nil)

	if got := namer.SuggestName(Component{}); got != "" {
		t.Errorf("expected no name for empty text, got %q", got)
	}
	c := Component{Metadata: ComponentMetadata{Text: "the quick payment summary for all accounts"}}
	got := namer.SuggestName(c)
	if got == "" {
		t.Fatal("expected a name from the text")
	}
	if words := len(strings.Fields(got)); words > maxNameWords {
		t.Errorf("expected at most %d words, got %q", maxNameWords, got)
	}
}
