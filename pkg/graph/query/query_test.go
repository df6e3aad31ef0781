package query

import (
	"testing"

	"github.com/athapong/canvas-mcp/pkg/semantic"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
)

func components() []semantic.Component {
	mk := func(id string, role semantic.Role, conf float64, text, region string) semantic.Component {
		c := semantic.Component{ID: id, Role: role, Confidence: conf}
		c.Metadata.Text = text
		c.Metadata.Layout.Region = region
		return c
	}
	w := mk("w", semantic.RoleWidget, 0.95, "[MAP: Paris]", "top-left")
	w.Metadata.Widget = &widgets.Metadata{Type: widgets.TypeMap}
	return []semantic.Component{
		mk("b1", semantic.RoleButton, 0.9, "Submit", "bottom-left"),
		mk("b2", semantic.RoleButton, 0.6, "Cancel", "bottom-right"),
		mk("t", semantic.RoleTextBlock, 0.8, "Email address", "center"),
		w,
	}
}

func ids(comps []semantic.Component) []string {
	out := make([]string, len(comps))
	for i, c := range comps {
		out[i] = c.ID
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		q    *Query
		want []string
	}{
		{"role", NewQuery().Where(FieldRole, Equals, "button"), []string{"b1", "b2"}},
		{"role and confidence", NewQuery().Where(FieldRole, Equals, "BUTTON").Where(FieldConfidence, AtLeast, 0.7), []string{"b1"}},
		{"text contains", NewQuery().Where(FieldText, Contains, "EMAIL"), []string{"t"}},
		{"region prefix", NewQuery().Where(FieldRegion, Contains, "bottom"), []string{"b1", "b2"}},
		{"widget type", NewQuery().Where(FieldWidgetType, Equals, "map"), []string{"w"}},
		{"sorted by confidence", NewQuery().SortBy(FieldConfidence).SetLimit(2), []string{"w", "b1"}},
		{"skip and limit", NewQuery().SetSkip(1).SetLimit(2), []string{"b2", "t"}},
		{"skip past end", NewQuery().SetSkip(10), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.Apply(components())
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, gotIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, gotIDs)
					break
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	bad := []*Query{
		NewQuery().Where("colour", Equals, "red"),
		NewQuery().Where(FieldConfidence, AtLeast, "high"),
		NewQuery().Where(FieldRole, Operator("like"), "B%"),
	}
	for _, q := range bad {
		if _, err := q.Apply(components()); err == nil {
			t.Errorf("expected %s to be rejected", q)
		}
	}
}
