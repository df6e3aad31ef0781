package semantic

import (
	"sort"
	"strings"

	"github.com/athapong/canvas-mcp/pkg/scene"
	"github.com/athapong/canvas-mcp/pkg/semantic/widgets"
)

const componentPrefix = "component-"

// ComponentID is the id of the component whose primary element is elementID.
func ComponentID(elementID string) string { return componentPrefix + elementID }

type stageOutput struct {
	normalized  *scene.Normalized
	hierarchy   *Hierarchy
	attachments []TextAttachment
	connectors  []Connector
	roles       []RoleAssignment
	detections  []widgets.Detection
}

// assembleComponents turns role assignments into components.
//
// Text that sits inside the shape it is attached to is merged into that
// shape's component instead of standing alone: titles always, body text
// unless the shape is a container or card. Annotations merge into their
// connector unless they hold a widget, which stays a component of its own.
// A component whose elements include a detected widget takes the WIDGET
// role.
func assembleComponents(s stageOutput, vp scene.Viewport) []Component {
	roleBy := make(map[string]RoleAssignment, len(s.roles))
	for _, r := range s.roles {
		roleBy[r.ElementID] = r
	}
	widgetBy := make(map[string]widgets.Detection)
	for _, d := range s.detections {
		if d.IsWidget {
			widgetBy[d.ElementID] = d
		}
	}

	finalRole := func(id string) Role {
		if _, ok := widgetBy[id]; ok {
			return RoleWidget
		}
		return roleBy[id].Role
	}

	merged := make(map[string][]string)
	absorbed := make(map[string]bool)
	for _, a := range s.attachments {
		if a.AttachedTo == "" || IsGroupKey(a.AttachedTo) {
			continue
		}
		if _, ok := roleBy[a.TextID]; !ok {
			continue
		}
		if _, ok := roleBy[a.AttachedTo]; !ok {
			continue
		}
		text, _ := s.normalized.Get(a.TextID)
		target, _ := s.normalized.Get(a.AttachedTo)

		switch a.Type {
		case AttachAnnotation:
			if _, ok := widgetBy[text.ID]; ok {
				continue
			}
		case AttachTitle:
			if !target.Box.ContainsPoint(text.Box.CenterX, text.Box.CenterY) {
				continue
			}
		case AttachBody:
			if !target.Box.ContainsPoint(text.Box.CenterX, text.Box.CenterY) {
				continue
			}
			if r := finalRole(target.ID); r == RoleContainer || r == RoleCard {
				continue
			}
		default:
			continue
		}
		merged[target.ID] = append(merged[target.ID], text.ID)
		absorbed[text.ID] = true
	}

	out := make([]Component, 0, len(s.roles))
	for _, r := range s.roles {
		if absorbed[r.ElementID] {
			continue
		}
		el, _ := s.normalized.Get(r.ElementID)
		ids := append([]string{el.ID}, merged[el.ID]...)

		c := Component{
			ID:            ComponentID(el.ID),
			ElementIDs:    ids,
			Role:          r.Role,
			Relationships: make([]Relationship, 0),
			Confidence:    r.Confidence,
			BoundingBox:   el.Box,
			Metadata: ComponentMetadata{
				Visual: VisualProperties{
					BackgroundColor: el.Style.BackgroundColor,
					StrokeColor:     el.Style.StrokeColor,
					StrokeWidth:     el.Style.StrokeWidth,
					Rounded:         el.Style.Rounded(),
					Opacity:         el.Style.Opacity,
				},
				Layout: LayoutContext{
					ZIndex: el.ZIndex,
					Region: region(el.Box, vp),
				},
				SemanticHints: append([]string(nil), r.Reasoning...),
			},
		}

		texts := make([]string, 0, len(ids))
		for _, id := range ids {
			member, _ := s.normalized.Get(id)
			if id != el.ID {
				c.BoundingBox = c.BoundingBox.Union(member.Box)
			}
			if t := strings.TrimSpace(member.Text); t != "" {
				texts = append(texts, t)
				if c.Metadata.Visual.FontSize == 0 && member.Kind == scene.KindText {
					c.Metadata.Visual.FontSize = member.Style.FontSize
				}
			}
		}
		c.Metadata.Text = strings.Join(texts, " ")

		for _, id := range ids {
			det, ok := widgetBy[id]
			if !ok || det.Metadata == nil {
				continue
			}
			c.Role = RoleWidget
			c.Confidence = det.Confidence
			md := det.Metadata.Clone()
			c.Metadata.Widget = &md
			c.Metadata.SemanticHints = append(c.Metadata.SemanticHints, det.Reasoning...)
			break
		}

		c.Metadata.Interaction = interactionFor(c.Role)
		out = append(out, c)
	}

	return out
}

// selectComponents drops components under the confidence floor and keeps
// at most limit of the rest, preferring higher confidence. Order is preserved.
func selectComponents(comps []Component, minConfidence float64, limit int) ([]Component, int) {
	kept := make([]Component, 0, len(comps))
	for _, c := range comps {
		if c.Confidence >= minConfidence {
			kept = append(kept, c)
		}
	}
	if limit <= 0 || len(kept) <= limit {
		return kept, len(comps) - len(kept)
	}

	order := make([]int, len(kept))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return kept[order[i]].Confidence > kept[order[j]].Confidence
	})
	keep := order[:limit]
	sort.Ints(keep)

	capped := make([]Component, 0, limit)
	for _, i := range keep {
		capped = append(capped, kept[i])
	}
	return capped, len(comps) - len(capped)
}

// linkLayout fills parent and child links between the given components,
// skipping ancestors that have no component of their own.
func linkLayout(comps []Component, h *Hierarchy) []Component {
	owner := make(map[string]string)
	for _, c := range comps {
		for _, id := range c.ElementIDs {
			owner[id] = c.ID
		}
	}

	out := make([]Component, len(comps))
	children := make(map[string][]string)
	for i, c := range comps {
		primary := c.ElementIDs[0]
		c.Metadata.Layout.Depth = h.Depth(primary)
		c.Metadata.Layout.ParentID = ""
		c.Metadata.Layout.ChildIDs = nil

		for p, ok := h.Parent(primary); ok; p, ok = h.Parent(p) {
			if pc, found := owner[p]; found && pc != c.ID {
				c.Metadata.Layout.ParentID = pc
				children[pc] = append(children[pc], c.ID)
				break
			}
		}
		out[i] = c
	}
	for i := range out {
		out[i].Metadata.Layout.ChildIDs = children[out[i].ID]
	}
	return out
}

func interactionFor(r Role) Interaction {
	switch r {
	case RoleButton, RoleRadioButton:
		return InteractionClickable
	case RoleInputField:
		return InteractionEditable
	case RoleConnector:
		return InteractionNavigable
	case RoleProcessStep, RoleDecisionPoint, RoleCard:
		return InteractionSelectable
	case RoleWidget:
		return InteractionEmbedded
	case RoleTitle, RoleTextBlock, RoleLabel:
		return InteractionReadable
	}
	return InteractionStatic
}

// region names the ninth of the viewport holding the box center, or
// "offscreen". An empty viewport yields no region.
func region(b scene.BoundingBox, vp scene.Viewport) string {
	w, h := vp.Width, vp.Height
	if w <= 0 {
		w = vp.MaxX - vp.MinX
	}
	if h <= 0 {
		h = vp.MaxY - vp.MinY
	}
	if w <= 0 || h <= 0 {
		return ""
	}

	fx := (b.CenterX - vp.MinX) / w
	fy := (b.CenterY - vp.MinY) / h
	if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
		return "offscreen"
	}

	vertical := [...]string{"top", "middle", "bottom"}[third(fy)]
	horizontal := [...]string{"left", "center", "right"}[third(fx)]
	if vertical == "middle" && horizontal == "center" {
		return "center"
	}
	return vertical + "-" + horizontal
}

func third(f float64) int {
	switch {
	case f < 1.0/3:
		return 0
	case f < 2.0/3:
		return 1
	}
	return 2
}
