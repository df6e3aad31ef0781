package semantic

import (
	"time"

	"github.com/athapong/canvas-mcp/pkg/scene"
)

const minimalConfidence = 0.5

// MinimalExtract is the degraded extraction used when the full pipeline is
// unavailable. Every non-decorative element becomes its own component with
// a role taken from its kind alone. No hierarchy, widgets, relationships or
// token accounting are computed.
func MinimalExtract(req Request) *Result {
	start := time.Now()
	n := scene.Normalize(req.Elements)

	comps := make([]Component, 0, n.Len())
	for _, el := range n.All {
		if decorative(el) {
			continue
		}
		role, ok := kindRole(el.Kind)
		if !ok {
			continue
		}
		comps = append(comps, Component{
			ID:            ComponentID(el.ID),
			ElementIDs:    []string{el.ID},
			Role:          role,
			Relationships: make([]Relationship, 0),
			Confidence:    minimalConfidence,
			BoundingBox:   el.Box,
			Metadata: ComponentMetadata{
				Text: el.Text,
				Visual: VisualProperties{
					BackgroundColor: el.Style.BackgroundColor,
					StrokeColor:     el.Style.StrokeColor,
					StrokeWidth:     el.Style.StrokeWidth,
					Rounded:         el.Style.Rounded(),
					Opacity:         el.Style.Opacity,
				},
				Interaction: interactionFor(role),
				Layout: LayoutContext{
					ZIndex: el.ZIndex,
					Region: region(el.Box, req.Viewport),
				},
				SemanticHints: []string{"kind " + string(el.Kind)},
			},
		})
	}

	opts := req.Options.withDefaults()
	res := &Result{
		Components: comps,
		Timestamp:  start,
	}
	res.Summary = summarize(res, n, 0, opts.AnalysisDepth)
	res.Summary.Degraded = true
	res.ProcessingTime = time.Since(start)
	return res
}

func kindRole(k scene.Kind) (Role, bool) {
	switch k {
	case scene.KindRectangle:
		return RoleComponent, true
	case scene.KindDiamond:
		return RoleDecisionPoint, true
	case scene.KindEllipse:
		return RoleComponent, true
	case scene.KindArrow, scene.KindLine:
		return RoleConnector, true
	case scene.KindText:
		return RoleTextBlock, true
	case scene.KindImage:
		return RoleImagePlaceholder, true
	}
	return "", false
}
