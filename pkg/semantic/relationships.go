package semantic

import (
	"math"

	"github.com/athapong/canvas-mcp/pkg/scene"
)

const (
	// Spatial relations are full strength up to spatialNear and fade
	// linearly to nothing at spatialHorizon.
	spatialNear       = 50.0
	spatialHorizon    = 150.0
	spatialConfidence = 0.9

	containmentConfidence = 0.9

	functionalRange      = 100.0
	validatesConfidence  = 0.8
	triggersConfidence   = 0.7
	connectionConfidence = 0.9
)

// AnalyzeRelationships computes pairwise spatial, containment and
// functional relations. Every unordered pair of non-connector components
// is visited once; symmetric relations are added to both ends, TRIGGERS
// only to the button. The input is not modified.
func AnalyzeRelationships(comps []Component) []Component {
	out := cloneComponents(comps)

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			a, b := &out[i], &out[j]
			if a.Role == RoleConnector || b.Role == RoleConnector {
				continue
			}

			if !relateContainment(a, b) {
				relateSpatial(a, b)
			}
			relateFunctional(a, b)
		}
	}
	return out
}

func relateContainment(a, b *Component) bool {
	switch {
	case a.BoundingBox.Area > b.BoundingBox.Area && a.BoundingBox.Encloses(b.BoundingBox):
		link(a, b, RelContains, RelContainedBy, containmentConfidence, nil)
	case b.BoundingBox.Area > a.BoundingBox.Area && b.BoundingBox.Encloses(a.BoundingBox):
		link(b, a, RelContains, RelContainedBy, containmentConfidence, nil)
	default:
		return false
	}
	return true
}

func relateSpatial(a, b *Component) {
	dx := b.BoundingBox.CenterX - a.BoundingBox.CenterX
	dy := b.BoundingBox.CenterY - a.BoundingBox.CenterY
	dist := math.Hypot(dx, dy)
	conf := spatialStrength(dist)
	if conf <= 0 {
		return
	}

	switch {
	case math.Abs(dy) >= math.Abs(dx) && dy > 0:
		link(a, b, RelAbove, RelBelow, conf, nil)
	case math.Abs(dy) >= math.Abs(dx):
		link(b, a, RelAbove, RelBelow, conf, nil)
	case dx > 0:
		link(a, b, RelLeftOf, RelRightOf, conf, nil)
	default:
		link(b, a, RelLeftOf, RelRightOf, conf, nil)
	}
}

// spatialStrength is the confidence of a spatial relation between two
// centers dist apart. Coincident centers have no direction and yield 0.
func spatialStrength(dist float64) float64 {
	switch {
	case dist <= 0 || dist >= spatialHorizon:
		return 0
	case dist <= spatialNear:
		return spatialConfidence
	}
	return spatialConfidence * (spatialHorizon - dist) / (spatialHorizon - spatialNear)
}

func relateFunctional(a, b *Component) {
	dist := scene.Distance(
		scene.Point{X: a.BoundingBox.CenterX, Y: a.BoundingBox.CenterY},
		scene.Point{X: b.BoundingBox.CenterX, Y: b.BoundingBox.CenterY},
	)
	if dist > functionalRange {
		return
	}

	switch {
	case a.Role == RoleLabel && b.Role == RoleInputField:
		link(a, b, RelValidates, RelValidatedBy, validatesConfidence, nil)
	case b.Role == RoleLabel && a.Role == RoleInputField:
		link(b, a, RelValidates, RelValidatedBy, validatesConfidence, nil)
	case a.Role == RoleButton && b.Role == RoleInputField:
		addRelationship(a, Relationship{Type: RelTriggers, TargetComponentID: b.ID, Confidence: triggersConfidence})
	case b.Role == RoleButton && a.Role == RoleInputField:
		addRelationship(b, Relationship{Type: RelTriggers, TargetComponentID: a.ID, Confidence: triggersConfidence})
	}
}

// ConnectorRelationships adds flow relations between the components at
// either end of each resolved connector. Arrows give FLOWS_TO/FLOWS_FROM,
// lines give CONNECTED_TO both ways. The connector component id is kept in
// the "via" metadata key.
func ConnectorRelationships(comps []Component, conns []Connector) []Component {
	out := cloneComponents(comps)

	pos := make(map[string]int)
	for i, c := range out {
		for _, id := range c.ElementIDs {
			pos[id] = i
		}
	}

	for _, conn := range conns {
		si, okS := pos[conn.Start.ShapeID]
		ei, okE := pos[conn.End.ShapeID]
		if !okS || !okE || si == ei {
			continue
		}
		meta := map[string]string{}
		if ci, ok := pos[conn.ElementID]; ok {
			meta["via"] = out[ci].ID
		}
		if conn.Label != "" {
			meta["label"] = conn.Label
		}

		conf := math.Min(conn.Confidence, connectionConfidence)
		if conn.Direction == DirectionStartToEnd {
			link(&out[si], &out[ei], RelFlowsTo, RelFlowsFrom, conf, meta)
		} else {
			link(&out[si], &out[ei], RelConnectedTo, RelConnectedTo, conf, meta)
		}
	}
	return out
}

func link(from, to *Component, forward, backward RelationshipType, conf float64, meta map[string]string) {
	addRelationship(from, Relationship{Type: forward, TargetComponentID: to.ID, Confidence: conf, Metadata: copyMeta(meta)})
	addRelationship(to, Relationship{Type: backward, TargetComponentID: from.ID, Confidence: conf, Metadata: copyMeta(meta)})
}

func addRelationship(c *Component, r Relationship) {
	for _, existing := range c.Relationships {
		if existing.Type == r.Type && existing.TargetComponentID == r.TargetComponentID {
			return
		}
	}
	c.Relationships = append(c.Relationships, r)
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneComponents(comps []Component) []Component {
	out := make([]Component, len(comps))
	for i, c := range comps {
		c.ElementIDs = append([]string(nil), c.ElementIDs...)
		c.Relationships = append(make([]Relationship, 0, len(c.Relationships)), c.Relationships...)
		c.Metadata.SemanticHints = append([]string(nil), c.Metadata.SemanticHints...)
		c.Metadata.Layout.ChildIDs = append([]string(nil), c.Metadata.Layout.ChildIDs...)
		out[i] = c
	}
	return out
}
