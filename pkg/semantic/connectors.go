package semantic

import (
	"strings"

	"github.com/athapong/canvas-mcp/pkg/scene"
)

// snapDistance is how close a connector endpoint must be to an attachment
// point to count as touching the shape.
const snapDistance = 15

// Direction of a connector.
type Direction string

const (
	DirectionStartToEnd    Direction = "start-to-end"
	DirectionBidirectional Direction = "bidirectional"
)

// Attachment is one snapped end of a connector.
type Attachment struct {
	ShapeID  string                `json:"shapeId"`
	Point    scene.AttachmentPoint `json:"attachmentPoint"`
	Distance float64               `json:"distance"`
}

// Connector is an arrow or line whose two ends both touch a shape.
type Connector struct {
	ElementID  string      `json:"elementId"`
	Start      *Attachment `json:"startAttachment"`
	End        *Attachment `json:"endAttachment"`
	Direction  Direction   `json:"direction"`
	Label      string      `json:"label,omitempty"`
	Confidence float64     `json:"confidence"`
}

// AnalyzeConnectors resolves arrows and lines to the shapes they link.
//
// Endpoints come from the polyline vertices when there are at least two,
// otherwise from the box (arrows left-mid to right-mid, lines top-left to
// bottom-right). Each end snaps to the nearest attachment point of any
// non-connector shape within snapDistance, free text included. Text bound
// to the connector itself is never a target. Connectors with an unsnapped
// end are dropped.
func AnalyzeConnectors(n *scene.Normalized, atts []TextAttachment) []Connector {
	idx := indexAttachments(atts)

	targets := make([]scene.Element, 0, n.Len())
	for _, el := range n.All {
		if el.Kind.IsConnector() {
			continue
		}
		targets = append(targets, el)
	}

	out := make([]Connector, 0)
	for _, bucket := range [][]scene.Element{n.Arrows, n.Lines} {
		for _, c := range bucket {
			start, end := endpoints(c)

			s := snap(start, targets, c.ID)
			e := snap(end, targets, c.ID)
			if s == nil || e == nil {
				continue
			}

			conn := Connector{
				ElementID:  c.ID,
				Start:      s,
				End:        e,
				Direction:  DirectionBidirectional,
				Label:      connectorLabel(n, idx, c),
				Confidence: 0.8,
			}
			if c.Kind == scene.KindArrow {
				conn.Direction = DirectionStartToEnd
				conn.Confidence = 0.9
			}
			out = append(out, conn)
		}
	}
	return out
}

func endpoints(c scene.Element) (scene.Point, scene.Point) {
	if len(c.Points) >= 2 {
		return c.Points[0], c.Points[len(c.Points)-1]
	}
	b := c.Box
	if c.Kind == scene.KindArrow {
		return scene.Point{X: b.X, Y: b.CenterY}, scene.Point{X: b.Right(), Y: b.CenterY}
	}
	return scene.Point{X: b.X, Y: b.Y}, scene.Point{X: b.Right(), Y: b.Bottom()}
}

func snap(p scene.Point, targets []scene.Element, connectorID string) *Attachment {
	var best *Attachment
	for _, t := range targets {
		if t.ContainerID == connectorID {
			continue
		}
		for _, ap := range t.Box.AttachmentPoints() {
			d := scene.Distance(p, ap.Point)
			if d > snapDistance {
				continue
			}
			if best == nil || d < best.Distance {
				best = &Attachment{ShapeID: t.ID, Point: ap.Name, Distance: d}
			}
		}
	}
	return best
}

func connectorLabel(n *scene.Normalized, idx attachmentIndex, c scene.Element) string {
	parts := make([]string, 0)
	for _, a := range idx.byTarget[c.ID] {
		if a.Type != AttachAnnotation {
			continue
		}
		if t, ok := n.Get(a.TextID); ok && strings.TrimSpace(t.Text) != "" {
			parts = append(parts, strings.TrimSpace(t.Text))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	return strings.TrimSpace(c.Text)
}

// endpointShapes returns the ids of shapes touched by any connector.
func endpointShapes(conns []Connector) map[string]bool {
	out := make(map[string]bool, len(conns)*2)
	for _, c := range conns {
		out[c.Start.ShapeID] = true
		out[c.End.ShapeID] = true
	}
	return out
}
