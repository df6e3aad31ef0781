package semantic

import (
	"github.com/athapong/canvas-mcp/pkg/scene"
)

// AttachmentType says how a text element relates to the shape it labels.
type AttachmentType string

const (
	AttachTitle      AttachmentType = "title"
	AttachBody       AttachmentType = "body"
	AttachAnnotation AttachmentType = "annotation"
	AttachStandalone AttachmentType = "standalone"
)

const (
	// titleBand is the top share of a parent's height where text reads as
	// a title.
	titleBand = 0.3

	// titleFontSize is the baseline above which contained text is a title.
	titleFontSize = scene.DefaultFontSize

	// maxTitleGap is the vertical gap allowed between a shape and the text
	// positioned right under it.
	maxTitleGap = 20

	// minTitleOverlap is the share of the text width that must overlap the
	// shape horizontally.
	minTitleOverlap = 0.5
)

// TextAttachment records the shape a text element belongs to.
// AttachedTo is empty exactly when Type is standalone.
type TextAttachment struct {
	TextID     string         `json:"textId"`
	AttachedTo string         `json:"attachedTo,omitempty"`
	Type       AttachmentType `json:"type"`
	Confidence float64        `json:"confidence"`
}

// AttachText produces one attachment per text element, in source order.
//
// Rules, first match wins:
//  1. text bound to a shape through its container id (0.95);
//  2. text inside a container: title in the top 30% of the parent or when
//     larger than the base font size, body otherwise (0.9);
//  3. text right below a shape, within 20 units and overlapping more than
//     half of its width: title (0.8);
//  4. standalone (1.0).
func AttachText(n *scene.Normalized, h *Hierarchy) []TextAttachment {
	out := make([]TextAttachment, 0, len(n.Texts))

	for _, t := range n.Texts {
		if a, ok := boundAttachment(n, t); ok {
			out = append(out, a)
			continue
		}

		if parent, ok := h.Parent(t.ID); ok {
			target, box := resolveParent(n, h, t, parent)
			out = append(out, TextAttachment{
				TextID:     t.ID,
				AttachedTo: target,
				Type:       titleOrBody(t, box),
				Confidence: 0.9,
			})
			continue
		}

		if target, ok := shapeAbove(n, t); ok {
			out = append(out, TextAttachment{
				TextID:     t.ID,
				AttachedTo: target,
				Type:       AttachTitle,
				Confidence: 0.8,
			})
			continue
		}

		out = append(out, TextAttachment{TextID: t.ID, Type: AttachStandalone, Confidence: 1.0})
	}

	return out
}

func boundAttachment(n *scene.Normalized, t scene.Element) (TextAttachment, bool) {
	if t.ContainerID == "" || t.ContainerID == t.ID {
		return TextAttachment{}, false
	}
	owner, ok := n.Get(t.ContainerID)
	if !ok || owner.Kind == scene.KindText {
		return TextAttachment{}, false
	}

	a := TextAttachment{TextID: t.ID, AttachedTo: owner.ID, Confidence: 0.95}
	if owner.Kind.IsConnector() {
		a.Type = AttachAnnotation
	} else {
		a.Type = titleOrBody(t, owner.Box)
	}
	return a, true
}

// resolveParent maps a group parent onto the smallest non-text member
// holding the text; element parents are returned as is.
func resolveParent(n *scene.Normalized, h *Hierarchy, t scene.Element, parent string) (string, scene.BoundingBox) {
	if !IsGroupKey(parent) {
		el, _ := n.Get(parent)
		return parent, el.Box
	}

	best := ""
	var bestBox scene.BoundingBox
	for _, id := range h.Children[parent] {
		el, ok := n.Get(id)
		if !ok || el.Kind == scene.KindText || el.Kind.IsConnector() {
			continue
		}
		if !el.Box.ContainsPoint(t.Box.CenterX, t.Box.CenterY) {
			continue
		}
		if best == "" || el.Box.Area < bestBox.Area {
			best, bestBox = el.ID, el.Box
		}
	}
	if best != "" {
		return best, bestBox
	}
	return parent, h.GroupBoxes[parent]
}

func titleOrBody(t scene.Element, parent scene.BoundingBox) AttachmentType {
	if t.Style.FontSize > titleFontSize {
		return AttachTitle
	}
	if parent.Height > 0 && t.Box.CenterY <= parent.Y+titleBand*parent.Height {
		return AttachTitle
	}
	return AttachBody
}

func shapeAbove(n *scene.Normalized, t scene.Element) (string, bool) {
	best := ""
	bestGap := 0.0
	for _, el := range n.All {
		if el.Kind == scene.KindText || el.ID == t.ID {
			continue
		}
		gap := t.Box.Y - el.Box.Bottom()
		if gap < 0 || gap > maxTitleGap {
			continue
		}
		if t.Box.Width <= 0 || el.Box.HorizontalOverlap(t.Box) <= minTitleOverlap*t.Box.Width {
			continue
		}
		if best == "" || gap < bestGap {
			best, bestGap = el.ID, gap
		}
	}
	return best, best != ""
}

// attachmentIndex gives per-text and per-target lookups over attachments.
type attachmentIndex struct {
	byText   map[string]TextAttachment
	byTarget map[string][]TextAttachment
}

func indexAttachments(atts []TextAttachment) attachmentIndex {
	idx := attachmentIndex{
		byText:   make(map[string]TextAttachment, len(atts)),
		byTarget: make(map[string][]TextAttachment),
	}
	for _, a := range atts {
		idx.byText[a.TextID] = a
		if a.AttachedTo != "" {
			idx.byTarget[a.AttachedTo] = append(idx.byTarget[a.AttachedTo], a)
		}
	}
	return idx
}
