package semantic

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/athapong/canvas-mcp/pkg/scene"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	buttonMaxText     = 50
	buttonMinAspect   = 1.5
	buttonMaxAspect   = 6.0
	squareMinAspect   = 0.8
	squareMaxAspect   = 1.2
	radioMaxArea      = 2000
	databaseMinArea   = 10000
	largeContainerMin = 20000

	// HintDatabaseLike marks rectangles that look like a data store. There
	// is no dedicated role for them.
	HintDatabaseLike = "database-like"
)

var (
	databaseKeywords = mapset.NewSet[string]("database", "db")
	tokenPattern     = regexp.MustCompile(`[a-z0-9]+`)
)

// RoleAssignment is the classifier's verdict for one element.
type RoleAssignment struct {
	ElementID  string   `json:"elementId"`
	Role       Role     `json:"role"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}

// ClassifyRoles assigns a role to every non-decorative element and every
// resolved connector. Rules within a family are checked in priority order
// and the first match wins.
func ClassifyRoles(n *scene.Normalized, h *Hierarchy, atts []TextAttachment, conns []Connector) []RoleAssignment {
	idx := indexAttachments(atts)
	connected := endpointShapes(conns)
	resolved := make(map[string]Connector, len(conns))
	for _, c := range conns {
		resolved[c.ElementID] = c
	}

	out := make([]RoleAssignment, 0, n.Len())
	for _, el := range n.All {
		if decorative(el) {
			continue
		}

		var ra RoleAssignment
		switch el.Kind {
		case scene.KindDiamond:
			ra = assign(el, RoleDecisionPoint, 0.95, "diamond shape")
		case scene.KindEllipse:
			ra = classifyEllipse(el)
		case scene.KindRectangle:
			ra = classifyRectangle(el, elementText(n, idx, el), len(h.Children[el.ID]), connected[el.ID])
		case scene.KindText:
			ra = classifyText(el, idx.byText[el.ID])
		case scene.KindImage:
			ra = assign(el, RoleImagePlaceholder, 1.0, "image element")
		case scene.KindArrow, scene.KindLine:
			c, ok := resolved[el.ID]
			if !ok {
				continue
			}
			ra = assign(el, RoleConnector, c.Confidence,
				fmt.Sprintf("%s from %s to %s", c.Direction, c.Start.ShapeID, c.End.ShapeID))
		default:
			continue
		}
		out = append(out, ra)
	}
	return out
}

func decorative(el scene.Element) bool {
	if el.Kind == scene.KindOther || el.Kind == "" {
		return true
	}
	if el.Kind == scene.KindText && strings.TrimSpace(el.Text) == "" {
		return true
	}
	return el.Style.Opacity <= 0
}

func assign(el scene.Element, role Role, confidence float64, reasons ...string) RoleAssignment {
	return RoleAssignment{ElementID: el.ID, Role: role, Confidence: confidence, Reasoning: reasons}
}

func nearSquare(aspect float64) bool {
	return aspect >= squareMinAspect && aspect <= squareMaxAspect
}

func classifyEllipse(el scene.Element) RoleAssignment {
	aspect := el.Box.AspectRatio()
	switch {
	case nearSquare(aspect) && el.Box.Area < radioMaxArea:
		return assign(el, RoleRadioButton, 0.7, "small near-circular ellipse")
	case nearSquare(aspect):
		return assign(el, RoleIcon, 0.6, "near-circular ellipse")
	}
	return assign(el, RoleComponent, 0.5, "elongated ellipse")
}

func classifyRectangle(el scene.Element, text string, children int, connected bool) RoleAssignment {
	aspect := el.Box.AspectRatio()
	rounded := el.Style.Rounded()
	textLen := utf8.RuneCountInString(text)

	if rounded && textLen > 0 && textLen < buttonMaxText && aspect >= buttonMinAspect && aspect <= buttonMaxAspect {
		return assign(el, RoleButton, 0.9,
			"rounded corners", fmt.Sprintf("short label (%d chars)", textLen), fmt.Sprintf("aspect ratio %.2f", aspect))
	}
	if children > 1 && textLen > 0 {
		return assign(el, RoleCard, 0.7, fmt.Sprintf("container with %d children", children), "has text")
	}
	if connected && rounded {
		return assign(el, RoleProcessStep, 0.8, "connector endpoint", "rounded corners")
	}
	if nearSquare(aspect) && el.Box.Area > databaseMinArea && hasKeyword(text, databaseKeywords) {
		ra := assign(el, RoleUnknown, 0.85, "large near-square shape", "database keyword in text")
		ra.Reasoning = append(ra.Reasoning, HintDatabaseLike)
		return ra
	}
	if children >= 1 {
		return assign(el, RoleContainer, 0.8, fmt.Sprintf("container with %d children", children))
	}
	if el.Box.Area > largeContainerMin {
		return assign(el, RoleContainer, 0.6, "large area")
	}
	return assign(el, RoleComponent, 0.3, "no specific rule matched")
}

func classifyText(el scene.Element, a TextAttachment) RoleAssignment {
	switch a.Type {
	case AttachTitle:
		return assign(el, RoleTitle, 0.9, "title of "+a.AttachedTo)
	case AttachBody:
		return assign(el, RoleTextBlock, 0.8, "body text of "+a.AttachedTo)
	case AttachAnnotation:
		return assign(el, RoleLabel, 0.8, "annotation on "+a.AttachedTo)
	}
	return assign(el, RoleTextBlock, 1.0, "standalone text")
}

func hasKeyword(text string, keywords mapset.Set[string]) bool {
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if keywords.Contains(tok) {
			return true
		}
	}
	return false
}

// elementText is the element's own text or, failing that, the text of the
// title and body elements attached to it.
func elementText(n *scene.Normalized, idx attachmentIndex, el scene.Element) string {
	if t := strings.TrimSpace(el.Text); t != "" {
		return t
	}
	parts := make([]string, 0)
	for _, a := range idx.byTarget[el.ID] {
		if a.Type != AttachTitle && a.Type != AttachBody {
			continue
		}
		if t, ok := n.Get(a.TextID); ok {
			if s := strings.TrimSpace(t.Text); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}
