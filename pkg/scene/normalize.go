package scene

import "math"

// Element is a RawShape after normalization: rotation-corrected box,
// resolved style and a stable z-order index.
type Element struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Box         BoundingBox `json:"boundingBox"`
	Style       Style       `json:"style"`
	Text        string      `json:"text,omitempty"`
	ZIndex      int         `json:"zIndex"`
	Angle       float64     `json:"angle"`
	GroupID     string      `json:"groupId,omitempty"`
	ContainerID string      `json:"containerId,omitempty"`

	// Points are absolute polyline vertices for connectors.
	Points []Point `json:"points,omitempty"`
}

// Normalized is the output of Normalize. It is never mutated after
// construction; accessors return copies or read-only views.
type Normalized struct {
	Rectangles []Element
	Diamonds   []Element
	Ellipses   []Element
	Arrows     []Element
	Lines      []Element
	Texts      []Element
	Images     []Element
	Others     []Element

	// All holds every accepted element in source order.
	All []Element

	// Skipped lists ids of shapes rejected for non-finite geometry.
	Skipped []string

	index map[string]int
}

// Get looks an element up by id.
func (n *Normalized) Get(id string) (Element, bool) {
	i, ok := n.index[id]
	if !ok {
		return Element{}, false
	}
	return n.All[i], true
}

// Len is the number of accepted elements.
func (n *Normalized) Len() int { return len(n.All) }

// Normalize converts raw shapes into the uniform Element representation.
//
// Absent style fields take their defaults. Shapes with NaN or infinite
// geometry are skipped and listed in Skipped; negative sizes are flipped so
// the box keeps its on-canvas extent. ZIndex is the position in shapes.
func Normalize(shapes []RawShape) *Normalized {
	n := &Normalized{
		All:   make([]Element, 0, len(shapes)),
		index: make(map[string]int, len(shapes)),
	}

	for i, s := range shapes {
		if !finiteGeometry(s.Geometry) {
			n.Skipped = append(n.Skipped, s.ID)
			continue
		}

		x, w := flip(s.X, s.Width)
		y, h := flip(s.Y, s.Height)

		el := Element{
			ID:          s.ID,
			Kind:        s.Kind,
			Box:         RotatedBounds(x, y, w, h, s.Angle),
			Style:       resolveStyle(s.Style),
			Text:        s.Text,
			ZIndex:      i,
			Angle:       s.Angle,
			GroupID:     s.GroupID,
			ContainerID: s.ContainerID,
		}
		if el.Kind == "" {
			el.Kind = KindOther
		}
		if len(s.Points) > 0 {
			el.Points = make([]Point, 0, len(s.Points))
			for _, p := range s.Points {
				if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
					continue
				}
				el.Points = append(el.Points, Point{X: s.X + p.X, Y: s.Y + p.Y})
			}
		}

		if _, dup := n.index[el.ID]; !dup {
			n.index[el.ID] = len(n.All)
		}
		n.All = append(n.All, el)

		switch el.Kind {
		case KindRectangle:
			n.Rectangles = append(n.Rectangles, el)
		case KindDiamond:
			n.Diamonds = append(n.Diamonds, el)
		case KindEllipse:
			n.Ellipses = append(n.Ellipses, el)
		case KindArrow:
			n.Arrows = append(n.Arrows, el)
		case KindLine:
			n.Lines = append(n.Lines, el)
		case KindText:
			n.Texts = append(n.Texts, el)
		case KindImage:
			n.Images = append(n.Images, el)
		default:
			n.Others = append(n.Others, el)
		}
	}

	return n
}

func finiteGeometry(g Geometry) bool {
	for _, v := range [...]float64{g.X, g.Y, g.Width, g.Height, g.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func flip(pos, size float64) (float64, float64) {
	if size < 0 {
		return pos + size, -size
	}
	return pos, size
}

func resolveStyle(r RawStyle) Style {
	s := Style{
		BackgroundColor: DefaultBackgroundColor,
		StrokeColor:     DefaultStrokeColor,
		StrokeWidth:     DefaultStrokeWidth,
		Roundness:       DefaultRoundness,
		FontSize:        DefaultFontSize,
		Opacity:         DefaultOpacity,
	}
	if r.BackgroundColor != "" {
		s.BackgroundColor = r.BackgroundColor
	}
	if r.StrokeColor != "" {
		s.StrokeColor = r.StrokeColor
	}
	if r.StrokeWidth != nil {
		s.StrokeWidth = *r.StrokeWidth
	}
	if r.Roundness != nil {
		s.Roundness = *r.Roundness
	}
	if r.FontSize != nil {
		s.FontSize = *r.FontSize
	}
	if r.Opacity != nil {
		s.Opacity = *r.Opacity
	}
	return s
}
