package scene

import "strings"

// Kind is the closed set of primitive families the pipeline understands.
type Kind string

const (
	KindRectangle Kind = "rectangle"
	KindDiamond   Kind = "diamond"
	KindEllipse   Kind = "ellipse"
	KindArrow     Kind = "arrow"
	KindLine      Kind = "line"
	KindText      Kind = "text"
	KindImage     Kind = "image"
	KindOther     Kind = "other"
)

// ParseKind maps a free-form type string onto a Kind. Anything unknown
// (freedraw, frame, embeddable...) becomes KindOther.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rectangle", "rect":
		return KindRectangle
	case "diamond":
		return KindDiamond
	case "ellipse", "circle":
		return KindEllipse
	case "arrow":
		return KindArrow
	case "line", "polyline":
		return KindLine
	case "text":
		return KindText
	case "image":
		return KindImage
	default:
		return KindOther
	}
}

// IsConnector reports whether shapes of this kind link other shapes.
func (k Kind) IsConnector() bool {
	return k == KindArrow || k == KindLine
}

// Point is a 2D coordinate in canvas units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry is the position, size and rotation shared by every shape.
// Angle is in radians, clockwise, around the shape center.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Angle  float64 `json:"angle"`
}

// RawStyle holds the style attributes as supplied. Nil means absent.
type RawStyle struct {
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	StrokeColor     string   `json:"strokeColor,omitempty"`
	StrokeWidth     *float64 `json:"strokeWidth,omitempty"`
	Roundness       *float64 `json:"roundness,omitempty"`
	FontSize        *float64 `json:"fontSize,omitempty"`
	Opacity         *float64 `json:"opacity,omitempty"`
}

// RawShape is one drawn primitive as received from the canvas.
type RawShape struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Geometry
	Style RawStyle `json:"style"`
	Text  string   `json:"text,omitempty"`

	// GroupID names the native multi-element grouping the shape belongs to.
	GroupID string `json:"groupId,omitempty"`

	// ContainerID is set on bound text: the id of the shape that owns it.
	ContainerID string `json:"containerId,omitempty"`

	// Points are polyline vertices relative to (X, Y). Only meaningful
	// for arrows and lines.
	Points []Point `json:"points,omitempty"`
}

// Viewport is the visible canvas region at extraction time.
type Viewport struct {
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	MaxX   float64 `json:"maxX"`
	MaxY   float64 `json:"maxY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style is the resolved style with defaults applied.
type Style struct {
	BackgroundColor string  `json:"backgroundColor"`
	StrokeColor     string  `json:"strokeColor"`
	StrokeWidth     float64 `json:"strokeWidth"`
	Roundness       float64 `json:"roundness"`
	FontSize        float64 `json:"fontSize"`
	Opacity         float64 `json:"opacity"`
}

// Rounded reports whether the shape has rounded corners.
func (s Style) Rounded() bool { return s.Roundness > 0 }

const (
	DefaultBackgroundColor = "transparent"
	DefaultStrokeColor     = "#000000"
	DefaultStrokeWidth     = 1.0
	DefaultRoundness       = 0.0
	DefaultFontSize        = 16.0
	DefaultOpacity         = 1.0
)
