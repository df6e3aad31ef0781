package scene

import "math"

// BoundingBox is an axis-aligned box with precomputed center and area.
type BoundingBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Area    float64 `json:"area"`
}

// NewBoundingBox builds a box from its top-left corner and size.
func NewBoundingBox(x, y, width, height float64) BoundingBox {
	return BoundingBox{
		X:       x,
		Y:       y,
		Width:   width,
		Height:  height,
		CenterX: x + width/2,
		CenterY: y + height/2,
		Area:    width * height,
	}
}

// Right is the x coordinate of the right edge.
func (b BoundingBox) Right() float64 { return b.X + b.Width }

// Bottom is the y coordinate of the bottom edge.
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// AspectRatio is width over height, or 0 for a zero-height box.
func (b BoundingBox) AspectRatio() float64 {
	if b.Height == 0 {
		return 0
	}
	return b.Width / b.Height
}

// ContainsPoint reports whether (x, y) lies within the box, edges included.
func (b BoundingBox) ContainsPoint(x, y float64) bool {
	return x >= b.X && x <= b.Right() && y >= b.Y && y <= b.Bottom()
}

// Encloses reports whether o lies entirely within b.
func (b BoundingBox) Encloses(o BoundingBox) bool {
	return o.X >= b.X && o.Y >= b.Y && o.Right() <= b.Right() && o.Bottom() <= b.Bottom()
}

// OverlapArea is the area of the intersection of b and o.
func (b BoundingBox) OverlapArea(o BoundingBox) float64 {
	w := math.Min(b.Right(), o.Right()) - math.Max(b.X, o.X)
	h := math.Min(b.Bottom(), o.Bottom()) - math.Max(b.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// HorizontalOverlap is the length of the shared x-interval of b and o.
func (b BoundingBox) HorizontalOverlap(o BoundingBox) float64 {
	w := math.Min(b.Right(), o.Right()) - math.Max(b.X, o.X)
	if w < 0 {
		return 0
	}
	return w
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	x := math.Min(b.X, o.X)
	y := math.Min(b.Y, o.Y)
	return NewBoundingBox(x, y, math.Max(b.Right(), o.Right())-x, math.Max(b.Bottom(), o.Bottom())-y)
}

// Distance is the euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// AttachmentPoint is one of the eight canonical snap positions on a box.
type AttachmentPoint string

const (
	AttachCenter      AttachmentPoint = "center"
	AttachTop         AttachmentPoint = "top"
	AttachRight       AttachmentPoint = "right"
	AttachBottom      AttachmentPoint = "bottom"
	AttachLeft        AttachmentPoint = "left"
	AttachTopLeft     AttachmentPoint = "top-left"
	AttachTopRight    AttachmentPoint = "top-right"
	AttachBottomLeft  AttachmentPoint = "bottom-left"
	AttachBottomRight AttachmentPoint = "bottom-right"
)

// NamedPoint pairs an attachment position with its coordinate.
type NamedPoint struct {
	Name  AttachmentPoint
	Point Point
}

// AttachmentPoints returns the center, the four edge midpoints and the
// four corners of the box, in that order.
func (b BoundingBox) AttachmentPoints() []NamedPoint {
	return []NamedPoint{
		{AttachCenter, Point{b.CenterX, b.CenterY}},
		{AttachTop, Point{b.CenterX, b.Y}},
		{AttachRight, Point{b.Right(), b.CenterY}},
		{AttachBottom, Point{b.CenterX, b.Bottom()}},
		{AttachLeft, Point{b.X, b.CenterY}},
		{AttachTopLeft, Point{b.X, b.Y}},
		{AttachTopRight, Point{b.Right(), b.Y}},
		{AttachBottomLeft, Point{b.X, b.Bottom()}},
		{AttachBottomRight, Point{b.Right(), b.Bottom()}},
	}
}

// rotationEpsilon snaps sin/cos values this close to zero so that right
// angles produce exact boxes.
const rotationEpsilon = 1e-9

// RotatedBounds computes the axis-aligned box occupied by a w×h box at
// (x, y) rotated by angle radians around its own center.
//
// The four corners are rotated and the min/max extents taken, so the
// result is never smaller than the unrotated box and equals it at
// multiples of 90°.
func RotatedBounds(x, y, w, h, angle float64) BoundingBox {
	if angle == 0 {
		return NewBoundingBox(x, y, w, h)
	}

	cos := math.Cos(angle)
	sin := math.Sin(angle)
	if math.Abs(cos) < rotationEpsilon {
		cos = 0
	}
	if math.Abs(sin) < rotationEpsilon {
		sin = 0
	}

	cx := x + w/2
	cy := y + h/2
	corners := [4]Point{
		{-w / 2, -h / 2},
		{w / 2, -h / 2},
		{w / 2, h / 2},
		{-w / 2, h / 2},
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		rx := c.X*cos - c.Y*sin
		ry := c.X*sin + c.Y*cos
		minX = math.Min(minX, rx)
		maxX = math.Max(maxX, rx)
		minY = math.Min(minY, ry)
		maxY = math.Max(maxY, ry)
	}

	return NewBoundingBox(cx+minX, cy+minY, maxX-minX, maxY-minY)
}
