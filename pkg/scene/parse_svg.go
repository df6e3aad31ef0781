package scene

import (
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	rotatePattern = regexp.MustCompile(`rotate\(\s*(-?[\d.]+)`)
	numberPattern = regexp.MustCompile(`-?\d*\.?\d+(?:e-?\d+)?`)
)

// svgCharWidth approximates glyph advance as a fraction of font size,
// since SVG text carries no measured width.
const svgCharWidth = 0.6

// ParseSVG converts the primitives of an SVG document into raw shapes.
//
// Supported elements: rect, circle, ellipse, line, polyline, polygon, text
// and image. Lines and polylines with a marker-end become arrows; a
// four-point polygon whose vertices sit on its box edge midpoints becomes a
// diamond. The id of the nearest enclosing <g> is used as the group id.
func ParseSVG(r io.Reader) ([]RawShape, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}

	shapes := make([]RawShape, 0)
	doc.Find("rect, circle, ellipse, line, polyline, polygon, text, image").Each(func(i int, sel *goquery.Selection) {
		shape, ok := svgShape(sel)
		if !ok {
			return
		}
		if shape.ID == "" {
			shape.ID = fmt.Sprintf("svg-%d", i)
		}
		if g := sel.ParentsFiltered("g[id]").First(); g.Length() > 0 {
			shape.GroupID, _ = g.Attr("id")
		}
		shapes = append(shapes, shape)
	})

	return shapes, nil
}

func svgShape(sel *goquery.Selection) (RawShape, bool) {
	id, _ := sel.Attr("id")
	s := RawShape{ID: id, Style: svgStyle(sel)}
	s.Angle = svgRotation(sel)

	switch goquery.NodeName(sel) {
	case "rect":
		s.Kind = KindRectangle
		s.X, s.Y = attrFloat(sel, "x"), attrFloat(sel, "y")
		s.Width, s.Height = attrFloat(sel, "width"), attrFloat(sel, "height")
		if rx := attrFloat(sel, "rx"); rx > 0 {
			s.Style.Roundness = &rx
		}
	case "circle":
		r := attrFloat(sel, "r")
		s.Kind = KindEllipse
		s.X, s.Y = attrFloat(sel, "cx")-r, attrFloat(sel, "cy")-r
		s.Width, s.Height = 2*r, 2*r
	case "ellipse":
		rx, ry := attrFloat(sel, "rx"), attrFloat(sel, "ry")
		s.Kind = KindEllipse
		s.X, s.Y = attrFloat(sel, "cx")-rx, attrFloat(sel, "cy")-ry
		s.Width, s.Height = 2*rx, 2*ry
	case "line":
		pts := []Point{
			{attrFloat(sel, "x1"), attrFloat(sel, "y1")},
			{attrFloat(sel, "x2"), attrFloat(sel, "y2")},
		}
		s.Kind = connectorKind(sel)
		setPolyline(&s, pts)
	case "polyline":
		pts := parsePoints(sel.AttrOr("points", ""))
		if len(pts) < 2 {
			return s, false
		}
		s.Kind = connectorKind(sel)
		setPolyline(&s, pts)
	case "polygon":
		pts := parsePoints(sel.AttrOr("points", ""))
		if len(pts) < 3 {
			return s, false
		}
		box := pointsBox(pts)
		s.X, s.Y, s.Width, s.Height = box.X, box.Y, box.Width, box.Height
		s.Kind = KindOther
		if isDiamond(pts, box) {
			s.Kind = KindDiamond
		}
	case "text":
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return s, false
		}
		size := DefaultFontSize
		if s.Style.FontSize != nil {
			size = *s.Style.FontSize
		}
		width := float64(len([]rune(text))) * size * svgCharWidth
		s.Kind = KindText
		s.Text = text
		s.X, s.Y = attrFloat(sel, "x"), attrFloat(sel, "y")-size
		s.Width, s.Height = width, size*1.2
		switch sel.AttrOr("text-anchor", "") {
		case "middle":
			s.X -= width / 2
		case "end":
			s.X -= width
		}
	case "image":
		s.Kind = KindImage
		s.X, s.Y = attrFloat(sel, "x"), attrFloat(sel, "y")
		s.Width, s.Height = attrFloat(sel, "width"), attrFloat(sel, "height")
	default:
		return s, false
	}

	return s, true
}

func svgStyle(sel *goquery.Selection) RawStyle {
	st := RawStyle{}
	if fill := sel.AttrOr("fill", ""); fill != "" && fill != "none" {
		st.BackgroundColor = fill
	}
	if stroke := sel.AttrOr("stroke", ""); stroke != "" && stroke != "none" {
		st.StrokeColor = stroke
	}
	if v, ok := optionalAttr(sel, "stroke-width"); ok {
		st.StrokeWidth = &v
	}
	if v, ok := optionalAttr(sel, "font-size"); ok {
		st.FontSize = &v
	}
	if v, ok := optionalAttr(sel, "opacity"); ok {
		st.Opacity = &v
	}
	return st
}

func svgRotation(sel *goquery.Selection) float64 {
	m := rotatePattern.FindStringSubmatch(sel.AttrOr("transform", ""))
	if m == nil {
		return 0
	}
	deg, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return deg * math.Pi / 180
}

func connectorKind(sel *goquery.Selection) Kind {
	if _, ok := sel.Attr("marker-end"); ok {
		return KindArrow
	}
	if _, ok := sel.Attr("marker-start"); ok {
		return KindArrow
	}
	return KindLine
}

func setPolyline(s *RawShape, pts []Point) {
	box := pointsBox(pts)
	s.X, s.Y, s.Width, s.Height = box.X, box.Y, box.Width, box.Height
	s.Points = make([]Point, len(pts))
	for i, p := range pts {
		s.Points[i] = Point{X: p.X - box.X, Y: p.Y - box.Y}
	}
}

func pointsBox(pts []Point) BoundingBox {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return NewBoundingBox(minX, minY, maxX-minX, maxY-minY)
}

func isDiamond(pts []Point, box BoundingBox) bool {
	if len(pts) != 4 {
		return false
	}
	tol := math.Max(box.Width, box.Height) * 0.05
	mids := []Point{
		{box.CenterX, box.Y},
		{box.Right(), box.CenterY},
		{box.CenterX, box.Bottom()},
		{box.X, box.CenterY},
	}
	for _, m := range mids {
		found := false
		for _, p := range pts {
			if Distance(p, m) <= tol {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func parsePoints(raw string) []Point {
	nums := numberPattern.FindAllString(raw, -1)
	pts := make([]Point, 0, len(nums)/2)
	for i := 0; i+1 < len(nums); i += 2 {
		x, errX := strconv.ParseFloat(nums[i], 64)
		y, errY := strconv.ParseFloat(nums[i+1], 64)
		if errX != nil || errY != nil {
			continue
		}
		pts = append(pts, Point{x, y})
	}
	return pts
}

func attrFloat(sel *goquery.Selection, name string) float64 {
	v, _ := optionalAttr(sel, name)
	return v
}

func optionalAttr(sel *goquery.Selection, name string) (float64, bool) {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0, false
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
