package scene

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseElementsJSON reads shapes from loosely structured JSON.
//
// Accepted layouts are a bare array of element objects or an object with an
// "elements" array (Excalidraw scene files). Field names follow the
// Excalidraw element schema; "kind" is accepted as an alias for "type".
// Deleted elements are dropped. Missing or mistyped optional fields are
// left absent so Normalize applies its defaults.
func ParseElementsJSON(data []byte) ([]RawShape, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid elements JSON")
	}

	root := gjson.ParseBytes(data)
	list := root
	if root.IsObject() {
		list = root.Get("elements")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("elements JSON must be an array or contain an \"elements\" array")
	}

	shapes := make([]RawShape, 0)
	var parseErr error
	list.ForEach(func(_, el gjson.Result) bool {
		if !el.IsObject() {
			parseErr = fmt.Errorf("element %d is not an object", len(shapes))
			return false
		}
		if el.Get("isDeleted").Bool() {
			return true
		}
		shapes = append(shapes, parseElement(el, len(shapes)))
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return shapes, nil
}

func parseElement(el gjson.Result, position int) RawShape {
	kind := el.Get("type")
	if !kind.Exists() {
		kind = el.Get("kind")
	}

	id := el.Get("id").String()
	if id == "" {
		id = fmt.Sprintf("element-%d", position)
	}

	s := RawShape{
		ID:   id,
		Kind: ParseKind(kind.String()),
		Geometry: Geometry{
			X:      el.Get("x").Float(),
			Y:      el.Get("y").Float(),
			Width:  el.Get("width").Float(),
			Height: el.Get("height").Float(),
			Angle:  el.Get("angle").Float(),
		},
		Text:        el.Get("text").String(),
		ContainerID: el.Get("containerId").String(),
	}

	style := el
	if st := el.Get("style"); st.IsObject() {
		style = st
	}
	s.Style = RawStyle{
		BackgroundColor: style.Get("backgroundColor").String(),
		StrokeColor:     style.Get("strokeColor").String(),
		StrokeWidth:     optionalNumber(style.Get("strokeWidth")),
		FontSize:        optionalNumber(style.Get("fontSize")),
		Roundness:       roundness(style.Get("roundness")),
		Opacity:         opacity(style.Get("opacity")),
	}

	if g := el.Get("groupId"); g.Exists() && g.String() != "" {
		s.GroupID = g.String()
	} else if groups := el.Get("groupIds").Array(); len(groups) > 0 {
		// Excalidraw lists groups innermost first; the outermost is the
		// grouping the user sees.
		s.GroupID = groups[len(groups)-1].String()
	}

	for _, p := range el.Get("points").Array() {
		if pair := p.Array(); len(pair) >= 2 {
			s.Points = append(s.Points, Point{X: pair[0].Float(), Y: pair[1].Float()})
		} else if p.IsObject() {
			s.Points = append(s.Points, Point{X: p.Get("x").Float(), Y: p.Get("y").Float()})
		}
	}

	return s
}

func optionalNumber(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

// roundness accepts a number, a boolean or an Excalidraw {"type": n} object.
func roundness(r gjson.Result) *float64 {
	switch {
	case r.Type == gjson.Number:
		v := r.Float()
		return &v
	case r.Type == gjson.True:
		v := 1.0
		return &v
	case r.IsObject():
		v := r.Get("type").Float()
		if v == 0 {
			v = 1
		}
		return &v
	}
	return nil
}

// opacity accepts 0–1 or the 0–100 scale Excalidraw stores.
func opacity(r gjson.Result) *float64 {
	v := optionalNumber(r)
	if v != nil && *v > 1 {
		scaled := *v / 100
		return &scaled
	}
	return v
}
