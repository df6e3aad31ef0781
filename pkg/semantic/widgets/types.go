package widgets

import (
	"strings"
	"time"
)

// Type identifies the kind of embedded content a widget stands in for.
type Type string

const (
	TypeMap      Type = "map"
	TypeVideo    Type = "video"
	TypeIFrame   Type = "iframe"
	TypeChart    Type = "chart"
	TypeCalendar Type = "calendar"
)

// SupportedTypes lists every widget type in detection-table order.
func SupportedTypes() []Type {
	return []Type{TypeMap, TypeVideo, TypeIFrame, TypeChart, TypeCalendar}
}

// Valid reports whether t is one of the supported widget types.
func (t Type) Valid() bool {
	for _, s := range SupportedTypes() {
		if t == s {
			return true
		}
	}
	return false
}

// Label is the human readable type name used as a fallback title.
func (t Type) Label() string {
	switch t {
	case TypeIFrame:
		return "IFrame"
	case "":
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

const (
	DefaultMapLatitude  = 37.7749
	DefaultMapLongitude = -122.4194
	DefaultMapZoom      = 10
	DefaultMapStyle     = "roadmap"

	DefaultVideoProvider    = "unknown"
	DefaultVideoAspectRatio = 16.0 / 9.0

	DefaultChartType    = "bar"
	DefaultCalendarView = "month"
)

// Map center provenance.
const (
	CenterDefault  = "default"
	CenterText     = "text"
	CenterGeocoded = "geocoded"
)

// MapConfig configures a map placeholder.
type MapConfig struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Zoom         int     `json:"zoom"`
	Style        string  `json:"style"`
	Query        string  `json:"query,omitempty"`
	CenterSource string  `json:"centerSource"`
}

// VideoConfig configures a video placeholder.
type VideoConfig struct {
	URL         string  `json:"url"`
	Provider    string  `json:"provider"`
	Autoplay    bool    `json:"autoplay"`
	Muted       bool    `json:"muted"`
	Loop        bool    `json:"loop"`
	Controls    bool    `json:"controls"`
	AspectRatio float64 `json:"aspectRatio"`
}

// IFrameConfig configures an embedded page.
type IFrameConfig struct {
	URL             string `json:"url"`
	Sandbox         bool   `json:"sandbox"`
	AllowFullscreen bool   `json:"allowFullscreen"`
}

// ChartConfig configures a chart placeholder.
type ChartConfig struct {
	ChartType  string `json:"chartType"`
	DataSource string `json:"dataSource,omitempty"`
}

// CalendarConfig configures a calendar placeholder.
type CalendarConfig struct {
	View         string `json:"view"`
	ShowWeekends bool   `json:"showWeekends"`
}

// Metadata is the record kept for one widget. Exactly one of the config
// pointers is set, the one matching Type.
type Metadata struct {
	ElementID   string    `json:"elementId"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Version     int       `json:"version"`

	Map      *MapConfig      `json:"map,omitempty"`
	Video    *VideoConfig    `json:"video,omitempty"`
	IFrame   *IFrameConfig   `json:"iframe,omitempty"`
	Chart    *ChartConfig    `json:"chart,omitempty"`
	Calendar *CalendarConfig `json:"calendar,omitempty"`
}

func (m Metadata) configCount() int {
	n := 0
	if m.Map != nil {
		n++
	}
	if m.Video != nil {
		n++
	}
	if m.IFrame != nil {
		n++
	}
	if m.Chart != nil {
		n++
	}
	if m.Calendar != nil {
		n++
	}
	return n
}

func (m Metadata) hasConfigFor(t Type) bool {
	switch t {
	case TypeMap:
		return m.Map != nil
	case TypeVideo:
		return m.Video != nil
	case TypeIFrame:
		return m.IFrame != nil
	case TypeChart:
		return m.Chart != nil
	case TypeCalendar:
		return m.Calendar != nil
	}
	return false
}

// Validate checks the tagged-union invariant and the required fields.
func (m Metadata) Validate() error {
	if m.ElementID == "" {
		return newError(CodeInvalidMetadata, "element id is required", "", m.Type)
	}
	if !m.Type.Valid() {
		return newError(CodeUnsupportedType, "unsupported widget type", m.ElementID, m.Type)
	}
	if m.configCount() != 1 || !m.hasConfigFor(m.Type) {
		return newError(CodeInvalidMetadata, "metadata must carry exactly the config of its type", m.ElementID, m.Type)
	}
	if m.Map != nil {
		if m.Map.Latitude < -90 || m.Map.Latitude > 90 || m.Map.Longitude < -180 || m.Map.Longitude > 180 {
			return newError(CodeInvalidMetadata, "map center out of range", m.ElementID, m.Type)
		}
		if m.Map.Zoom < 0 || m.Map.Zoom > 22 {
			return newError(CodeInvalidMetadata, "map zoom out of range", m.ElementID, m.Type)
		}
	}
	return nil
}

// Clone returns a deep copy that shares no pointers with m.
func (m Metadata) Clone() Metadata {
	c := m
	if m.Map != nil {
		v := *m.Map
		c.Map = &v
	}
	if m.Video != nil {
		v := *m.Video
		c.Video = &v
	}
	if m.IFrame != nil {
		v := *m.IFrame
		c.IFrame = &v
	}
	if m.Chart != nil {
		v := *m.Chart
		c.Chart = &v
	}
	if m.Calendar != nil {
		v := *m.Calendar
		c.Calendar = &v
	}
	return c
}

// Patch is a partial update. Nil fields are left unchanged; a config
// pointer replaces the whole config and must match the widget type.
type Patch struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Map         *MapConfig      `json:"map,omitempty"`
	Video       *VideoConfig    `json:"video,omitempty"`
	IFrame      *IFrameConfig   `json:"iframe,omitempty"`
	Chart       *ChartConfig    `json:"chart,omitempty"`
	Calendar    *CalendarConfig `json:"calendar,omitempty"`
}

// apply returns a copy of m with p applied.
func (p Patch) apply(m Metadata) Metadata {
	out := m.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Map != nil {
		v := *p.Map
		out.Map = &v
	}
	if p.Video != nil {
		v := *p.Video
		out.Video = &v
	}
	if p.IFrame != nil {
		v := *p.IFrame
		out.IFrame = &v
	}
	if p.Chart != nil {
		v := *p.Chart
		out.Chart = &v
	}
	if p.Calendar != nil {
		v := *p.Calendar
		out.Calendar = &v
	}
	return out
}
