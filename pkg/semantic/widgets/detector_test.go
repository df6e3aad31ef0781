package widgets

import (
	"strings"
	"testing"
	"time"

	"github.com/athapong/canvas-mcp/pkg/scene"
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func TestDetect_PatternLiterals(t *testing.T) {
	d := NewDetector(WithClock(fixedClock))

	tests := []struct {
		text       string
		isWidget   bool
		widgetType Type
		confidence float64
		method     string
	}{
		{"[MAP: San Francisco]", true, TypeMap, 0.95, MethodBracketTag},
		{"CHART: sales data", true, TypeChart, 0.8, MethodPrefix},
		{"Regular button text", false, "", 0, MethodNone},
		{"[VIDEO]", true, TypeVideo, 0.95, MethodBracketTag},
		{"[iframe: docs]", true, TypeIFrame, 0.9, MethodBracketTag},
		{"calendar: team", true, TypeCalendar, 0.8, MethodPrefix},
		{"Our office location", true, TypeMap, 0.7, MethodKeyword},
		{"Watch on YouTube", true, TypeVideo, 0.8, MethodKeyword},
		{"Analytics overview", true, TypeChart, 0.75, MethodKeyword},
		{"Upcoming events", true, TypeCalendar, 0.75, MethodKeyword},
		{"Company website", true, TypeIFrame, 0.7, MethodKeyword},
		{"Sitemap", false, "", 0, MethodNone},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			det := d.Detect(Source{ElementID: "el", Text: tt.text})
			if det.IsWidget != tt.isWidget {
				t.Fatalf("expected isWidget=%v, got %v (%v)", tt.isWidget, det.IsWidget, det.Reasoning)
			}
			if det.WidgetType != tt.widgetType || det.Confidence != tt.confidence || det.Method != tt.method {
				t.Errorf("expected %s/%.2f/%s, got %s/%.2f/%s",
					tt.widgetType, tt.confidence, tt.method, det.WidgetType, det.Confidence, det.Method)
			}
			if det.IsWidget {
				if det.Metadata == nil {
					t.Fatal("expected metadata for a widget")
				}
				if err := det.Metadata.Validate(); err != nil {
					t.Errorf("detected metadata is invalid: %v", err)
				}
			} else if det.Metadata != nil {
				t.Error("non-widget detection must not carry metadata")
			}
		})
	}
}

func TestDetect_BracketBeatsLaterTiers(t *testing.T) {
	d := NewDetector()
	det := d.Detect(Source{ElementID: "x", Text: "MAP: ignored [VIDEO: intro]"})
	if det.WidgetType != TypeVideo || det.Method != MethodBracketTag {
		t.Errorf("expected bracket VIDEO to win, got %s via %s", det.WidgetType, det.Method)
	}
}

func TestDetect_MapDefaultsAndExtraction(t *testing.T) {
	d := NewDetector()

	det := d.Detect(Source{ElementID: "m1", Text: "[MAP: San Francisco]"})
	cfg := det.Metadata.Map
	if cfg.Latitude != DefaultMapLatitude || cfg.Longitude != DefaultMapLongitude {
		t.Errorf("expected default center, got %v,%v", cfg.Latitude, cfg.Longitude)
	}
	if cfg.Zoom != 10 || cfg.Style != "roadmap" || cfg.CenterSource != CenterDefault {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Query != "San Francisco" {
		t.Errorf("expected query San Francisco, got %q", cfg.Query)
	}
	if det.Metadata.Title != "San Francisco" {
		t.Errorf("expected title from tag content, got %q", det.Metadata.Title)
	}

	det = d.Detect(Source{ElementID: "m2", Text: "[MAP: 48.8566, 2.3522 zoom 14 satellite]"})
	cfg = det.Metadata.Map
	if cfg.Latitude != 48.8566 || cfg.Longitude != 2.3522 || cfg.CenterSource != CenterText {
		t.Errorf("expected explicit center, got %+v", cfg)
	}
	if cfg.Zoom != 14 || cfg.Style != "satellite" {
		t.Errorf("expected zoom 14 satellite, got %+v", cfg)
	}
}

func TestDetect_VideoProviderAndAspect(t *testing.T) {
	d := NewDetector()

	det := d.Detect(Source{
		ElementID: "v1",
		Text:      "[VIDEO: https://youtu.be/abc autoplay]",
		Box:       scene.NewBoundingBox(0, 0, 400, 300),
	})
	cfg := det.Metadata.Video
	if cfg.URL != "https://youtu.be/abc" || cfg.Provider != "youtube" {
		t.Errorf("unexpected video config %+v", cfg)
	}
	if !cfg.Autoplay || !cfg.Controls {
		t.Errorf("expected autoplay with controls, got %+v", cfg)
	}
	if cfg.AspectRatio != 400.0/300.0 {
		t.Errorf("expected element aspect ratio, got %v", cfg.AspectRatio)
	}

	det = d.Detect(Source{ElementID: "v2", Text: "VIDEO: intro"})
	if det.Metadata.Video.Provider != "unknown" || det.Metadata.Video.AspectRatio != DefaultVideoAspectRatio {
		t.Errorf("expected defaults, got %+v", det.Metadata.Video)
	}
}

func TestDetect_ChartAndCalendarConfig(t *testing.T) {
	d := NewDetector()

	chart := d.Detect(Source{ElementID: "c", Text: "CHART: pie of revenue"}).Metadata.Chart
	if chart.ChartType != "pie" || chart.DataSource != "pie of revenue" {
		t.Errorf("unexpected chart config %+v", chart)
	}

	cal := d.Detect(Source{ElementID: "k", Text: "[CALENDAR: week view]"}).Metadata.Calendar
	if cal.View != "week" || !cal.ShowWeekends {
		t.Errorf("unexpected calendar config %+v", cal)
	}
}

func TestDetect_TitleIsTruncated(t *testing.T) {
	d := NewDetector()
	long := "[CHART] " + strings.Repeat("é", 80)
	det := d.Detect(Source{ElementID: "c", Text: long})
	if got := len([]rune(det.Metadata.Title)); got != 50 {
		t.Errorf("expected 50 rune title, got %d", got)
	}

	det = d.Detect(Source{ElementID: "c", Text: "[IFRAME]"})
	if det.Metadata.Title != "IFrame" {
		t.Errorf("expected type name fallback, got %q", det.Metadata.Title)
	}
}

type exactMatcher string

func (m exactMatcher) Match(text string) (Match, bool) {
	return Match{Tag: string(m)}, text == string(m)
}

func TestDetect_CustomMatcher(t *testing.T) {
	d := NewDetector(WithPatterns([]Pattern{
		{Matcher: exactMatcher("widget:42"), Type: TypeChart, Confidence: 1, Method: "lookup", Extract: extractChart},
	}))

	det := d.Detect(Source{ElementID: "a", Text: "widget:42"})
	if !det.IsWidget || det.Method != "lookup" || det.Metadata.Chart == nil {
		t.Errorf("expected custom matcher hit, got %+v", det)
	}
	if d.Detect(Source{ElementID: "b", Text: "[MAP]"}).IsWidget {
		t.Error("replaced table must not fall back to defaults")
	}
}

func TestDetectAll_KeepsNegativeResults(t *testing.T) {
	d := NewDetector()
	dets := d.DetectAll([]Source{{ElementID: "a", Text: ""}, {ElementID: "b", Text: "[MAP]"}})
	if len(dets) != 2 || dets[0].IsWidget || !dets[1].IsWidget {
		t.Errorf("unexpected detections %+v", dets)
	}
}
